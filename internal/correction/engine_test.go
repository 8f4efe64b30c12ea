package correction

import (
	"strings"
	"testing"

	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

func snapshotWith(mode scene.Mode, selected bool, dims [3]float64) *scene.SceneSnapshot {
	snap := scene.EmptySnapshot()
	snap.Mode = mode
	snap.ActiveObject = "Cube"
	snap.Objects = []scene.ObjectInfo{{
		ID:         "Cube",
		Kind:       "MESH",
		Dimensions: dims,
		Selected:   selected,
		Active:     true,
	}}
	if selected {
		snap.SelectedObjects["Cube"] = true
	}
	if mode == scene.ModeEdit {
		snap.Topology = &scene.TopologyInfo{Vertices: 8, Edges: 12, Faces: 6}
		if selected {
			snap.Topology.SelectedVertices = 8
		}
	}
	return snap
}

func countPrefix(tags []string, prefix string) int {
	n := 0
	for _, tag := range tags {
		if strings.HasPrefix(tag, prefix) {
			n++
		}
	}
	return n
}

func TestMeshToolInObjectModeInjectsOneModeSwitch(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_extrude_region", map[string]any{"depth": 0.5}, "")
	snap := snapshotWith(scene.ModeObject, true, [3]float64{1, 1, 1})

	corrected, prereqs := e.Correct(call, snap)

	if got := countPrefix(corrected.CorrectionsApplied, "mode_switch:"); got != 1 {
		t.Fatalf("mode_switch tags = %d, want 1 (tags: %v)", got, corrected.CorrectionsApplied)
	}
	if want := "mode_switch:OBJECT->EDIT"; corrected.CorrectionsApplied[0] != want {
		t.Errorf("tag = %q, want %q", corrected.CorrectionsApplied[0], want)
	}
	if len(prereqs) != 1 || prereqs[0].Tool != toolcall.ToolSetMode {
		t.Fatalf("prereqs = %+v, want single set_mode call", prereqs)
	}
	if !prereqs[0].IsInjected {
		t.Error("prerequisite must be marked injected")
	}
	if prereqs[0].Params[toolcall.ParamMode] != string(scene.ModeEdit) {
		t.Errorf("set_mode target = %v, want EDIT", prereqs[0].Params[toolcall.ParamMode])
	}
}

func TestMeshToolInEditModeInjectsNoModeSwitch(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_bevel", map[string]any{"offset": 0.1}, "")
	snap := snapshotWith(scene.ModeEdit, true, [3]float64{1, 1, 1})

	corrected, prereqs := e.Correct(call, snap)

	if countPrefix(corrected.CorrectionsApplied, "mode_switch:") != 0 {
		t.Errorf("unexpected mode_switch in %v", corrected.CorrectionsApplied)
	}
	for _, p := range prereqs {
		if p.Tool == toolcall.ToolSetMode {
			t.Errorf("unexpected set_mode prerequisite: %+v", p)
		}
	}
}

func TestSelectionRequiredWithoutSelectionInjectsSelectAll(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_delete", nil, "")
	snap := snapshotWith(scene.ModeEdit, false, [3]float64{1, 1, 1})

	corrected, prereqs := e.Correct(call, snap)

	selectAlls := 0
	for _, p := range prereqs {
		if p.Tool == toolcall.ToolSelectAll {
			selectAlls++
		}
	}
	if selectAlls != 1 {
		t.Fatalf("select_all prerequisites = %d, want 1", selectAlls)
	}
	if countPrefix(corrected.CorrectionsApplied, "select_all") != 1 {
		t.Errorf("select_all tag missing: %v", corrected.CorrectionsApplied)
	}
}

func TestSelectionPresentInjectsNothing(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_delete", nil, "")
	snap := snapshotWith(scene.ModeEdit, true, [3]float64{1, 1, 1})

	_, prereqs := e.Correct(call, snap)
	for _, p := range prereqs {
		if p.Tool == toolcall.ToolSelectAll {
			t.Fatalf("unexpected select_all: %+v", p)
		}
	}
}

func TestAbsoluteClamp(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_extrude_region", map[string]any{"depth": 50.0}, "")
	snap := snapshotWith(scene.ModeEdit, true, [3]float64{1, 1, 1})

	corrected, _ := e.Correct(call, snap)

	if got := corrected.Params["depth"]; got != 2.0 {
		t.Errorf("depth = %v, want 2.0", got)
	}
	if countPrefix(corrected.CorrectionsApplied, "clamp_depth:") != 1 {
		t.Errorf("clamp tag missing: %v", corrected.CorrectionsApplied)
	}
}

func TestRelativeBevelClampUsesObjectSize(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_bevel", map[string]any{"offset": 3.0}, "")
	// Smallest dimension 0.4, ratio 0.5 -> bound 0.2.
	snap := snapshotWith(scene.ModeEdit, true, [3]float64{2, 0.4, 1})

	corrected, _ := e.Correct(call, snap)

	if got := corrected.Params["offset"]; got != 0.2 {
		t.Errorf("offset = %v, want 0.2", got)
	}
}

func TestVectorParamClampedPerComponent(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "modeling_transform",
		map[string]any{"scale": []any{500.0, 1.0, 0.0}}, "")
	snap := snapshotWith(scene.ModeObject, true, [3]float64{1, 1, 1})

	corrected, _ := e.Correct(call, snap)

	got, ok := corrected.Params["scale"].([]float64)
	if !ok {
		t.Fatalf("scale = %T, want []float64", corrected.Params["scale"])
	}
	want := []float64{100, 1.0, 0.001}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scale[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestInRangeParamUntouched(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "mesh_extrude_region", map[string]any{"depth": 0.5}, "")
	snap := snapshotWith(scene.ModeEdit, true, [3]float64{1, 1, 1})

	corrected, _ := e.Correct(call, snap)

	if corrected.Params["depth"] != 0.5 {
		t.Errorf("depth = %v, want 0.5", corrected.Params["depth"])
	}
	if countPrefix(corrected.CorrectionsApplied, "clamp_") != 0 {
		t.Errorf("unexpected clamp tags: %v", corrected.CorrectionsApplied)
	}
}

func TestStepsIndividuallyDisabled(t *testing.T) {
	e := NewEngine(Options{EnableClamping: true})
	call := toolcall.NewIntercepted("s1", "mesh_extrude_region", map[string]any{"depth": 50.0}, "")
	snap := snapshotWith(scene.ModeObject, false, [3]float64{1, 1, 1})

	corrected, prereqs := e.Correct(call, snap)

	if len(prereqs) != 0 {
		t.Errorf("prereqs = %+v, want none with mode/selection disabled", prereqs)
	}
	if corrected.Params["depth"] != 2.0 {
		t.Errorf("depth = %v, want clamped 2.0", corrected.Params["depth"])
	}
}

func TestUnknownToolPassesThrough(t *testing.T) {
	e := NewEngine(DefaultOptions())
	call := toolcall.NewIntercepted("s1", "render_frame", map[string]any{"samples": 4096}, "")
	snap := snapshotWith(scene.ModeObject, false, [3]float64{1, 1, 1})

	corrected, prereqs := e.Correct(call, snap)

	if len(prereqs) != 0 || len(corrected.CorrectionsApplied) != 0 {
		t.Errorf("expected pass-through, got tags=%v prereqs=%d", corrected.CorrectionsApplied, len(prereqs))
	}
	if corrected.Params["samples"] != 4096 {
		t.Errorf("params mutated: %v", corrected.Params)
	}
}
