package scene

import (
	"context"
	"testing"
	"time"

	"meshrouter/internal/backend"
)

// fakeBackend answers commands from a mutable script and counts calls.
type fakeBackend struct {
	responses map[string]backend.Response
	calls     map[string]int
	down      bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses: make(map[string]backend.Response),
		calls:     make(map[string]int),
	}
}

func (f *fakeBackend) Send(_ context.Context, command string, _ map[string]any) backend.Response {
	f.calls[command]++
	if f.down {
		return backend.ErrorResponse("connection refused")
	}
	if resp, ok := f.responses[command]; ok {
		return resp
	}
	return backend.ErrorResponse("unknown command: " + command)
}

func (f *fakeBackend) setObjectMode(active string, selected []any) {
	f.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{
			"mode":             "OBJECT",
			"active_object":    active,
			"selected_objects": selected,
		},
	}
	f.responses[backend.CmdGetObjects] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{
			"objects": []any{
				map[string]any{
					"id":         active,
					"kind":       "MESH",
					"dimensions": []any{2.0, 2.0, 2.0},
					"active":     true,
				},
			},
		},
	}
	f.responses[backend.CmdGetObjectDetail] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{
			"dimensions": []any{2.0, 2.0, 2.0},
			"materials":  []any{"steel"},
			"modifiers":  []any{},
		},
	}
}

func TestAnalyzeCapturesFullSnapshot(t *testing.T) {
	fb := newFakeBackend()
	fb.setObjectMode("Cube", []any{"Cube"})

	a := NewAnalyzer(fb, time.Second)
	snap := a.Analyze(context.Background(), "")

	if snap.Mode != ModeObject {
		t.Errorf("mode = %q, want OBJECT", snap.Mode)
	}
	if snap.ActiveObject != "Cube" {
		t.Errorf("active = %q, want Cube", snap.ActiveObject)
	}
	if !snap.SelectedObjects["Cube"] {
		t.Error("Cube should be selected")
	}
	if snap.Proportions == nil || !snap.Proportions.IsCubic {
		t.Errorf("proportions missing or wrong: %+v", snap.Proportions)
	}
	if len(snap.Materials) != 1 || snap.Materials[0] != "steel" {
		t.Errorf("materials = %v", snap.Materials)
	}
	if snap.Topology != nil {
		t.Error("topology must be nil outside edit mode")
	}
}

func TestAnalyzeCacheHitRefreshesHotFields(t *testing.T) {
	fb := newFakeBackend()
	fb.setObjectMode("Cube", []any{"Cube"})

	a := NewAnalyzer(fb, time.Minute)
	first := a.Analyze(context.Background(), "")
	if first.ActiveObject != "Cube" {
		t.Fatalf("setup: active = %q", first.ActiveObject)
	}
	objectListCalls := fb.calls[backend.CmdGetObjects]

	// Backend moves on: new active object, nothing selected.
	fb.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{
			"mode":             "OBJECT",
			"active_object":    "Sphere",
			"selected_objects": []any{},
		},
	}

	second := a.Analyze(context.Background(), "")

	if second.ActiveObject != "Sphere" {
		t.Errorf("hot field active = %q, want refreshed Sphere", second.ActiveObject)
	}
	if len(second.SelectedObjects) != 0 {
		t.Errorf("selection should be refreshed empty, got %v", second.SelectedObjects)
	}
	// Cold fields come from cache: no second object-list query.
	if fb.calls[backend.CmdGetObjects] != objectListCalls {
		t.Errorf("object list re-fetched on cache hit (%d calls)", fb.calls[backend.CmdGetObjects])
	}
	if len(second.Objects) == 0 {
		t.Error("cached object list lost during hot-field merge")
	}
}

func TestAnalyzeEditModeRefreshesSelectionCounts(t *testing.T) {
	fb := newFakeBackend()
	fb.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"mode": "EDIT", "active_object": "Cube", "selected_objects": []any{"Cube"}},
	}
	fb.responses[backend.CmdGetObjects] = backend.Response{Status: backend.StatusOK, Result: map[string]any{"objects": []any{}}}
	fb.responses[backend.CmdGetEditSelection] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"vertices": 8.0, "edges": 12.0, "faces": 6.0, "selected_vertices": 0.0},
	}

	a := NewAnalyzer(fb, time.Minute)
	first := a.Analyze(context.Background(), "")
	if first.Topology == nil || first.Topology.Vertices != 8 {
		t.Fatalf("setup: topology = %+v", first.Topology)
	}
	if first.HasSelection() {
		t.Fatal("setup: no mesh selection expected")
	}

	// User selects four vertices; total counts in the stale cache stay.
	fb.responses[backend.CmdGetEditSelection] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"vertices": 8.0, "edges": 12.0, "faces": 6.0, "selected_vertices": 4.0},
	}

	second := a.Analyze(context.Background(), "")
	if second.Topology == nil {
		t.Fatal("topology lost on cache hit in edit mode")
	}
	if second.Topology.SelectedVertices != 4 {
		t.Errorf("selected vertices = %d, want refreshed 4", second.Topology.SelectedVertices)
	}
	if second.Topology.Vertices != 8 {
		t.Errorf("total vertices = %d, want cached 8", second.Topology.Vertices)
	}
	if !second.HasSelection() {
		t.Error("HasSelection should reflect refreshed counts")
	}
}

func TestAnalyzeTopologyClearedWhenLeavingEditMode(t *testing.T) {
	fb := newFakeBackend()
	fb.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"mode": "EDIT", "active_object": "Cube", "selected_objects": []any{}},
	}
	fb.responses[backend.CmdGetObjects] = backend.Response{Status: backend.StatusOK, Result: map[string]any{"objects": []any{}}}
	fb.responses[backend.CmdGetEditSelection] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"vertices": 8.0},
	}

	a := NewAnalyzer(fb, time.Minute)
	if snap := a.Analyze(context.Background(), ""); snap.Topology == nil {
		t.Fatal("setup: expected topology in edit mode")
	}

	fb.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"mode": "OBJECT", "active_object": "Cube", "selected_objects": []any{}},
	}

	snap := a.Analyze(context.Background(), "")
	if snap.Mode != ModeObject {
		t.Errorf("mode = %q, want OBJECT", snap.Mode)
	}
	if snap.Topology != nil {
		t.Error("topology must be cleared when the backend left edit mode")
	}
}

func TestAnalyzeBackendDownReturnsEmptySnapshot(t *testing.T) {
	fb := newFakeBackend()
	fb.down = true

	a := NewAnalyzer(fb, time.Second)
	snap := a.Analyze(context.Background(), "")

	if snap == nil {
		t.Fatal("Analyze must never return nil")
	}
	if snap.Mode != ModeObject || len(snap.Objects) != 0 || snap.Proportions != nil {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestInvalidateCacheForcesRecapture(t *testing.T) {
	fb := newFakeBackend()
	fb.setObjectMode("Cube", []any{"Cube"})

	a := NewAnalyzer(fb, time.Minute)
	a.Analyze(context.Background(), "")
	before := fb.calls[backend.CmdGetObjects]

	a.InvalidateCache()
	a.Analyze(context.Background(), "")

	if fb.calls[backend.CmdGetObjects] != before+1 {
		t.Error("invalidate did not force a full recapture")
	}
}

func TestHasSelectionWithoutCacheQueriesBackend(t *testing.T) {
	fb := newFakeBackend()
	fb.responses[backend.CmdGetState] = backend.Response{
		Status: backend.StatusOK,
		Result: map[string]any{"mode": "OBJECT", "selected_objects": []any{"Cube"}},
	}

	a := NewAnalyzer(fb, time.Second)
	if !a.HasSelection(context.Background()) {
		t.Error("expected selection from backend query")
	}
	if fb.calls[backend.CmdGetState] != 1 {
		t.Errorf("expected one state query, got %d", fb.calls[backend.CmdGetState])
	}
}

func TestCachedInstanceIsNeverHandedOut(t *testing.T) {
	fb := newFakeBackend()
	fb.setObjectMode("Cube", []any{"Cube"})

	a := NewAnalyzer(fb, time.Minute)
	first := a.Analyze(context.Background(), "")
	first.Mode = ModeSculpt
	first.SelectedObjects["Injected"] = true

	second := a.Analyze(context.Background(), "")
	if second.Mode == ModeSculpt {
		t.Error("mutating a returned snapshot leaked into the cache")
	}
	if second.SelectedObjects["Injected"] {
		t.Error("mutating returned selection leaked into the cache")
	}
}
