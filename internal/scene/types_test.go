package scene

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func sampleSnapshot() *SceneSnapshot {
	return &SceneSnapshot{
		Mode:            ModeEdit,
		ActiveObject:    "Cube",
		SelectedObjects: map[string]bool{"Cube": true},
		Objects: []ObjectInfo{
			{ID: "Cube", Kind: "MESH", Dimensions: [3]float64{2, 2, 2}, Active: true},
			{ID: "Lamp", Kind: "LIGHT"},
		},
		Topology:    &TopologyInfo{Vertices: 8, Edges: 12, Faces: 6, SelectedVertices: 8},
		Proportions: &ProportionInfo{RatioXY: 1, RatioXZ: 1, RatioYZ: 1, IsCubic: true, Volume: 8, SurfaceArea: 24},
		Materials:   []string{"steel"},
		CapturedAt:  time.Now(),
	}
}

func TestCloneIsDeepAndEqual(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	// Mutating the clone must never reach the original.
	clone.Mode = ModeObject
	clone.SelectedObjects["Lamp"] = true
	clone.Objects[0].Dimensions[2] = 99
	clone.Topology.SelectedVertices = 0
	clone.Proportions.IsCubic = false
	clone.Materials[0] = "wood"

	if orig.Mode != ModeEdit || orig.SelectedObjects["Lamp"] {
		t.Error("clone mutation leaked into original")
	}
	if orig.Objects[0].Dimensions[2] != 2 {
		t.Error("object slice shared with clone")
	}
	if orig.Topology.SelectedVertices != 8 {
		t.Error("topology pointer shared with clone")
	}
	if !orig.Proportions.IsCubic {
		t.Error("proportions pointer shared with clone")
	}
	if orig.Materials[0] != "steel" {
		t.Error("materials slice shared with clone")
	}
}

func TestCloneNil(t *testing.T) {
	var s *SceneSnapshot
	if s.Clone() != nil {
		t.Error("nil snapshot must clone to nil")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"OBJECT":       ModeObject,
		"EDIT":         ModeEdit,
		"SCULPT":       ModeSculpt,
		"POSE":         ModePose,
		"PAINT_VERTEX": ModeObject,
		"":             ModeObject,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHasSelectionByMode(t *testing.T) {
	s := sampleSnapshot()
	if !s.HasSelection() {
		t.Error("edit mode with selected vertices should report selection")
	}
	s.Topology.SelectedVertices = 0
	if s.HasSelection() {
		t.Error("edit mode without selected elements should not report selection")
	}

	s.Mode = ModeObject
	if !s.HasSelection() {
		t.Error("object mode with selected objects should report selection")
	}
	s.SelectedObjects = map[string]bool{}
	if s.HasSelection() {
		t.Error("object mode with nothing selected should not report selection")
	}
}

func TestMinDimension(t *testing.T) {
	s := sampleSnapshot()
	s.Objects[0].Dimensions = [3]float64{2, 0.4, 1}
	if got := s.MinDimension(); got != 0.4 {
		t.Errorf("MinDimension = %v, want 0.4", got)
	}
	s.ActiveObject = ""
	if got := s.MinDimension(); got != 0 {
		t.Errorf("MinDimension without active object = %v, want 0", got)
	}
}
