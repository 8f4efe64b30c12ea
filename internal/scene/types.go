// Package scene provides the derived view of backend state used for
// routing decisions: snapshots, object/topology info, proportion math,
// and the caching context analyzer.
package scene

import (
	"time"
)

// Mode is the backend interaction mode.
type Mode string

const (
	ModeObject Mode = "OBJECT"
	ModeEdit   Mode = "EDIT"
	ModeSculpt Mode = "SCULPT"
	ModePose   Mode = "POSE"

	// ModeAny marks a tool as mode-agnostic.
	ModeAny Mode = ""
)

// ParseMode normalizes a backend-reported mode string.
// Unknown values default to OBJECT.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeObject, ModeEdit, ModeSculpt, ModePose:
		return Mode(s)
	default:
		return ModeObject
	}
}

// ObjectInfo describes one object in the scene.
type ObjectInfo struct {
	ID         string
	Kind       string
	Location   [3]float64
	Dimensions [3]float64
	Selected   bool
	Active     bool
}

// TopologyInfo describes edit-mode mesh element counts.
// Only meaningful while the snapshot mode is EDIT.
type TopologyInfo struct {
	Vertices int
	Edges    int
	Faces    int

	SelectedVertices int
	SelectedEdges    int
	SelectedFaces    int
}

// HasSelection reports whether any mesh element is selected.
func (t *TopologyInfo) HasSelection() bool {
	if t == nil {
		return false
	}
	return t.SelectedVertices > 0 || t.SelectedEdges > 0 || t.SelectedFaces > 0
}

// ProportionInfo carries ratios and shape flags derived from an object's
// dimensions. Derived deterministically and never mutated after creation.
type ProportionInfo struct {
	RatioXY float64
	RatioXZ float64
	RatioYZ float64

	IsFlat  bool
	IsTall  bool
	IsWide  bool
	IsCubic bool

	// DominantAxis is "x", "y" or "z" (argmax, x/y/z tie-break order).
	DominantAxis string

	Volume      float64
	SurfaceArea float64
}

// SceneSnapshot is the cached, derived view of backend state.
// Invariant: Topology is present only when Mode == EDIT.
// Callers must treat a returned snapshot as immutable; mutations for
// simulation go through Clone.
type SceneSnapshot struct {
	Mode            Mode
	ActiveObject    string
	SelectedObjects map[string]bool
	Objects         []ObjectInfo
	Topology        *TopologyInfo
	Proportions     *ProportionInfo
	Materials       []string
	Modifiers       []string
	CapturedAt      time.Time
}

// EmptySnapshot is the degraded snapshot returned when the backend is
// unreachable: object mode, nothing else set.
func EmptySnapshot() *SceneSnapshot {
	return &SceneSnapshot{
		Mode:            ModeObject,
		SelectedObjects: make(map[string]bool),
		CapturedAt:      time.Now(),
	}
}

// Clone returns a deep copy safe to mutate for simulation.
func (s *SceneSnapshot) Clone() *SceneSnapshot {
	if s == nil {
		return nil
	}
	cp := *s

	cp.SelectedObjects = make(map[string]bool, len(s.SelectedObjects))
	for id, v := range s.SelectedObjects {
		cp.SelectedObjects[id] = v
	}
	cp.Objects = append([]ObjectInfo(nil), s.Objects...)
	cp.Materials = append([]string(nil), s.Materials...)
	cp.Modifiers = append([]string(nil), s.Modifiers...)

	if s.Topology != nil {
		t := *s.Topology
		cp.Topology = &t
	}
	if s.Proportions != nil {
		p := *s.Proportions
		cp.Proportions = &p
	}
	return &cp
}

// HasSelection reports whether anything relevant is selected:
// mesh elements in edit mode, objects otherwise.
func (s *SceneSnapshot) HasSelection() bool {
	if s == nil {
		return false
	}
	if s.Mode == ModeEdit {
		return s.Topology.HasSelection()
	}
	return len(s.SelectedObjects) > 0
}

// ActiveObjectInfo returns the active object's info, or nil.
func (s *SceneSnapshot) ActiveObjectInfo() *ObjectInfo {
	if s == nil || s.ActiveObject == "" {
		return nil
	}
	for i := range s.Objects {
		if s.Objects[i].ID == s.ActiveObject {
			return &s.Objects[i]
		}
	}
	return nil
}

// MinDimension returns the smallest dimension of the active object,
// or 0 when there is no active object.
func (s *SceneSnapshot) MinDimension() float64 {
	obj := s.ActiveObjectInfo()
	if obj == nil {
		return 0
	}
	min := obj.Dimensions[0]
	for _, d := range obj.Dimensions[1:] {
		if d < min {
			min = d
		}
	}
	return min
}
