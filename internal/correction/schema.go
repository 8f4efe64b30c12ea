package correction

import "meshrouter/internal/scene"

// modeRequirement maps a tool-name prefix to the mode the tool needs.
// Evaluated in order; first matching prefix wins. Tools matching no
// prefix are mode-agnostic.
type modeRequirement struct {
	prefix string
	mode   scene.Mode
}

var modeRequirements = []modeRequirement{
	{"mesh_", scene.ModeEdit},
	{"modeling_", scene.ModeObject},
	{"sculpt_", scene.ModeSculpt},
}

// selectionRequired lists tools that operate on the current selection
// and are meaningless without one.
var selectionRequired = map[string]bool{
	"mesh_extrude_region": true,
	"mesh_bevel":          true,
	"mesh_inset_faces":    true,
	"mesh_delete":         true,
	"mesh_subdivide":      true,
	"mesh_loopcut_slide":  true,
	"mesh_merge":          true,
}

// ClampKind distinguishes fixed numeric bounds from bounds derived
// from the active object's size.
type ClampKind int

const (
	// ClampAbsolute uses the rule's Min/Max verbatim.
	ClampAbsolute ClampKind = iota
	// ClampRelative bounds the value to [0, min(dimension) * Ratio].
	ClampRelative
)

// ClampRule declares a valid range for one parameter of one exact tool.
// Vector-valued parameters are clamped per component.
type ClampRule struct {
	Tool  string
	Param string
	Kind  ClampKind
	Min   float64
	Max   float64
	Ratio float64
}

// bevelOffsetRatio bounds a bevel offset to half the smallest dimension
// of the active object. Larger offsets self-intersect.
const bevelOffsetRatio = 0.5

var defaultClampRules = []ClampRule{
	{Tool: "mesh_extrude_region", Param: "depth", Kind: ClampAbsolute, Min: -2.0, Max: 2.0},
	{Tool: "mesh_bevel", Param: "offset", Kind: ClampRelative, Ratio: bevelOffsetRatio},
	{Tool: "mesh_inset_faces", Param: "thickness", Kind: ClampAbsolute, Min: 0.0, Max: 1.0},
	{Tool: "mesh_subdivide", Param: "number_cuts", Kind: ClampAbsolute, Min: 1, Max: 10},
	{Tool: "modeling_transform", Param: "scale", Kind: ClampAbsolute, Min: 0.001, Max: 100},
	{Tool: "sculpt_brush_stroke", Param: "strength", Kind: ClampAbsolute, Min: 0.0, Max: 1.0},
}

// requiredMode resolves the mode a tool needs, or ModeAny when the tool
// is mode-agnostic.
func requiredMode(tool string) scene.Mode {
	for _, req := range modeRequirements {
		if len(tool) >= len(req.prefix) && tool[:len(req.prefix)] == req.prefix {
			return req.mode
		}
	}
	return scene.ModeAny
}
