// Package pattern classifies scene snapshots into named shape archetypes
// with additive confidence scoring. Each archetype evaluates a small set
// of boolean sub-rules; every rule that fires contributes its weight to
// the archetype's confidence. Detection is deterministic: same
// proportions, same result.
package pattern

import (
	"meshrouter/internal/scene"
)

// Archetype is a closed set of shape classifications.
type Archetype string

const (
	ArchetypeTower   Archetype = "tower"
	ArchetypePillar  Archetype = "pillar"
	ArchetypePhone   Archetype = "phone"
	ArchetypeTable   Archetype = "table"
	ArchetypeWheel   Archetype = "wheel"
	ArchetypeBox     Archetype = "box"
	ArchetypePlank   Archetype = "plank"
	ArchetypeUnknown Archetype = "unknown"
)

// Per-archetype sub-rule weights. Hand-tuned; each archetype's weights
// sum to at most 1.0 at full match. Keep in sync with the rule
// predicates below.
const (
	towerWeightTall       = 0.50
	towerWeightSlender    = 0.20
	towerWeightSquareBase = 0.20
	towerWeightUpright    = 0.10

	pillarWeightTall      = 0.40
	pillarWeightRound     = 0.25
	pillarWeightElongated = 0.25

	phoneWeightFlat     = 0.40
	phoneWeightPortrait = 0.30
	phoneWeightThin     = 0.30

	tableWeightFlat      = 0.40
	tableWeightFootprint = 0.30
	tableWeightBalanced  = 0.20

	wheelWeightFlat      = 0.35
	wheelWeightRoundBase = 0.30
	wheelWeightDisc      = 0.25
	wheelWeightCylinder  = 0.10

	boxWeightCubic      = 0.60
	boxWeightNoExtremes = 0.20
	boxWeightMeshKind   = 0.10

	plankWeightWide    = 0.50
	plankWeightLong    = 0.25
	plankWeightShallow = 0.15
)

// Geometry bounds used by the sub-rules.
const (
	slenderHeightRatio = 2.5 // tower: height vs footprint
	pillarHeightRatio  = 2.0
	squareBaseSpread   = 0.3 // tower: |x/y - 1| bound
	roundBaseSpread    = 0.2 // wheel
	portraitRatioLow   = 0.3 // phone: x/y window
	portraitRatioHigh  = 0.8
	thinHeightRatio    = 10.0 // phone/wheel: footprint vs height
	discHeightRatio    = 5.0
	footprintMinSize   = 1.0 // table: world-unit footprint
	balancedRatioLow   = 0.5
	balancedRatioHigh  = 2.0
	plankLengthRatio   = 3.0
)

// subRule is one weighted boolean contribution to an archetype score.
type subRule struct {
	name   string
	weight float64
	match  func(p scene.ProportionInfo, s *scene.SceneSnapshot) bool
}

// archetypeSpec binds an archetype to its rules and suggested workflow.
type archetypeSpec struct {
	archetype Archetype
	workflow  string
	rules     []subRule
}

// heightOverFootprint returns z / max(x, y) expressed via the pairwise
// ratios carried by ProportionInfo.
func heightOverFootprint(p scene.ProportionInfo) float64 {
	zOverX := 1.0 / p.RatioXZ
	zOverY := 1.0 / p.RatioYZ
	if zOverX < zOverY {
		return zOverX
	}
	return zOverY
}

// footprintOverHeight returns max(x, y) / z.
func footprintOverHeight(p scene.ProportionInfo) float64 {
	if p.RatioXZ > p.RatioYZ {
		return p.RatioXZ
	}
	return p.RatioYZ
}

func activeKindIs(s *scene.SceneSnapshot, kinds ...string) bool {
	obj := s.ActiveObjectInfo()
	if obj == nil {
		return false
	}
	for _, k := range kinds {
		if obj.Kind == k {
			return true
		}
	}
	return false
}

func maxFootprint(s *scene.SceneSnapshot) float64 {
	obj := s.ActiveObjectInfo()
	if obj == nil {
		return 0
	}
	if obj.Dimensions[0] > obj.Dimensions[1] {
		return obj.Dimensions[0]
	}
	return obj.Dimensions[1]
}

func absDiff(v, target float64) float64 {
	d := v - target
	if d < 0 {
		return -d
	}
	return d
}

// archetypeSpecs is the fixed evaluation order. Order matters only for
// tie-breaking equal confidences; confidence sorting is stable.
var archetypeSpecs = []archetypeSpec{
	{
		archetype: ArchetypeTower,
		workflow:  "build_tower",
		rules: []subRule{
			{"tall", towerWeightTall, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsTall
			}},
			{"slender", towerWeightSlender, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return heightOverFootprint(p) >= slenderHeightRatio
			}},
			{"square_base", towerWeightSquareBase, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return absDiff(p.RatioXY, 1.0) < squareBaseSpread
			}},
			{"upright", towerWeightUpright, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.DominantAxis == "z"
			}},
		},
	},
	{
		archetype: ArchetypePillar,
		workflow:  "build_tower",
		rules: []subRule{
			{"tall", pillarWeightTall, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsTall
			}},
			{"round", pillarWeightRound, func(_ scene.ProportionInfo, s *scene.SceneSnapshot) bool {
				return activeKindIs(s, "CYLINDER")
			}},
			{"elongated", pillarWeightElongated, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return heightOverFootprint(p) >= pillarHeightRatio
			}},
		},
	},
	{
		archetype: ArchetypePhone,
		workflow:  "model_phone",
		rules: []subRule{
			{"flat", phoneWeightFlat, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsFlat
			}},
			{"portrait", phoneWeightPortrait, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.RatioXY >= portraitRatioLow && p.RatioXY <= portraitRatioHigh
			}},
			{"thin", phoneWeightThin, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return footprintOverHeight(p) > thinHeightRatio
			}},
		},
	},
	{
		archetype: ArchetypeTable,
		workflow:  "build_table",
		rules: []subRule{
			{"flat", tableWeightFlat, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsFlat
			}},
			{"footprint", tableWeightFootprint, func(_ scene.ProportionInfo, s *scene.SceneSnapshot) bool {
				return maxFootprint(s) >= footprintMinSize
			}},
			{"balanced", tableWeightBalanced, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.RatioXY >= balancedRatioLow && p.RatioXY <= balancedRatioHigh
			}},
		},
	},
	{
		archetype: ArchetypeWheel,
		workflow:  "model_wheel",
		rules: []subRule{
			{"flat", wheelWeightFlat, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsFlat
			}},
			{"round_base", wheelWeightRoundBase, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return absDiff(p.RatioXY, 1.0) < roundBaseSpread
			}},
			{"disc", wheelWeightDisc, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return footprintOverHeight(p) > discHeightRatio
			}},
			{"cylinder_kind", wheelWeightCylinder, func(_ scene.ProportionInfo, s *scene.SceneSnapshot) bool {
				return activeKindIs(s, "CYLINDER")
			}},
		},
	},
	{
		archetype: ArchetypeBox,
		workflow:  "",
		rules: []subRule{
			{"cubic", boxWeightCubic, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsCubic
			}},
			{"no_extremes", boxWeightNoExtremes, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return !p.IsFlat && !p.IsTall && !p.IsWide
			}},
			{"mesh_kind", boxWeightMeshKind, func(_ scene.ProportionInfo, s *scene.SceneSnapshot) bool {
				return activeKindIs(s, "MESH", "CUBE")
			}},
		},
	},
	{
		archetype: ArchetypePlank,
		workflow:  "",
		rules: []subRule{
			{"wide", plankWeightWide, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.IsWide
			}},
			{"long", plankWeightLong, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return p.RatioXY > plankLengthRatio
			}},
			{"shallow", plankWeightShallow, func(p scene.ProportionInfo, _ *scene.SceneSnapshot) bool {
				return !p.IsTall
			}},
		},
	},
}
