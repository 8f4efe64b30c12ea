package pattern

import (
	"sort"

	"meshrouter/internal/logging"
	"meshrouter/internal/scene"
)

// DefaultThreshold is the minimum confidence for a best match when the
// caller does not configure one.
const DefaultThreshold = 0.5

// DetectionResult is one scored archetype for a snapshot.
type DetectionResult struct {
	Archetype         Archetype
	Confidence        float64
	SuggestedWorkflow string
	MatchedRules      []string
}

// Detector scores snapshots against every known archetype.
type Detector struct {
	threshold float64
}

// NewDetector builds a detector. A non-positive threshold falls back to
// DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Detect evaluates every archetype against the snapshot's proportions
// and returns all results with confidence > 0, sorted by confidence
// descending. Ties keep the fixed archetype evaluation order.
func (d *Detector) Detect(snapshot *scene.SceneSnapshot) []DetectionResult {
	if snapshot == nil || snapshot.Proportions == nil {
		return nil
	}
	p := *snapshot.Proportions

	results := make([]DetectionResult, 0, len(archetypeSpecs))
	for _, spec := range archetypeSpecs {
		confidence := 0.0
		var matched []string
		for _, rule := range spec.rules {
			if rule.match(p, snapshot) {
				confidence += rule.weight
				matched = append(matched, rule.name)
			}
		}
		if confidence <= 0 {
			continue
		}
		results = append(results, DetectionResult{
			Archetype:         spec.archetype,
			Confidence:        confidence,
			SuggestedWorkflow: spec.workflow,
			MatchedRules:      matched,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// BestMatch returns the highest-confidence archetype at or above the
// detector threshold, or nil when nothing qualifies. A snapshot that
// matches no archetype yields nil rather than an unknown result so
// callers can treat absence and low confidence the same way.
func (d *Detector) BestMatch(snapshot *scene.SceneSnapshot) *DetectionResult {
	results := d.Detect(snapshot)
	if len(results) == 0 {
		return nil
	}
	best := results[0]
	if best.Confidence < d.threshold {
		logging.PatternDebug("best archetype %s below threshold (%.2f < %.2f)",
			best.Archetype, best.Confidence, d.threshold)
		return nil
	}
	logging.Pattern("detected %s confidence=%.2f rules=%v", best.Archetype, best.Confidence, best.MatchedRules)
	return &best
}
