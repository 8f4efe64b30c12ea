package workflow

import "meshrouter/internal/logging"

// ConfidenceLevel buckets a semantic match score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceNone   ConfidenceLevel = "NONE"
)

// Thresholds mapping a score to a confidence level.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultThresholds match the score bands the classifiers produce.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.90, Medium: 0.75, Low: 0.60}
}

// Level buckets a raw score.
func (t Thresholds) Level(score float64) ConfidenceLevel {
	switch {
	case score >= t.High:
		return ConfidenceHigh
	case score >= t.Medium:
		return ConfidenceMedium
	case score >= t.Low:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Adaptation is a trimmed step list plus how much was cut.
type Adaptation struct {
	Level        ConfidenceLevel
	Steps        []Step
	StepsRemoved int
}

// lowConfidenceMaxSteps caps how much of a workflow runs on a weak
// semantic match.
const lowConfidenceMaxSteps = 3

// Adapter trims workflow steps by confidence level. Only used for
// fuzzy semantic matches; exact keyword and pattern triggers run the
// full definition.
type Adapter struct {
	thresholds Thresholds
}

// NewAdapter builds an adapter. Zero thresholds fall back to defaults.
func NewAdapter(t Thresholds) *Adapter {
	if t.High == 0 && t.Medium == 0 && t.Low == 0 {
		t = DefaultThresholds()
	}
	return &Adapter{thresholds: t}
}

// Adapt trims a definition's steps for the given match score:
// HIGH keeps every step, MEDIUM drops optional steps, LOW drops
// optional steps and truncates what is left, NONE keeps nothing.
// Deterministic for a given score and definition.
func (a *Adapter) Adapt(def Definition, score float64) Adaptation {
	level := a.thresholds.Level(score)
	total := len(def.Steps)

	var steps []Step
	switch level {
	case ConfidenceHigh:
		steps = append(steps, def.Steps...)
	case ConfidenceMedium:
		steps = requiredOnly(def.Steps)
	case ConfidenceLow:
		steps = requiredOnly(def.Steps)
		if len(steps) > lowConfidenceMaxSteps {
			steps = steps[:lowConfidenceMaxSteps]
		}
	case ConfidenceNone:
		steps = nil
	}

	removed := total - len(steps)
	if removed > 0 {
		logging.Workflow("adapted %s at %s: %d of %d steps removed", def.Name, level, removed, total)
	}
	return Adaptation{Level: level, Steps: steps, StepsRemoved: removed}
}

func requiredOnly(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
