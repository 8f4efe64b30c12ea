package workflow

import (
	"strings"
	"sync"

	"meshrouter/internal/logging"
	"meshrouter/internal/pattern"
	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

// TriggerSource records which stage resolved a workflow.
type TriggerSource string

const (
	SourceGoal      TriggerSource = "goal"
	SourcePattern   TriggerSource = "pattern"
	SourceHeuristic TriggerSource = "heuristic"
	SourceSemantic  TriggerSource = "semantic"
)

// TriggerResult names the workflow to run and where the decision came
// from. Semantic results carry the match score so the adapter can trim.
type TriggerResult struct {
	Workflow string
	Source   TriggerSource
	Score    float64
}

// Heuristic thresholds for the transform-scale trigger.
const (
	tallScaleRatio = 3.0
	flatScaleRatio = 0.2
)

// Triggerer decides whether a workflow should replace the current call.
// Priority is strict: pending goal, then detected pattern suggestion,
// then per-tool heuristics. The pending goal is consumed on first use.
type Triggerer struct {
	mu       sync.Mutex
	registry *Registry
	pending  string
}

// NewTriggerer binds a triggerer to a workflow registry.
func NewTriggerer(registry *Registry) *Triggerer {
	return &Triggerer{registry: registry}
}

// SetPending arms a workflow to trigger on the next call. An empty name
// disarms it.
func (t *Triggerer) SetPending(workflow string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = workflow
}

// Pending reports the currently armed workflow without consuming it.
func (t *Triggerer) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Trigger resolves the workflow for one call, or nil when nothing fires.
func (t *Triggerer) Trigger(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot, detected *pattern.DetectionResult) *TriggerResult {
	if name := t.consumePending(); name != "" {
		if _, ok := t.registry.Get(name); ok {
			logging.Workflow("trigger source=goal workflow=%s", name)
			return &TriggerResult{Workflow: name, Source: SourceGoal, Score: 1.0}
		}
		logging.Workflow("pending goal %q names an unknown workflow, dropped", name)
	}

	if detected != nil && detected.SuggestedWorkflow != "" {
		if _, ok := t.registry.Get(detected.SuggestedWorkflow); ok {
			logging.Workflow("trigger source=pattern workflow=%s archetype=%s",
				detected.SuggestedWorkflow, detected.Archetype)
			return &TriggerResult{Workflow: detected.SuggestedWorkflow, Source: SourcePattern, Score: detected.Confidence}
		}
	}

	if name := t.heuristic(call, snapshot); name != "" {
		if _, ok := t.registry.Get(name); ok {
			logging.Workflow("trigger source=heuristic workflow=%s tool=%s", name, call.Tool)
			return &TriggerResult{Workflow: name, Source: SourceHeuristic, Score: 1.0}
		}
	}
	return nil
}

func (t *Triggerer) consumePending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	name := t.pending
	t.pending = ""
	return name
}

// heuristic covers two cases: creating a primitive while the active
// object is already flat suggests the flatten workflow (the agent is
// likely building slabs), and a transform whose scale vector stretches
// one axis far beyond the others suggests tower or flatten.
func (t *Triggerer) heuristic(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot) string {
	if strings.HasPrefix(call.Tool, "modeling_create_") {
		if snapshot != nil && snapshot.Proportions != nil && snapshot.Proportions.IsFlat {
			return "flatten_object"
		}
		return ""
	}
	if call.Tool != "modeling_transform" {
		return ""
	}
	scale, ok := call.Params["scale"]
	if !ok {
		return ""
	}
	vec, ok := asScaleVector(scale)
	if !ok || len(vec) != 3 {
		return ""
	}
	for axis := 0; axis < 3; axis++ {
		others := maxOther(vec, axis)
		if others <= 0 {
			continue
		}
		ratio := vec[axis] / others
		if ratio >= tallScaleRatio {
			return "build_tower"
		}
		if ratio <= flatScaleRatio {
			return "flatten_object"
		}
	}
	return ""
}

func maxOther(vec []float64, skip int) float64 {
	out := 0.0
	for i, v := range vec {
		if i == skip {
			continue
		}
		if v > out {
			out = v
		}
	}
	return out
}

func asScaleVector(v any) ([]float64, bool) {
	switch vec := v.(type) {
	case []float64:
		return vec, true
	case []any:
		out := make([]float64, 0, len(vec))
		for _, item := range vec {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
