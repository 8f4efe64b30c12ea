// Package correction repairs tool calls before they reach the backend:
// wrong-mode calls get a mode-switch prerequisite, selection-dependent
// calls get a select-all prerequisite, and out-of-range parameters are
// clamped to their declared bounds.
package correction

import (
	"fmt"

	"meshrouter/internal/logging"
	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

// Options toggles the individual correction steps. All enabled by default.
type Options struct {
	EnableModeSwitch bool
	EnableSelection  bool
	EnableClamping   bool
}

// DefaultOptions enables every correction step.
func DefaultOptions() Options {
	return Options{
		EnableModeSwitch: true,
		EnableSelection:  true,
		EnableClamping:   true,
	}
}

// Engine applies the correction steps. Stateless apart from its
// configuration; safe for concurrent use.
type Engine struct {
	opts   Options
	clamps map[string][]ClampRule
}

// NewEngine builds an engine with the default clamp schema.
func NewEngine(opts Options) *Engine {
	return NewEngineWithRules(opts, defaultClampRules)
}

// NewEngineWithRules builds an engine with an explicit clamp schema.
func NewEngineWithRules(opts Options, rules []ClampRule) *Engine {
	clamps := make(map[string][]ClampRule)
	for _, r := range rules {
		clamps[r.Tool] = append(clamps[r.Tool], r)
	}
	return &Engine{opts: opts, clamps: clamps}
}

// Correct runs the correction steps against one intercepted call.
// Returns the (possibly rewritten) call plus any injected prerequisite
// calls, in the order they must execute before it.
func (e *Engine) Correct(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot) (toolcall.CorrectedToolCall, []toolcall.CorrectedToolCall) {
	corrected := toolcall.FromIntercepted(call)
	var prereqs []toolcall.CorrectedToolCall
	if snapshot == nil {
		snap := scene.EmptySnapshot()
		snapshot = snap
	}

	if e.opts.EnableModeSwitch {
		if prereq, tag, ok := e.modeSwitch(call, snapshot); ok {
			prereqs = append(prereqs, prereq)
			corrected.CorrectionsApplied = append(corrected.CorrectionsApplied, tag)
		}
	}

	if e.opts.EnableSelection {
		if prereq, ok := e.selectAll(call, snapshot); ok {
			prereqs = append(prereqs, prereq)
			corrected.CorrectionsApplied = append(corrected.CorrectionsApplied, "select_all")
		}
	}

	if e.opts.EnableClamping {
		corrected.CorrectionsApplied = append(corrected.CorrectionsApplied, e.clampParams(&corrected, snapshot)...)
	}

	if len(corrected.CorrectionsApplied) > 0 {
		logging.Correction("tool=%s applied=%v injected=%d", call.Tool, corrected.CorrectionsApplied, len(prereqs))
	}
	return corrected, prereqs
}

func (e *Engine) modeSwitch(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot) (toolcall.CorrectedToolCall, string, bool) {
	required := requiredMode(call.Tool)
	if required == scene.ModeAny || snapshot.Mode == required {
		return toolcall.CorrectedToolCall{}, "", false
	}
	tag := fmt.Sprintf("mode_switch:%s->%s", snapshot.Mode, required)
	prereq := toolcall.Injected(call, toolcall.ToolSetMode, map[string]any{
		toolcall.ParamMode: string(required),
	}, tag)
	return prereq, tag, true
}

func (e *Engine) selectAll(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot) (toolcall.CorrectedToolCall, bool) {
	if !selectionRequired[call.Tool] || snapshot.HasSelection() {
		return toolcall.CorrectedToolCall{}, false
	}
	prereq := toolcall.Injected(call, toolcall.ToolSelectAll, nil, "select_all")
	return prereq, true
}

// clampParams rewrites out-of-range parameters in place and returns the
// tags describing each clamp.
func (e *Engine) clampParams(corrected *toolcall.CorrectedToolCall, snapshot *scene.SceneSnapshot) []string {
	rules := e.clamps[corrected.Tool]
	if len(rules) == 0 {
		return nil
	}
	var tags []string
	for _, rule := range rules {
		raw, present := corrected.Params[rule.Param]
		if !present {
			continue
		}
		lo, hi, ok := rule.bounds(snapshot)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		default:
			val, isNum := asNumber(v)
			if !isNum {
				continue
			}
			clamped := clampValue(val, lo, hi)
			if clamped != val {
				corrected.Params[rule.Param] = clamped
				tags = append(tags, fmt.Sprintf("clamp_%s:%g->%g", rule.Param, val, clamped))
			}
		case []any, []float64:
			vec, isVec := asVector(raw)
			if !isVec {
				continue
			}
			changed := false
			out := make([]float64, len(vec))
			for i, comp := range vec {
				out[i] = clampValue(comp, lo, hi)
				if out[i] != comp {
					changed = true
				}
			}
			if changed {
				corrected.Params[rule.Param] = out
				tags = append(tags, fmt.Sprintf("clamp_%s:%v->%v", rule.Param, vec, out))
			}
		}
	}
	return tags
}

// bounds resolves the effective [min, max] for a rule. Relative rules
// need the active object's dimensions; without them the rule is skipped.
func (r ClampRule) bounds(snapshot *scene.SceneSnapshot) (float64, float64, bool) {
	switch r.Kind {
	case ClampRelative:
		minDim := snapshot.MinDimension()
		if minDim <= 0 {
			return 0, 0, false
		}
		return 0, minDim * r.Ratio, true
	default:
		return r.Min, r.Max, true
	}
}

func clampValue(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asVector(v any) ([]float64, bool) {
	switch vec := v.(type) {
	case []float64:
		out := make([]float64, len(vec))
		copy(out, vec)
		return out, true
	case []any:
		out := make([]float64, 0, len(vec))
		for _, item := range vec {
			n, ok := asNumber(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}
