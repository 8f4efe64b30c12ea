package workflow

import (
	"strings"

	"meshrouter/internal/logging"
	"meshrouter/internal/toolcall"
)

// Expander turns a workflow definition into concrete tool calls.
type Expander struct{}

// NewExpander returns a stateless expander.
func NewExpander() *Expander {
	return &Expander{}
}

// Expand renders each step against the originating call's parameters.
// A param value of the form "$name" is replaced by the original call's
// "name" parameter; when the original has no such parameter the key is
// dropped from the step entirely.
func (x *Expander) Expand(def Definition, original toolcall.InterceptedToolCall) []toolcall.CorrectedToolCall {
	return x.ExpandSteps(def.Name, def.Steps, original)
}

// ExpandSteps renders an explicit step list. Used after the adapter has
// trimmed a definition.
func (x *Expander) ExpandSteps(name string, steps []Step, original toolcall.InterceptedToolCall) []toolcall.CorrectedToolCall {
	calls := make([]toolcall.CorrectedToolCall, 0, len(steps))
	for _, step := range steps {
		params := make(map[string]any, len(step.Params))
		for key, value := range step.Params {
			resolved, keep := resolvePlaceholder(value, original.Params)
			if !keep {
				continue
			}
			params[key] = resolved
		}
		calls = append(calls, toolcall.CorrectedToolCall{
			Tool:               step.Tool,
			Params:             params,
			CorrectionsApplied: []string{"workflow:" + name},
			IsInjected:         true,
			OriginalID:         original.ID,
		})
	}
	logging.WorkflowDebug("expanded %s into %d calls", name, len(calls))
	return calls
}

// resolvePlaceholder substitutes "$name" values. The second return is
// false when the placeholder has no source parameter.
func resolvePlaceholder(value any, original map[string]any) (any, bool) {
	s, isString := value.(string)
	if !isString || !strings.HasPrefix(s, "$") {
		return value, true
	}
	resolved, ok := original[s[1:]]
	if !ok {
		return nil, false
	}
	return resolved, true
}
