// Package override swaps specific tool calls for curated replacement
// sequences. Rules key on the exact tool name and optionally on the
// archetype currently detected in the scene, so a generic primitive
// call can become a purpose-built modeling sequence when the scene
// suggests one.
package override

import (
	"sync"

	"meshrouter/internal/logging"
	"meshrouter/internal/pattern"
	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

// ReplacementTool is one call emitted in place of the original. Static
// params are fixed by the rule; InheritParams names original-call
// parameters copied over when present. Inherited values win over
// static defaults.
type ReplacementTool struct {
	Tool          string         `yaml:"tool"`
	StaticParams  map[string]any `yaml:"params"`
	InheritParams []string       `yaml:"inherit"`
	Description   string         `yaml:"description"`
}

// Rule binds a trigger tool (and optional archetype) to its replacements.
type Rule struct {
	Name         string            `yaml:"name"`
	TriggerTool  string            `yaml:"trigger_tool"`
	Pattern      pattern.Archetype `yaml:"pattern"`
	Replacements []ReplacementTool `yaml:"replacements"`
	Reason       string            `yaml:"reason"`
}

// Decision reports whether an override fired and with what calls.
type Decision struct {
	ShouldOverride bool
	RuleName       string
	Calls          []toolcall.CorrectedToolCall
	Reasons        []string
}

// Engine holds the rule registry. Safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string
}

// NewEngine starts with an empty registry.
func NewEngine() *Engine {
	return &Engine{rules: make(map[string]Rule)}
}

// Register adds a rule by name. Registering an existing name replaces
// the prior rule silently, keeping its original position.
func (e *Engine) Register(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.Name]; !exists {
		e.order = append(e.order, rule.Name)
	}
	e.rules[rule.Name] = rule
}

// Remove deletes a rule by name. Unknown names are a no-op.
func (e *Engine) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[name]; !exists {
		return
	}
	delete(e.rules, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// CheckOverride scans registered rules in registration order and applies
// the first one matching the call's tool name and, when the rule names
// an archetype, the currently detected pattern. No match yields a
// no-op decision.
func (e *Engine) CheckOverride(call toolcall.InterceptedToolCall, snapshot *scene.SceneSnapshot, detected *pattern.DetectionResult) Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, name := range e.order {
		rule := e.rules[name]
		if rule.TriggerTool != call.Tool {
			continue
		}
		if rule.Pattern != "" {
			if detected == nil || detected.Archetype != rule.Pattern {
				continue
			}
		}
		decision := Decision{
			ShouldOverride: true,
			RuleName:       rule.Name,
			Calls:          buildReplacements(rule, call),
		}
		if rule.Reason != "" {
			decision.Reasons = append(decision.Reasons, rule.Reason)
		}
		logging.Override("rule=%s tool=%s replaced with %d calls", rule.Name, call.Tool, len(decision.Calls))
		return decision
	}
	return Decision{}
}

func buildReplacements(rule Rule, call toolcall.InterceptedToolCall) []toolcall.CorrectedToolCall {
	calls := make([]toolcall.CorrectedToolCall, 0, len(rule.Replacements))
	for _, rep := range rule.Replacements {
		params := make(map[string]any, len(rep.StaticParams)+len(rep.InheritParams))
		for k, v := range rep.StaticParams {
			params[k] = v
		}
		for _, name := range rep.InheritParams {
			if v, ok := call.Params[name]; ok {
				params[name] = v
			}
		}
		calls = append(calls, toolcall.CorrectedToolCall{
			Tool:               rep.Tool,
			Params:             params,
			CorrectionsApplied: []string{"override:" + rule.Name},
			IsInjected:         true,
			OriginalID:         call.ID,
		})
	}
	return calls
}
