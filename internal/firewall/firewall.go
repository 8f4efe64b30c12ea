// Package firewall is the last gate before a call reaches the backend.
// Declarative rules match tool names with wildcards and evaluate a
// compiled condition against the scene; matching rules block the call,
// rewrite an offending parameter, or inject fix-up prerequisites.
package firewall

import (
	"fmt"
	"path"
	"sync"

	"meshrouter/internal/logging"
	"meshrouter/internal/scene"
	"meshrouter/internal/toolcall"
)

// RuleAction is what a matching rule does to the call.
type RuleAction string

const (
	ActionBlock   RuleAction = "block"
	ActionModify  RuleAction = "modify"
	ActionAutoFix RuleAction = "auto_fix"
)

// Result actions. Allow means no enabled rule matched.
type ResultAction string

const (
	ResultAllow   ResultAction = "ALLOW"
	ResultBlock   ResultAction = "BLOCK"
	ResultModify  ResultAction = "MODIFY"
	ResultAutoFix ResultAction = "AUTO_FIX"
)

// Violation describes one rule that fired.
type Violation struct {
	Rule        string
	Message     string
	AutoFixable bool
}

// Result is the terminal verdict for one call. Never re-evaluated.
type Result struct {
	Action        ResultAction
	Violations    []Violation
	ModifiedCall  *toolcall.CorrectedToolCall
	Prerequisites []toolcall.CorrectedToolCall
	Message       string
}

// Rule is one registered firewall rule. The condition is compiled at
// registration; Enabled gates evaluation without unregistering.
type Rule struct {
	Name      string
	Pattern   string
	Condition string
	Action    RuleAction
	Message   string

	compiled Condition
	enabled  bool
}

// Firewall holds the ordered rule set. Safe for concurrent use.
type Firewall struct {
	mu    sync.RWMutex
	rules []*Rule
}

// New returns a firewall preloaded with the built-in safety rules.
func New() (*Firewall, error) {
	f := &Firewall{}
	for _, r := range builtinRules() {
		if err := f.Register(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// builtinRules ship with every firewall instance. The delete guard is
// unconditional: deleting in an empty scene is always a mistake.
func builtinRules() []Rule {
	return []Rule{
		{
			Name:      "block_delete_empty_scene",
			Pattern:   "*delete*",
			Condition: "no_objects",
			Action:    ActionBlock,
			Message:   "nothing to delete: the scene has no objects",
		},
		{
			Name:      "autofix_mesh_mode",
			Pattern:   "mesh_*",
			Condition: "mode != EDIT",
			Action:    ActionAutoFix,
			Message:   "mesh tools require edit mode",
		},
		{
			Name:      "autofix_mesh_selection",
			Pattern:   "mesh_*",
			Condition: "mode == EDIT and no_selection",
			Action:    ActionAutoFix,
			Message:   "mesh tools need a selection to operate on",
		},
		{
			Name:      "modify_oversized_bevel",
			Pattern:   "mesh_bevel",
			Condition: "param:offset > dimension_ratio:0.5",
			Action:    ActionModify,
			Message:   "bevel offset exceeds half the smallest dimension",
		},
	}
}

// Register compiles and appends a rule. Re-registering a name replaces
// the rule in place, preserving both order and the existing rule's
// enablement, so a rule disabled at runtime stays off across file
// reloads. New rules start enabled.
func (f *Firewall) Register(rule Rule) error {
	compiled, err := ParseCondition(rule.Condition)
	if err != nil {
		return fmt.Errorf("rule %s: %w", rule.Name, err)
	}
	if _, err := path.Match(rule.Pattern, "sample"); err != nil {
		return fmt.Errorf("rule %s: bad pattern %q: %w", rule.Name, rule.Pattern, err)
	}
	rule.compiled = compiled
	rule.enabled = true

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.rules {
		if existing.Name == rule.Name {
			rule.enabled = existing.enabled
			f.rules[i] = &rule
			return nil
		}
	}
	f.rules = append(f.rules, &rule)
	return nil
}

// SetEnabled toggles a rule by name. Unknown names report false.
func (f *Firewall) SetEnabled(name string, enabled bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.Name == name {
			r.enabled = enabled
			return true
		}
	}
	return false
}

// RuleNames lists registered rules in evaluation order.
func (f *Firewall) RuleNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.rules))
	for i, r := range f.rules {
		out[i] = r.Name
	}
	return out
}

// Validate evaluates every enabled rule whose pattern matches the call.
// A block returns immediately. Auto-fix rules accumulate prerequisite
// calls without touching the call itself; modify rules clamp the
// offending parameter and return a rewritten call.
func (f *Firewall) Validate(call toolcall.CorrectedToolCall, snapshot *scene.SceneSnapshot) Result {
	f.mu.RLock()
	rules := make([]*Rule, len(f.rules))
	copy(rules, f.rules)
	f.mu.RUnlock()

	ctx := evalContext{snapshot: snapshot, params: call.Params}
	result := Result{Action: ResultAllow}
	modified := call

	for _, rule := range rules {
		if !rule.enabled {
			continue
		}
		if ok, _ := path.Match(rule.Pattern, call.Tool); !ok {
			continue
		}
		if !rule.compiled.Evaluate(ctx) {
			continue
		}

		switch rule.Action {
		case ActionBlock:
			logging.Firewall("BLOCK tool=%s rule=%s", call.Tool, rule.Name)
			return Result{
				Action:     ResultBlock,
				Violations: []Violation{{Rule: rule.Name, Message: rule.Message}},
				Message:    rule.Message,
			}
		case ActionAutoFix:
			result.Violations = append(result.Violations, Violation{Rule: rule.Name, Message: rule.Message, AutoFixable: true})
			result.Prerequisites = append(result.Prerequisites, fixesFor(rule.compiled)...)
			result.Action = ResultAutoFix
		case ActionModify:
			result.Violations = append(result.Violations, Violation{Rule: rule.Name, Message: rule.Message, AutoFixable: true})
			if clampOffending(rule.compiled, &modified, snapshot) {
				// AUTO_FIX takes display precedence when both fired;
				// the rewritten call is carried either way.
				if result.Action != ResultAutoFix {
					result.Action = ResultModify
				}
				result.ModifiedCall = &modified
			}
		}
	}

	if result.Action != ResultAllow {
		logging.Firewall("%s tool=%s violations=%d", result.Action, call.Tool, len(result.Violations))
		if result.Message == "" && len(result.Violations) > 0 {
			result.Message = result.Violations[0].Message
		}
	}
	return result
}

// ValidateSequence validates an ordered call list, carrying a simulated
// context forward. Only mode switches and selection changes are
// simulated; the caller's real snapshot is never mutated. Evaluation
// stops after a block, so the returned slice may be shorter than the
// input.
func (f *Firewall) ValidateSequence(calls []toolcall.CorrectedToolCall, snapshot *scene.SceneSnapshot) []Result {
	var simulated *scene.SceneSnapshot
	if snapshot != nil {
		simulated = snapshot.Clone()
	} else {
		simulated = scene.EmptySnapshot()
	}

	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		res := f.Validate(call, simulated)
		results = append(results, res)
		if res.Action == ResultBlock {
			break
		}
		for _, prereq := range res.Prerequisites {
			applySimulatedEffect(simulated, prereq)
		}
		effective := call
		if res.ModifiedCall != nil {
			effective = *res.ModifiedCall
		}
		applySimulatedEffect(simulated, effective)
	}
	return results
}

// applySimulatedEffect advances the simulated context past one call.
func applySimulatedEffect(snapshot *scene.SceneSnapshot, call toolcall.CorrectedToolCall) {
	switch call.Tool {
	case toolcall.ToolSetMode:
		mode, _ := call.Params[toolcall.ParamMode].(string)
		snapshot.Mode = scene.ParseMode(mode)
		if snapshot.Mode != scene.ModeEdit {
			snapshot.Topology = nil
		}
	case toolcall.ToolSelectAll:
		for i := range snapshot.Objects {
			snapshot.Objects[i].Selected = true
			snapshot.SelectedObjects[snapshot.Objects[i].ID] = true
		}
		if snapshot.Mode == scene.ModeEdit {
			if snapshot.Topology == nil {
				snapshot.Topology = &scene.TopologyInfo{Vertices: 1}
			}
			snapshot.Topology.SelectedVertices = snapshot.Topology.Vertices
			snapshot.Topology.SelectedEdges = snapshot.Topology.Edges
			snapshot.Topology.SelectedFaces = snapshot.Topology.Faces
		}
	case toolcall.ToolSelectNone:
		snapshot.SelectedObjects = make(map[string]bool)
		for i := range snapshot.Objects {
			snapshot.Objects[i].Selected = false
		}
		if snapshot.Topology != nil {
			snapshot.Topology.SelectedVertices = 0
			snapshot.Topology.SelectedEdges = 0
			snapshot.Topology.SelectedFaces = 0
		}
	}
}

// fixesFor derives prerequisite calls from an auto-fix rule's predicate
// tree: a negated mode clause yields a switch to that mode, a
// no-selection clause yields a select-all.
func fixesFor(cond Condition) []toolcall.CorrectedToolCall {
	var fixes []toolcall.CorrectedToolCall
	walkConditions(cond, func(c Condition) {
		switch node := c.(type) {
		case modeCondition:
			if node.negate {
				fixes = append(fixes, toolcall.CorrectedToolCall{
					Tool:               toolcall.ToolSetMode,
					Params:             map[string]any{toolcall.ParamMode: string(node.mode)},
					CorrectionsApplied: []string{fmt.Sprintf("firewall_mode_switch:%s", node.mode)},
					IsInjected:         true,
				})
			}
		case noSelectionCondition:
			fixes = append(fixes, toolcall.CorrectedToolCall{
				Tool:               toolcall.ToolSelectAll,
				Params:             map[string]any{},
				CorrectionsApplied: []string{"firewall_select_all"},
				IsInjected:         true,
			})
		}
	})
	return fixes
}

// clampOffending rewrites the first parameter a param clause flags,
// clamping it to the clause's bound. Reports whether anything changed.
func clampOffending(cond Condition, call *toolcall.CorrectedToolCall, snapshot *scene.SceneSnapshot) bool {
	changed := false
	ctx := evalContext{snapshot: snapshot, params: call.Params}
	walkConditions(cond, func(c Condition) {
		node, ok := c.(paramCondition)
		if !ok || changed {
			return
		}
		raw, present := call.Params[node.param]
		if !present {
			return
		}
		val, ok := numericValue(raw)
		if !ok {
			return
		}
		bound, ok := node.bound(ctx)
		if !ok {
			return
		}
		var clamped float64
		switch node.op {
		case opGT, opGE:
			clamped = bound
		case opLT, opLE:
			clamped = bound
		default:
			return
		}
		if clamped == val {
			return
		}
		params := make(map[string]any, len(call.Params))
		for k, v := range call.Params {
			params[k] = v
		}
		params[node.param] = clamped
		call.Params = params
		call.CorrectionsApplied = append(call.CorrectionsApplied,
			fmt.Sprintf("firewall_clamp_%s:%g->%g", node.param, val, clamped))
		changed = true
	})
	return changed
}

// walkConditions visits every node of a predicate tree.
func walkConditions(cond Condition, visit func(Condition)) {
	visit(cond)
	if and, ok := cond.(andCondition); ok {
		for _, child := range and.children {
			walkConditions(child, visit)
		}
	}
}
