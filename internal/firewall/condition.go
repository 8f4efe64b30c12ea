package firewall

import (
	"fmt"
	"strconv"
	"strings"

	"meshrouter/internal/scene"
)

// evalContext is what a condition sees: the live (or simulated) scene
// plus the candidate call's parameters.
type evalContext struct {
	snapshot *scene.SceneSnapshot
	params   map[string]any
}

// Condition is one node of a parsed predicate tree. Trees are built
// once at rule registration and never re-parsed.
type Condition interface {
	Evaluate(ctx evalContext) bool
}

// andCondition is true when every child is true.
type andCondition struct {
	children []Condition
}

func (c andCondition) Evaluate(ctx evalContext) bool {
	for _, child := range c.children {
		if !child.Evaluate(ctx) {
			return false
		}
	}
	return true
}

// modeCondition compares the current mode against a fixed mode.
type modeCondition struct {
	mode   scene.Mode
	negate bool
}

func (c modeCondition) Evaluate(ctx evalContext) bool {
	equal := ctx.snapshot != nil && ctx.snapshot.Mode == c.mode
	if c.negate {
		return !equal
	}
	return equal
}

// noSelectionCondition is true when nothing is selected.
type noSelectionCondition struct{}

func (noSelectionCondition) Evaluate(ctx evalContext) bool {
	return ctx.snapshot == nil || !ctx.snapshot.HasSelection()
}

// noObjectsCondition is true when the scene has no objects at all.
type noObjectsCondition struct{}

func (noObjectsCondition) Evaluate(ctx evalContext) bool {
	return ctx.snapshot == nil || len(ctx.snapshot.Objects) == 0
}

type comparisonOp string

const (
	opGT comparisonOp = ">"
	opLT comparisonOp = "<"
	opGE comparisonOp = ">="
	opLE comparisonOp = "<="
	opEQ comparisonOp = "=="
	opNE comparisonOp = "!="
)

// paramCondition compares a numeric call parameter against a bound.
// The bound is either a constant or the smallest active-object
// dimension scaled by a ratio. A missing or non-numeric parameter
// never satisfies the condition.
type paramCondition struct {
	param          string
	op             comparisonOp
	value          float64
	dimensionRatio float64
	relative       bool
}

func (c paramCondition) bound(ctx evalContext) (float64, bool) {
	if !c.relative {
		return c.value, true
	}
	if ctx.snapshot == nil {
		return 0, false
	}
	minDim := ctx.snapshot.MinDimension()
	if minDim <= 0 {
		return 0, false
	}
	return minDim * c.dimensionRatio, true
}

func (c paramCondition) Evaluate(ctx evalContext) bool {
	raw, ok := ctx.params[c.param]
	if !ok {
		return false
	}
	val, ok := numericValue(raw)
	if !ok {
		return false
	}
	bound, ok := c.bound(ctx)
	if !ok {
		return false
	}
	switch c.op {
	case opGT:
		return val > bound
	case opLT:
		return val < bound
	case opGE:
		return val >= bound
	case opLE:
		return val <= bound
	case opEQ:
		return val == bound
	case opNE:
		return val != bound
	}
	return false
}

func numericValue(v any) (float64, bool) {
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

// ParseCondition compiles a condition string into a predicate tree.
// Grammar, one clause or several joined by "and":
//
//	mode == EDIT | mode != OBJECT
//	no_selection
//	no_objects
//	param:<name> <op> <number>
//	param:<name> <op> dimension_ratio:<number>
func ParseCondition(input string) (Condition, error) {
	parts := strings.Split(input, " and ")
	children := make([]Condition, 0, len(parts))
	for _, part := range parts {
		clause, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		children = append(children, clause)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return andCondition{children: children}, nil
}

func parseClause(clause string) (Condition, error) {
	switch clause {
	case "":
		return nil, fmt.Errorf("empty condition clause")
	case "no_selection":
		return noSelectionCondition{}, nil
	case "no_objects":
		return noObjectsCondition{}, nil
	}

	fields := strings.Fields(clause)
	if len(fields) != 3 {
		return nil, fmt.Errorf("condition %q: want <subject> <op> <value>", clause)
	}
	subject, op, operand := fields[0], fields[1], fields[2]

	if subject == "mode" {
		switch op {
		case "==":
			return modeCondition{mode: scene.ParseMode(operand)}, nil
		case "!=":
			return modeCondition{mode: scene.ParseMode(operand), negate: true}, nil
		default:
			return nil, fmt.Errorf("condition %q: mode supports == and != only", clause)
		}
	}

	if !strings.HasPrefix(subject, "param:") {
		return nil, fmt.Errorf("condition %q: unknown subject %q", clause, subject)
	}
	name := strings.TrimPrefix(subject, "param:")
	if name == "" {
		return nil, fmt.Errorf("condition %q: missing parameter name", clause)
	}
	cmpOp := comparisonOp(op)
	switch cmpOp {
	case opGT, opLT, opGE, opLE, opEQ, opNE:
	default:
		return nil, fmt.Errorf("condition %q: unknown operator %q", clause, op)
	}

	if ratio, ok := strings.CutPrefix(operand, "dimension_ratio:"); ok {
		r, err := strconv.ParseFloat(ratio, 64)
		if err != nil {
			return nil, fmt.Errorf("condition %q: bad ratio: %w", clause, err)
		}
		return paramCondition{param: name, op: cmpOp, dimensionRatio: r, relative: true}, nil
	}
	v, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return nil, fmt.Errorf("condition %q: bad value: %w", clause, err)
	}
	return paramCondition{param: name, op: cmpOp, value: v}, nil
}
