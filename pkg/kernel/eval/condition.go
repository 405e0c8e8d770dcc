package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Operator is a comparison operator allowed in a when predicate.
type Operator string

const (
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
)

// Condition is a parsed when predicate: {<op>: [left, right]}.
type Condition struct {
	Op    Operator
	Left  Node
	Right Node
}

// ordered operators are compiled once; operands are bound per evaluation.
var orderedPrograms = map[Operator]*vm.Program{
	OpGt:  mustCompile("a > b"),
	OpGte: mustCompile("a >= b"),
	OpLt:  mustCompile("a < b"),
	OpLte: mustCompile("a <= b"),
}

func mustCompile(src string) *vm.Program {
	program, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		panic(fmt.Sprintf("compile %q: %v", src, err))
	}
	return program
}

// Operators lists the supported operators.
func Operators() []Operator {
	return []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte}
}

// ParseCondition parses a when predicate. It must be a single-key object
// whose key is a supported operator and whose value is a two-element
// operand array.
func ParseCondition(when map[string]any) (*Condition, error) {
	if len(when) != 1 {
		keys := make([]string, 0, len(when))
		for k := range when {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("when must have exactly one operator, got %d (%s)", len(when), strings.Join(keys, ", "))
	}
	for key, raw := range when {
		op := Operator(key)
		if !supported(op) {
			return nil, fmt.Errorf("unknown operator %q", key)
		}
		operands, ok := raw.([]any)
		if !ok {
			if g, gok := generic(raw); gok {
				operands, ok = g.([]any)
			}
		}
		if !ok {
			return nil, fmt.Errorf("%s operands must be an array, got %T", key, raw)
		}
		if len(operands) != 2 {
			return nil, fmt.Errorf("%s takes 2 operands, got %d", key, len(operands))
		}
		return &Condition{Op: op, Left: Parse(operands[0]), Right: Parse(operands[1])}, nil
	}
	return nil, fmt.Errorf("empty when")
}

func supported(op Operator) bool {
	if op == OpEq || op == OpNe {
		return true
	}
	_, ok := orderedPrograms[op]
	return ok
}

// Eval resolves both operands against scope and compares them. Operands of
// mismatched or non-orderable types make the predicate false.
func (c *Condition) Eval(scope *Scope) bool {
	left, lok := ResolveNode(c.Left, scope)
	right, rok := ResolveNode(c.Right, scope)

	switch c.Op {
	case OpEq:
		return equalDefined(left, lok, right, rok)
	case OpNe:
		return !equalDefined(left, lok, right, rok)
	}

	if !lok || !rok {
		return false
	}
	program := orderedPrograms[c.Op]
	out, err := expr.Run(program, map[string]any{"a": left, "b": right})
	if err != nil {
		return false
	}
	result, _ := out.(bool)
	return result
}

// equalDefined treats two undefined operands as equal and an undefined
// operand as unequal to any defined value, including nil.
func equalDefined(a any, aok bool, b any, bok bool) bool {
	if !aok || !bok {
		return aok == bok
	}
	return Equal(a, b)
}

// EvalWhen parses and evaluates a when predicate. A nil or empty predicate
// is always true.
func EvalWhen(when map[string]any, scope *Scope) (bool, error) {
	if len(when) == 0 {
		return true, nil
	}
	cond, err := ParseCondition(when)
	if err != nil {
		return false, err
	}
	return cond.Eval(scope), nil
}
