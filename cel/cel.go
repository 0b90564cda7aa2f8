// Package cel wraps compiled CEL (Common Expression Language) programs used
// to evaluate caller-supplied expressions against a single named map
// variable, without requiring the caller to depend on cel-go directly.
package cel

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// Evaluator holds a CEL expression and compiled program that evaluates a
// single map-typed variable named Variable.
type Evaluator struct {
	Expression string
	Variable   string
	program    cel.Program
}

// NewEvaluator compiles expression against a single variable named varName,
// typed as map[string]any in the CEL environment.
func NewEvaluator(name string, expression string, varName string) (*Evaluator, error) {
	if name == "" {
		return nil, fmt.Errorf("name can't be emptry string")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression can't be emptry string")
	}
	if varName == "" {
		return nil, fmt.Errorf("varName can't be emptry string")
	}

	env, err := cel.NewEnv(
		// Declare the single variable the expression is evaluated against.
		cel.Variable(varName, cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %v", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return &Evaluator{
		Expression: expression,
		Variable:   varName,
		program:    p,
	}, nil
}

// EvaluateBool executes the compiled CEL expression against vars and
// converts the result to bool.
func (e *Evaluator) EvaluateBool(vars map[string]any) (bool, error) {
	out, _, err := e.program.Eval(map[string]any{e.Variable: vars})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression: %v", err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(false))
	if err != nil {
		return false, fmt.Errorf("error ConvertToNative, got err: %v", err)
	}
	v, ok := nv.(bool)
	if !ok {
		return false, fmt.Errorf("error converting to bool, nv: %v", nv)
	}
	return v, nil
}
