// Package policy implements propagation.ParticipationValidator using CEL
// expressions, so operators can gate which Definitions are allowed to
// participate in, suspend, or start a transaction without recompiling the
// engine. The propagation package itself never imports cel-go; it only sees
// the ParticipationValidator interface.
package policy

import (
	"context"
	"fmt"

	"github.com/sharedcode/txflow/cel"
	"github.com/sharedcode/txflow/propagation"
)

// Validator evaluates a boolean CEL expression against a request map
// describing the incoming Definition and, if one is active, the current
// transaction's read-only/rollback-only flags; the active transaction's name
// is not part of the request. The expression must
// evaluate to true to allow participation.
type Validator struct {
	eval *cel.Evaluator
}

// NewValidator compiles expression, which must reference the "request"
// variable and evaluate to a bool, e.g. `!request.hasActiveTx || !request.activeRollbackOnly`.
func NewValidator(expression string) (*Validator, error) {
	eval, err := cel.NewEvaluator("participation-policy", expression, "request")
	if err != nil {
		return nil, fmt.Errorf("compiling participation policy: %w", err)
	}
	return &Validator{eval: eval}, nil
}

// Validate implements propagation.ParticipationValidator.
func (v *Validator) Validate(ctx context.Context, def propagation.Definition, existing *propagation.Status) error {
	req := map[string]any{
		"name":               def.Name,
		"propagation":        def.Propagation.String(),
		"readOnly":           def.ReadOnly,
		"hasActiveTx":        existing != nil,
		"activeReadOnly":     existing != nil && existing.IsNewTransaction() == false && existing.IsRollbackOnly() == false,
		"activeRollbackOnly": existing != nil && existing.IsRollbackOnly(),
	}
	allowed, err := v.eval.EvaluateBool(req)
	if err != nil {
		return fmt.Errorf("evaluating participation policy: %w", err)
	}
	if !allowed {
		return fmt.Errorf("participation policy %q rejected definition %q", v.eval.Expression, def.Name)
	}
	return nil
}
