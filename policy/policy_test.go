package policy

import (
	"context"
	"testing"

	"github.com/sharedcode/txflow/propagation"
)

func TestValidator_AllowsWhenNoActiveTransaction(t *testing.T) {
	v, err := NewValidator("!request.hasActiveTx || !request.activeRollbackOnly")
	if err != nil {
		t.Fatalf("unexpected error compiling validator: %v", err)
	}
	if err := v.Validate(context.Background(), propagation.Definition{Name: "op"}, nil); err != nil {
		t.Fatalf("expected no active transaction to be allowed, got %v", err)
	}
}

func TestValidator_RejectsByName(t *testing.T) {
	v, err := NewValidator(`request.name != "forbidden"`)
	if err != nil {
		t.Fatalf("unexpected error compiling validator: %v", err)
	}
	if err := v.Validate(context.Background(), propagation.Definition{Name: "forbidden"}, nil); err == nil {
		t.Fatal("expected forbidden definition name to be rejected")
	}
	if err := v.Validate(context.Background(), propagation.Definition{Name: "allowed"}, nil); err != nil {
		t.Fatalf("expected allowed definition name to pass, got %v", err)
	}
}

func TestNewValidator_RejectsBadExpression(t *testing.T) {
	if _, err := NewValidator("request.nonexistentField +++"); err == nil {
		t.Fatal("expected a malformed expression to fail compilation")
	}
}
