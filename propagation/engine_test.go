package propagation

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/txflow/strategy/memory"
)

func newEngine() *WorkflowEngine {
	return NewWorkflowEngine(memory.New(), DefaultEngineOptions())
}

type recordingCallback struct {
	order *[]string
	label string
}

func (c recordingCallback) BeforeCommit(readOnly bool) { *c.order = append(*c.order, c.label+":BeforeCommit") }
func (c recordingCallback) BeforeCompletion()          { *c.order = append(*c.order, c.label+":BeforeCompletion") }
func (c recordingCallback) AfterCommit()               { *c.order = append(*c.order, c.label+":AfterCommit") }
func (c recordingCallback) AfterCompletion(status CompletionStatus) {
	*c.order = append(*c.order, c.label+":AfterCompletion:"+status.String())
}
func (c recordingCallback) Suspend() { *c.order = append(*c.order, c.label+":Suspend") }
func (c recordingCallback) Resume()  { *c.order = append(*c.order, c.label+":Resume") }

func TestRequired_NoExisting_BeginsNewTransaction(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	st, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.IsNewTransaction() {
		t.Fatal("expected REQUIRED with no existing transaction to start a new one")
	}
	if err := e.Commit(ctx, st); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !st.IsCompleted() {
		t.Fatal("expected status to be completed after commit")
	}
}

func TestRequired_WithExisting_Joins(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "inner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.IsNewTransaction() {
		t.Fatal("expected inner REQUIRED to join the active transaction")
	}
	if err := e.Commit(ctx, inner); err != nil {
		t.Fatalf("inner commit failed: %v", err)
	}
	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
}

func TestMandatory_NoExisting_Fails(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	_, err := e.GetTransaction(ctx, Definition{Propagation: MANDATORY, Name: "m"})
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != IllegalTransactionState {
		t.Fatalf("expected IllegalTransactionState, got %v", err)
	}
}

func TestNever_WithExisting_Fails(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = e.GetTransaction(ctx, Definition{Propagation: NEVER, Name: "never"})
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != IllegalTransactionState {
		t.Fatalf("expected IllegalTransactionState, got %v", err)
	}
	if err := e.Rollback(ctx, outer); err != nil {
		t.Fatalf("cleanup rollback failed: %v", err)
	}
}

func TestRequiresNew_SuspendsAndResumes(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRES_NEW, Name: "inner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inner.IsNewTransaction() {
		t.Fatal("expected REQUIRES_NEW to start a new transaction")
	}
	if inner.txObj == outer.txObj {
		t.Fatal("expected REQUIRES_NEW to use a distinct transaction object")
	}
	if err := e.Commit(ctx, inner); err != nil {
		t.Fatalf("inner commit failed: %v", err)
	}
	if registryFrom(ctx).active != outer {
		t.Fatal("expected outer transaction to be restored as active after inner completes")
	}
	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
}

func TestNotSupported_NoExisting_RunsWithoutTransaction(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	st, err := e.GetTransaction(ctx, Definition{Propagation: NOT_SUPPORTED, Name: "ns"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.txObj != nil {
		t.Fatal("expected NOT_SUPPORTED with no existing transaction to run without one")
	}
	if err := e.Commit(ctx, st); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestNested_UsesSavepoint(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested, err := e.GetTransaction(ctx, Definition{Propagation: NESTED, Name: "nested"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nested.HasSavepoint() {
		t.Fatal("expected NESTED to use a savepoint against the in-memory strategy")
	}
	if err := e.Commit(ctx, nested); err != nil {
		t.Fatalf("nested commit failed: %v", err)
	}
	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
}

func TestNested_RollbackOnly_RollsBackToSavepointOnly(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested, err := e.GetTransaction(ctx, Definition{Propagation: NESTED, Name: "nested"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested.SetRollbackOnly()

	err = e.Commit(ctx, nested)
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != UnexpectedRollback {
		t.Fatalf("expected UnexpectedRollback, got %v", err)
	}
	if outer.IsRollbackOnly() {
		t.Fatal("a nested savepoint rollback must not propagate rollback-only to the outer transaction")
	}
	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit should still succeed: %v", err)
	}
}

func TestParticipant_RollbackOnly_PropagatesToOwner(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "inner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Rollback(ctx, inner); err != nil {
		t.Fatalf("inner rollback failed: %v", err)
	}
	if !outer.IsRollbackOnly() {
		t.Fatal("expected a participant's rollback to mark the owning transaction rollback-only")
	}

	err = e.Commit(ctx, outer)
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != UnexpectedRollback {
		t.Fatalf("expected UnexpectedRollback committing a rollback-only owner, got %v", err)
	}
}

func TestCommit_Twice_IsIllegal(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	st, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Commit(ctx, st); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	err = e.Commit(ctx, st)
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != IllegalTransactionState {
		t.Fatalf("expected IllegalTransactionState on double commit, got %v", err)
	}
}

func TestCallbackOrdering_AfterCompletionIsRegistrationOrder(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	var order []string
	st, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st.RegisterCallback(recordingCallback{order: &order, label: "first"})
	st.RegisterCallback(recordingCallback{order: &order, label: "second"})

	if err := e.Commit(ctx, st); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	wantLast := []string{"first:AfterCompletion:Committed", "second:AfterCompletion:Committed"}
	got := order[len(order)-2:]
	for i := range wantLast {
		if got[i] != wantLast[i] {
			t.Fatalf("expected AfterCompletion in registration order, got %v", order)
		}
	}
}

func TestCallback_RegisteredByParticipant_FiresOnceAtOwnerCommit(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	var order []string
	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "inner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner.RegisterCallback(recordingCallback{order: &order, label: "innerCB"})

	if err := e.Commit(ctx, inner); err != nil {
		t.Fatalf("inner commit failed: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("expected a participant's callback to stay silent at its own commit, got %v", order)
	}

	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
	want := []string{"innerCB:BeforeCompletion", "innerCB:BeforeCommit", "innerCB:AfterCommit", "innerCB:AfterCompletion:Committed"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestCallback_SuspendAndResume_FireAroundRequiresNew(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	var order []string
	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outer.RegisterCallback(recordingCallback{order: &order, label: "outerCB"})

	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRES_NEW, Name: "inner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != "outerCB:Suspend" {
		t.Fatalf("expected outerCB to observe Suspend before REQUIRES_NEW begins, got %v", order)
	}

	if err := e.Commit(ctx, inner); err != nil {
		t.Fatalf("inner commit failed: %v", err)
	}
	if len(order) != 2 || order[1] != "outerCB:Resume" {
		t.Fatalf("expected outerCB to observe Resume once the inner transaction completes, got %v", order)
	}

	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
	if order[len(order)-1] != "outerCB:AfterCompletion:Committed" {
		t.Fatalf("expected outerCB to still fire on the outer's own commit after resuming, got %v", order)
	}
}

func TestSyncModeValidate_RejectsIsolationMismatch(t *testing.T) {
	opts := DefaultEngineOptions()
	opts.SyncMode = SyncModeValidate
	e := NewWorkflowEngine(memory.New(), opts)
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer", Isolation: READ_COMMITTED})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "inner", Isolation: SERIALIZABLE})
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != IllegalTransactionState {
		t.Fatalf("expected IllegalTransactionState on isolation mismatch, got %v", err)
	}
	if err := e.Rollback(ctx, outer); err != nil {
		t.Fatalf("cleanup rollback failed: %v", err)
	}
}

func TestSyncModeLenient_IgnoresIsolationMismatch(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	outer, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "outer", Isolation: READ_COMMITTED})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Name: "inner", Isolation: SERIALIZABLE})
	if err != nil {
		t.Fatalf("expected lenient sync mode to allow the mismatch, got %v", err)
	}
	if err := e.Commit(ctx, inner); err != nil {
		t.Fatalf("inner commit failed: %v", err)
	}
	if err := e.Commit(ctx, outer); err != nil {
		t.Fatalf("outer commit failed: %v", err)
	}
}

func TestInvalidTimeout_RejectedByValidate(t *testing.T) {
	e := newEngine()
	ctx := WithRegistry(context.Background())

	_, err := e.GetTransaction(ctx, Definition{Propagation: REQUIRED, Timeout: -2})
	var propErr *Error
	if !errors.As(err, &propErr) || propErr.Kind != InvalidTimeout {
		t.Fatalf("expected InvalidTimeout, got %v", err)
	}
}
