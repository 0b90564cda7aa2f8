package propagation

import (
	"context"
	"errors"
	"sync"
)

// Flusher is an optional interface a Strategy or Callback can implement to
// receive Status.Flush() notifications: a request to push pending work to the
// underlying resource without completing the transaction.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Status is the mutable handle a caller holds for the duration of a
// transactional scope. It is returned by WorkflowEngine.GetTransaction and
// passed back to Commit or Rollback.
type Status struct {
	mu sync.Mutex

	engine     *WorkflowEngine
	registry   *SyncRegistry
	txObj      TransactionObject
	definition Definition

	newTransaction bool
	// owner reports whether this Status drives the physical completion
	// (Strategy.Commit/Rollback, or the no-op completion of a transactionless
	// scope) rather than merely participating in one owned by an outer
	// Status. It is distinct from newTransaction: a NESTED scope using a
	// savepoint is also an owner of its own (sub-)completion.
	owner          bool
	rollbackOnly   bool
	completed      bool
	savepoint      interface{}
	usingSavepoint bool
	suspended      *SuspendedBundle
	parent         *Status
}

// IsNewTransaction reports whether this scope began a new physical
// transaction, as opposed to participating in one already active.
func (s *Status) IsNewTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTransaction
}

// HasSavepoint reports whether this scope is a NESTED scope implemented via a
// savepoint on the outer transaction.
func (s *Status) HasSavepoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingSavepoint
}

// SetRollbackOnly marks the transaction so that any later commit attempt,
// however deep the call stack, results in rollback instead. Once set, it can
// never be cleared; this is a monotonic one-way transition enforced by never
// exposing a method to unset it.
func (s *Status) SetRollbackOnly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackOnly = true
}

// IsRollbackOnly reports whether SetRollbackOnly has been called on this
// transaction by any participant.
func (s *Status) IsRollbackOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackOnly
}

// IsCompleted reports whether the transaction has already committed or
// rolled back.
func (s *Status) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// RegisterCallback attaches a Callback to this transaction. The callback is
// owned by the SyncRegistry's current synchronization frame, not by this
// Status: if this Status is participating in a transaction owned by an outer
// Status, cb is observed once, by the owner's eventual physical completion,
// rather than at this Status's own Commit or Rollback. Callbacks fire in
// registration order at every hook, including AfterCompletion.
func (s *Status) RegisterCallback(cb Callback) {
	s.registry.register(cb)
}

// Flush asks the underlying Strategy and any Flusher-implementing callbacks
// to push pending work without completing the transaction. It is best-effort:
// every Flusher is invoked regardless of earlier failures, and the returned
// error joins every failure that occurred.
func (s *Status) Flush(ctx context.Context) error {
	s.mu.Lock()
	txObj := s.txObj
	s.mu.Unlock()
	callbacks := s.registry.getCallbacks()

	var errs []error
	if f, ok := s.engine.strategy.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = txObj
	for _, cb := range callbacks {
		if f, ok := cb.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CreateSavepoint creates a savepoint on the active physical transaction for
// manual, mid-scope rollback points distinct from NESTED propagation.
func (s *Status) CreateSavepoint(ctx context.Context) (interface{}, error) {
	s.mu.Lock()
	txObj := s.txObj
	s.mu.Unlock()
	return s.engine.strategy.CreateSavepoint(ctx, txObj)
}

// RollbackToSavepoint rolls the active physical transaction back to sp.
func (s *Status) RollbackToSavepoint(ctx context.Context, sp interface{}) error {
	s.mu.Lock()
	txObj := s.txObj
	s.mu.Unlock()
	return s.engine.strategy.RollbackToSavepoint(ctx, txObj, sp)
}

// ReleaseSavepoint discards sp once it is no longer needed.
func (s *Status) ReleaseSavepoint(ctx context.Context, sp interface{}) error {
	s.mu.Lock()
	txObj := s.txObj
	s.mu.Unlock()
	return s.engine.strategy.ReleaseSavepoint(ctx, txObj, sp)
}
