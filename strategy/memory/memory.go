// Package memory implements propagation.Strategy entirely in process memory,
// using a stdlib-only mutex-guarded ledger in place of a physical resource
// driver. It is the reference Strategy: useful for tests and for callers that
// only need propagation semantics around an in-process unit of work, not a
// durable store.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sharedcode/txflow/propagation"
)

// transaction is the TransactionObject this Strategy hands out.
type transaction struct {
	id         int64
	begun      bool
	rolledBack bool
	committed  bool

	mu         sync.Mutex
	savepoints []int
	writes     int
}

// Strategy is a propagation.Strategy that tracks physical transaction state
// purely in memory. It does not look at the Definition: name, isolation and
// read-only are neither recorded nor enforced, since there is no underlying
// resource to isolate against.
type Strategy struct {
	nextID atomic.Int64
}

// New returns a ready-to-use in-memory Strategy.
func New() *Strategy {
	return &Strategy{}
}

func (s *Strategy) Acquire(ctx context.Context, def propagation.Definition) (propagation.TransactionObject, error) {
	return &transaction{id: s.nextID.Add(1)}, nil
}

func (s *Strategy) IsExisting(ctx context.Context, txObj propagation.TransactionObject) bool {
	t, ok := txObj.(*transaction)
	return ok && t != nil && t.begun && !t.committed && !t.rolledBack
}

func (s *Strategy) Begin(ctx context.Context, txObj propagation.TransactionObject, def propagation.Definition) error {
	t := txObj.(*transaction)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begun = true
	return nil
}

func (s *Strategy) Suspend(ctx context.Context, txObj propagation.TransactionObject) (propagation.TransactionObject, error) {
	// The in-memory ledger needs no detachment work; the transaction object
	// itself is the suspended token.
	return txObj, nil
}

func (s *Strategy) Resume(ctx context.Context, txObj propagation.TransactionObject, suspended propagation.TransactionObject) error {
	return nil
}

func (s *Strategy) Commit(ctx context.Context, txObj propagation.TransactionObject) error {
	t := txObj.(*transaction)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = true
	return nil
}

func (s *Strategy) Rollback(ctx context.Context, txObj propagation.TransactionObject) error {
	t := txObj.(*transaction)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolledBack = true
	return nil
}

func (s *Strategy) SetRollbackOnly(ctx context.Context, txObj propagation.TransactionObject) error {
	return nil
}

func (s *Strategy) Cleanup(ctx context.Context, txObj propagation.TransactionObject) {}

func (s *Strategy) UseSavepointForNested(ctx context.Context, txObj propagation.TransactionObject) bool {
	return true
}

func (s *Strategy) CreateSavepoint(ctx context.Context, txObj propagation.TransactionObject) (interface{}, error) {
	t := txObj.(*transaction)
	t.mu.Lock()
	defer t.mu.Unlock()
	mark := t.writes
	t.savepoints = append(t.savepoints, mark)
	return len(t.savepoints) - 1, nil
}

func (s *Strategy) RollbackToSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	t := txObj.(*transaction)
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := savepoint.(int)
	t.writes = t.savepoints[idx]
	return nil
}

func (s *Strategy) ReleaseSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	return nil
}

func (s *Strategy) ShouldCommitOnGlobalRollbackOnly() bool {
	return false
}
