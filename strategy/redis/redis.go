// Package redis implements propagation.Strategy using a distributed lock held
// in Redis to coordinate the transaction's exclusive ownership of its key
// set, and the txflow.CacheRestartHelper to surface a TransactionSystem error
// if the lock backend restarted mid-transaction and may have lost its locks.
package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/propagation"
)

// transaction is the TransactionObject this Strategy hands out. Keys is the
// set of logical resource names the caller intends to touch; the Strategy
// locks all of them for the lifetime of the physical transaction.
type transaction struct {
	id       int64
	keys     []string
	lockKeys []*txflow.LockKey
	locked   bool
}

// Strategy coordinates transactions through a shared txflow.Cache, typically
// backed by Redis. Keys supplies the resource names a transaction about to be
// acquired will need locked; it is consulted once per Acquire call.
type Strategy struct {
	cache    txflow.Cache
	restart  *txflow.CacheRestartHelper
	keysFunc func(ctx context.Context, def propagation.Definition) []string
	nextID   atomic.Int64
}

// New builds a Strategy against cache. keysFunc resolves the set of resource
// names a given Definition's transaction will lock; callers that don't need
// per-resource locking can return a single constant key.
func New(cache txflow.Cache, keysFunc func(ctx context.Context, def propagation.Definition) []string) *Strategy {
	return &Strategy{
		cache:    cache,
		restart:  txflow.NewCacheRestartHelper(cache),
		keysFunc: keysFunc,
	}
}

func (s *Strategy) Acquire(ctx context.Context, def propagation.Definition) (propagation.TransactionObject, error) {
	if restarted, err := s.restart.IsRestarted(ctx); err != nil {
		return nil, err
	} else if restarted {
		return nil, fmt.Errorf("lock backend restarted, existing locks may be lost")
	}
	return &transaction{
		id:   s.nextID.Add(1),
		keys: s.keysFunc(ctx, def),
	}, nil
}

func (s *Strategy) IsExisting(ctx context.Context, txObj propagation.TransactionObject) bool {
	t, ok := txObj.(*transaction)
	return ok && t != nil && t.locked
}

func (s *Strategy) Begin(ctx context.Context, txObj propagation.TransactionObject, def propagation.Definition) error {
	t := txObj.(*transaction)
	t.lockKeys = s.cache.CreateLockKeys(t.keys)
	timeout := time.Duration(def.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ok, err := s.cache.Lock(ctx, timeout, t.lockKeys)
	if err != nil {
		return err
	}
	if !ok {
		_ = s.cache.Unlock(ctx, t.lockKeys)
		return txflow.Error{
			Code:     txflow.LockAcquisitionFailure,
			Err:      fmt.Errorf("could not acquire lock for transaction keys %v", t.keys),
			UserData: t.keys,
		}
	}
	t.locked = true
	return nil
}

// Suspend releases the lock, since Redis locks aren't nestable across a
// suspended/resumed pair; Resume re-acquires it.
func (s *Strategy) Suspend(ctx context.Context, txObj propagation.TransactionObject) (propagation.TransactionObject, error) {
	t := txObj.(*transaction)
	if err := s.cache.Unlock(ctx, t.lockKeys); err != nil {
		return nil, err
	}
	t.locked = false
	return t, nil
}

func (s *Strategy) Resume(ctx context.Context, txObj propagation.TransactionObject, suspended propagation.TransactionObject) error {
	t := suspended.(*transaction)
	ok, err := s.cache.Lock(ctx, 30*time.Second, t.lockKeys)
	if err != nil {
		return err
	}
	if !ok {
		return txflow.Error{
			Code:     txflow.LockAcquisitionFailure,
			Err:      fmt.Errorf("could not re-acquire lock for resumed transaction keys %v", t.keys),
			UserData: t.keys,
		}
	}
	t.locked = true
	return nil
}

func (s *Strategy) Commit(ctx context.Context, txObj propagation.TransactionObject) error {
	t := txObj.(*transaction)
	if restarted, err := s.restart.IsRestarted(ctx); err != nil {
		return err
	} else if restarted {
		return fmt.Errorf("lock backend restarted before commit, cannot guarantee exclusivity")
	}
	_ = t
	return nil
}

func (s *Strategy) Rollback(ctx context.Context, txObj propagation.TransactionObject) error {
	return nil
}

func (s *Strategy) SetRollbackOnly(ctx context.Context, txObj propagation.TransactionObject) error {
	return nil
}

func (s *Strategy) Cleanup(ctx context.Context, txObj propagation.TransactionObject) {
	t := txObj.(*transaction)
	if t.locked {
		_ = s.cache.Unlock(ctx, t.lockKeys)
		t.locked = false
	}
}

// UseSavepointForNested is false: a bare distributed lock has no savepoint
// concept, so NESTED scopes fall back to REQUIRES_NEW-style suspend/begin.
func (s *Strategy) UseSavepointForNested(ctx context.Context, txObj propagation.TransactionObject) bool {
	return false
}

func (s *Strategy) CreateSavepoint(ctx context.Context, txObj propagation.TransactionObject) (interface{}, error) {
	return nil, fmt.Errorf("redis strategy does not support savepoints")
}

func (s *Strategy) RollbackToSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	return fmt.Errorf("redis strategy does not support savepoints")
}

func (s *Strategy) ReleaseSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	return fmt.Errorf("redis strategy does not support savepoints")
}

func (s *Strategy) ShouldCommitOnGlobalRollbackOnly() bool {
	return false
}
