// Package cassandra decorates another propagation.Strategy with a durable,
// append-only completion log backed by Cassandra's t_log table. A transaction
// is logged as soon as it begins and the log entry removed once it reaches a
// terminal state, so a crash between those two points leaves a record a
// separate sweeper (see txflow.TransactionLog.GetOne) can use to finish
// cleanup instead of leaking a held lock or a half-applied resource.
package cassandra

import (
	"context"
	"encoding/json"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/propagation"
)

type logEntry struct {
	inner propagation.TransactionObject
	tid   txflow.UUID
}

type payload struct {
	Name        string `json:"name"`
	Propagation int    `json:"propagation"`
}

// Strategy wraps an inner Strategy, adding a durable completion-log entry for
// every physical transaction it begins.
type Strategy struct {
	inner propagation.Strategy
	log   txflow.TransactionLog
}

// New wraps inner with a Cassandra-backed completion log.
func New(inner propagation.Strategy, log txflow.TransactionLog) *Strategy {
	return &Strategy{inner: inner, log: log}
}

func (s *Strategy) Acquire(ctx context.Context, def propagation.Definition) (propagation.TransactionObject, error) {
	innerTx, err := s.inner.Acquire(ctx, def)
	if err != nil {
		return nil, err
	}
	return &logEntry{inner: innerTx, tid: s.log.NewUUID()}, nil
}

func (s *Strategy) IsExisting(ctx context.Context, txObj propagation.TransactionObject) bool {
	return s.inner.IsExisting(ctx, txObj.(*logEntry).inner)
}

func (s *Strategy) Begin(ctx context.Context, txObj propagation.TransactionObject, def propagation.Definition) error {
	e := txObj.(*logEntry)
	if err := s.inner.Begin(ctx, e.inner, def); err != nil {
		return err
	}
	body, err := json.Marshal(payload{Name: def.Name, Propagation: int(def.Propagation)})
	if err != nil {
		return err
	}
	return s.log.Add(ctx, e.tid, body)
}

func (s *Strategy) Suspend(ctx context.Context, txObj propagation.TransactionObject) (propagation.TransactionObject, error) {
	e := txObj.(*logEntry)
	suspendedInner, err := s.inner.Suspend(ctx, e.inner)
	if err != nil {
		return nil, err
	}
	return &logEntry{inner: suspendedInner, tid: e.tid}, nil
}

func (s *Strategy) Resume(ctx context.Context, txObj propagation.TransactionObject, suspended propagation.TransactionObject) error {
	var innerTx propagation.TransactionObject
	if txObj != nil {
		innerTx = txObj.(*logEntry).inner
	}
	return s.inner.Resume(ctx, innerTx, suspended.(*logEntry).inner)
}

func (s *Strategy) Commit(ctx context.Context, txObj propagation.TransactionObject) error {
	e := txObj.(*logEntry)
	if err := s.inner.Commit(ctx, e.inner); err != nil {
		return err
	}
	return s.log.Remove(ctx, e.tid)
}

func (s *Strategy) Rollback(ctx context.Context, txObj propagation.TransactionObject) error {
	e := txObj.(*logEntry)
	err := s.inner.Rollback(ctx, e.inner)
	_ = s.log.Remove(ctx, e.tid)
	return err
}

func (s *Strategy) SetRollbackOnly(ctx context.Context, txObj propagation.TransactionObject) error {
	return s.inner.SetRollbackOnly(ctx, txObj.(*logEntry).inner)
}

func (s *Strategy) Cleanup(ctx context.Context, txObj propagation.TransactionObject) {
	s.inner.Cleanup(ctx, txObj.(*logEntry).inner)
}

func (s *Strategy) UseSavepointForNested(ctx context.Context, txObj propagation.TransactionObject) bool {
	return s.inner.UseSavepointForNested(ctx, txObj.(*logEntry).inner)
}

func (s *Strategy) CreateSavepoint(ctx context.Context, txObj propagation.TransactionObject) (interface{}, error) {
	return s.inner.CreateSavepoint(ctx, txObj.(*logEntry).inner)
}

func (s *Strategy) RollbackToSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	return s.inner.RollbackToSavepoint(ctx, txObj.(*logEntry).inner, savepoint)
}

func (s *Strategy) ReleaseSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	return s.inner.ReleaseSavepoint(ctx, txObj.(*logEntry).inner, savepoint)
}

func (s *Strategy) ShouldCommitOnGlobalRollbackOnly() bool {
	return s.inner.ShouldCommitOnGlobalRollbackOnly()
}
