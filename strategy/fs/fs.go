// Package fs decorates another propagation.Strategy with a durable savepoint
// marker written as erasure-coded shards across multiple local drives, so a
// single drive failure doesn't lose track of an open savepoint. It mirrors
// strategy/s3's approach but targets local multi-drive deployments instead
// of an S3-compatible bucket.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/fs"
	"github.com/sharedcode/txflow/fs/erasure"
	"github.com/sharedcode/txflow/propagation"
)

// Strategy wraps an inner Strategy, mirroring every savepoint it creates as
// erasure-coded shard files spread across cfg.BaseFolderPathsAcrossDrives.
type Strategy struct {
	inner   propagation.Strategy
	cfg     fs.ErasureCodingConfig
	erasure *erasure.Erasure
}

// New wraps inner, writing savepoint marker shards according to cfg.
func New(inner propagation.Strategy, cfg fs.ErasureCodingConfig) (*Strategy, error) {
	if len(cfg.BaseFolderPathsAcrossDrives) == 0 {
		return nil, fmt.Errorf("at least one base folder path is required")
	}
	enc, err := erasure.NewErasure(cfg.DataShardsCount, cfg.ParityShardsCount)
	if err != nil {
		return nil, err
	}
	return &Strategy{inner: inner, cfg: cfg, erasure: enc}, nil
}

func (s *Strategy) Acquire(ctx context.Context, def propagation.Definition) (propagation.TransactionObject, error) {
	return s.inner.Acquire(ctx, def)
}

func (s *Strategy) IsExisting(ctx context.Context, txObj propagation.TransactionObject) bool {
	return s.inner.IsExisting(ctx, txObj)
}

func (s *Strategy) Begin(ctx context.Context, txObj propagation.TransactionObject, def propagation.Definition) error {
	return s.inner.Begin(ctx, txObj, def)
}

func (s *Strategy) Suspend(ctx context.Context, txObj propagation.TransactionObject) (propagation.TransactionObject, error) {
	return s.inner.Suspend(ctx, txObj)
}

func (s *Strategy) Resume(ctx context.Context, txObj propagation.TransactionObject, suspended propagation.TransactionObject) error {
	return s.inner.Resume(ctx, txObj, suspended)
}

func (s *Strategy) Commit(ctx context.Context, txObj propagation.TransactionObject) error {
	return s.inner.Commit(ctx, txObj)
}

func (s *Strategy) Rollback(ctx context.Context, txObj propagation.TransactionObject) error {
	return s.inner.Rollback(ctx, txObj)
}

func (s *Strategy) SetRollbackOnly(ctx context.Context, txObj propagation.TransactionObject) error {
	return s.inner.SetRollbackOnly(ctx, txObj)
}

func (s *Strategy) Cleanup(ctx context.Context, txObj propagation.TransactionObject) {
	s.inner.Cleanup(ctx, txObj)
}

func (s *Strategy) UseSavepointForNested(ctx context.Context, txObj propagation.TransactionObject) bool {
	return s.inner.UseSavepointForNested(ctx, txObj)
}

// marker identifies a durable savepoint: the inner Strategy's own handle
// plus the id its shard files were written under.
type marker struct {
	inner propagation.TransactionObject
	tid   string
}

func (s *Strategy) shardPath(tid string, shard int) string {
	base := s.cfg.BaseFolderPathsAcrossDrives[shard%len(s.cfg.BaseFolderPathsAcrossDrives)]
	return filepath.Join(base, fmt.Sprintf("savepoint-%s-shard-%d", tid, shard))
}

func (s *Strategy) CreateSavepoint(ctx context.Context, txObj propagation.TransactionObject) (interface{}, error) {
	inner, err := s.inner.CreateSavepoint(ctx, txObj)
	if err != nil {
		return nil, err
	}
	tid := txflow.NewUUID().String()
	body := []byte(fmt.Sprintf("%v", inner))
	shards, err := s.erasure.Encode(body)
	if err != nil {
		return nil, err
	}

	var failed int
	for i, shard := range shards {
		if err := os.WriteFile(s.shardPath(tid, i), shard, 0o600); err != nil {
			if !txflow.IsFailoverQualifiedIOError(err) {
				return nil, txflow.Error{Code: txflow.FileIOError, Err: fmt.Errorf("writing savepoint shard %d: %w", i, err), UserData: tid}
			}
			// The drive backing this shard looks unhealthy; erasure coding
			// tolerates up to ParityShardsCount missing shards, so keep going.
			failed++
			if failed > s.erasure.ParityShardsCount {
				return nil, txflow.Error{Code: txflow.FileIOError, Err: fmt.Errorf("writing savepoint shard %d: %w (exceeds tolerable drive failures)", i, err), UserData: tid}
			}
		}
	}
	return &marker{inner: inner, tid: tid}, nil
}

func (s *Strategy) RollbackToSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	m := savepoint.(*marker)
	if err := s.inner.RollbackToSavepoint(ctx, txObj, m.inner); err != nil {
		return err
	}
	s.deleteMarker(m.tid)
	return nil
}

func (s *Strategy) ReleaseSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	m := savepoint.(*marker)
	if err := s.inner.ReleaseSavepoint(ctx, txObj, m.inner); err != nil {
		return err
	}
	s.deleteMarker(m.tid)
	return nil
}

// deleteMarker removes every shard file for tid, tolerating the drive
// failures cfg.RepairCorruptedShards is meant to recover from: a missing or
// already-unreachable shard is not an error at cleanup time.
func (s *Strategy) deleteMarker(tid string) {
	for i := 0; i < s.cfg.DataShardsCount+s.cfg.ParityShardsCount; i++ {
		if err := os.Remove(s.shardPath(tid, i)); err != nil && !os.IsNotExist(err) && !txflow.IsFailoverQualifiedIOError(err) {
			// Leaves an orphaned shard file behind; harmless, and the next
			// crash-recovery sweep of the wrapped Strategy's own log will
			// not look for it since the savepoint itself is already resolved.
			_ = err
		}
	}
}

func (s *Strategy) ShouldCommitOnGlobalRollbackOnly() bool {
	return s.inner.ShouldCommitOnGlobalRollbackOnly()
}
