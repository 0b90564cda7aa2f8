// Package s3 decorates another propagation.Strategy with a durable savepoint
// marker written to S3: whenever a NESTED scope creates a savepoint through
// the inner Strategy, this Strategy additionally writes an erasure-coded
// marker object recording that the savepoint exists, so a process that
// crashes between a savepoint and its rollback/release can discover, from the
// bucket's contents alone, which savepoints were still open.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/fs"
	"github.com/sharedcode/txflow/fs/erasure"
	"github.com/sharedcode/txflow/propagation"
)

// Strategy wraps an inner Strategy, mirroring every savepoint it creates as a
// durable, erasure-coded marker object in an S3-compatible bucket.
type Strategy struct {
	inner    propagation.Strategy
	client   *s3.Client
	bucket   string
	erasure  *erasure.Erasure
	shardKey func(tid string, shard int) string
}

// New wraps inner, writing savepoint markers for bucket via client, encoded
// according to cfg's data/parity shard counts.
func New(inner propagation.Strategy, client *s3.Client, bucket string, cfg fs.ErasureCodingConfig) (*Strategy, error) {
	enc, err := erasure.NewErasure(cfg.DataShardsCount, cfg.ParityShardsCount)
	if err != nil {
		return nil, err
	}
	return &Strategy{
		inner:   inner,
		client:  client,
		bucket:  bucket,
		erasure: enc,
		shardKey: func(tid string, shard int) string {
			return fmt.Sprintf("savepoint/%s/shard-%d", tid, shard)
		},
	}, nil
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

// marker identifies a durable savepoint: the inner Strategy's own handle plus
// the S3 key prefix the shards were written under.
type marker struct {
	inner propagation.TransactionObject
	tid   string
}

func (s *Strategy) CreateSavepoint(ctx context.Context, txObj propagation.TransactionObject) (interface{}, error) {
	inner, err := s.inner.CreateSavepoint(ctx, txObj)
	if err != nil {
		return nil, err
	}
	tid := txflow.NewUUID().String()
	body, err := encodeMarker(inner)
	if err != nil {
		return nil, err
	}
	shards, err := s.erasure.Encode(body)
	if err != nil {
		return nil, err
	}
	runner := txflow.NewTaskRunner(ctx, len(shards))
	for i, shard := range shards {
		i, shard := i, shard
		runner.Go(func() error {
			_, err := s.client.PutObject(runner.GetContext(), &s3.PutObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.shardKey(tid, i)),
				Body:   bytes.NewReader(shard),
			})
			if err != nil {
				return fmt.Errorf("writing savepoint shard %d: %w", i, err)
			}
			return nil
		})
	}
	if err := runner.Wait(); err != nil {
		return nil, err
	}
	return &marker{inner: inner, tid: tid}, nil
}

func (s *Strategy) RollbackToSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	m := savepoint.(*marker)
	if err := s.inner.RollbackToSavepoint(ctx, txObj, m.inner); err != nil {
		return err
	}
	return s.deleteMarker(ctx, m.tid)
}

func (s *Strategy) ReleaseSavepoint(ctx context.Context, txObj propagation.TransactionObject, savepoint interface{}) error {
	m := savepoint.(*marker)
	if err := s.inner.ReleaseSavepoint(ctx, txObj, m.inner); err != nil {
		return err
	}
	return s.deleteMarker(ctx, m.tid)
}

func (s *Strategy) deleteMarker(ctx context.Context, tid string) error {
	for i := 0; i < s.erasure.DataShardsCount+s.erasure.ParityShardsCount; i++ {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.shardKey(tid, i)),
		})
	}
	return nil
}

func (s *Strategy) ShouldCommitOnGlobalRollbackOnly() bool {
	return s.inner.ShouldCommitOnGlobalRollbackOnly()
}

func encodeMarker(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := fmt.Fprintf(&buf, "%v", v); err != nil {
		return nil, err
	}
	return io.ReadAll(&buf)
}
