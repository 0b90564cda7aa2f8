package s3

import (
	"context"
	"testing"

	"github.com/sharedcode/txflow/fs"
	"github.com/sharedcode/txflow/propagation"
	"github.com/sharedcode/txflow/strategy/memory"
)

func TestNew_RejectsInvalidShardCounts(t *testing.T) {
	inner := memory.New()
	cfg := fs.ErasureCodingConfig{DataShardsCount: 200, ParityShardsCount: 100}
	if _, err := New(inner, nil, "bucket", cfg); err == nil {
		t.Fatal("expected shard counts summing over 256 to be rejected")
	}
}

func TestStrategy_NonSavepointMethodsDelegateToInner(t *testing.T) {
	inner := memory.New()
	cfg := fs.ErasureCodingConfig{DataShardsCount: 2, ParityShardsCount: 1}
	s, err := New(inner, nil, "bucket", cfg)
	if err != nil {
		t.Fatalf("unexpected error building strategy: %v", err)
	}
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, err := s.Acquire(ctx, def)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := s.Begin(ctx, txObj, def); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !s.IsExisting(ctx, txObj) {
		t.Fatal("expected transaction to be existing after Begin")
	}
	if !s.UseSavepointForNested(ctx, txObj) {
		t.Fatal("expected memory-backed inner to support savepoints")
	}
	if err := s.Commit(ctx, txObj); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestShardKey_IsStableAndDistinctPerShard(t *testing.T) {
	inner := memory.New()
	cfg := fs.ErasureCodingConfig{DataShardsCount: 2, ParityShardsCount: 1}
	s, err := New(inner, nil, "bucket", cfg)
	if err != nil {
		t.Fatalf("unexpected error building strategy: %v", err)
	}
	k0 := s.shardKey("tid-1", 0)
	k1 := s.shardKey("tid-1", 1)
	if k0 == k1 {
		t.Fatalf("expected distinct keys per shard index, got %q for both", k0)
	}
	if s.shardKey("tid-1", 0) != k0 {
		t.Fatal("expected shardKey to be deterministic for the same tid/shard")
	}
}
