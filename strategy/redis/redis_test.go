package redis

import (
	"context"
	"testing"

	"github.com/sharedcode/txflow/cache"
	"github.com/sharedcode/txflow/propagation"
)

func keysFor(names ...string) func(ctx context.Context, def propagation.Definition) []string {
	return func(ctx context.Context, def propagation.Definition) []string {
		return names
	}
}

func TestRedisStrategy_BeginLocksKeysCommitUnlocks(t *testing.T) {
	c := cache.NewInMemoryCache()
	s := New(c, keysFor("account:1"))
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED, Timeout: 5}

	txObj, err := s.Acquire(ctx, def)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if s.IsExisting(ctx, txObj) {
		t.Fatal("expected freshly acquired transaction to not be existing")
	}
	if err := s.Begin(ctx, txObj, def); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !s.IsExisting(ctx, txObj) {
		t.Fatal("expected transaction to be existing after Begin")
	}
	locked, err := c.IsLockedByOthers(ctx, []string{c.FormatLockKey("account:1")})
	if err != nil {
		t.Fatalf("IsLockedByOthers failed: %v", err)
	}
	if !locked {
		t.Fatal("expected key to be locked after Begin")
	}
	if err := s.Commit(ctx, txObj); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	s.Cleanup(ctx, txObj)
	locked, err = c.IsLockedByOthers(ctx, []string{c.FormatLockKey("account:1")})
	if err != nil {
		t.Fatalf("IsLockedByOthers failed: %v", err)
	}
	if locked {
		t.Fatal("expected key to be unlocked after Commit and Cleanup")
	}
}

func TestRedisStrategy_SuspendResumeRoundTrip(t *testing.T) {
	c := cache.NewInMemoryCache()
	s := New(c, keysFor("order:7"))
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, _ := s.Acquire(ctx, def)
	if err := s.Begin(ctx, txObj, def); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	suspended, err := s.Suspend(ctx, txObj)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if s.IsExisting(ctx, txObj) {
		t.Fatal("expected suspended transaction to no longer be existing")
	}
	if err := s.Resume(ctx, nil, suspended); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if err := s.Commit(ctx, txObj); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestRedisStrategy_NoSavepointSupport(t *testing.T) {
	c := cache.NewInMemoryCache()
	s := New(c, keysFor("k"))
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, _ := s.Acquire(ctx, def)
	_ = s.Begin(ctx, txObj, def)

	if s.UseSavepointForNested(ctx, txObj) {
		t.Fatal("expected redis strategy to not support savepoints")
	}
	if _, err := s.CreateSavepoint(ctx, txObj); err == nil {
		t.Fatal("expected CreateSavepoint to fail")
	}
}
