package fs

import (
	"context"
	"os"
	"testing"

	txfs "github.com/sharedcode/txflow/fs"
	"github.com/sharedcode/txflow/propagation"
	"github.com/sharedcode/txflow/strategy/memory"
)

func tempDrives(t *testing.T, n int) []string {
	t.Helper()
	dirs := make([]string, n)
	for i := range dirs {
		dirs[i] = t.TempDir()
	}
	return dirs
}

func TestStrategy_SavepointRoundTripWritesAndRemovesShards(t *testing.T) {
	drives := tempDrives(t, 3)
	s, err := New(memory.New(), txfs.ErasureCodingConfig{
		DataShardsCount:             2,
		ParityShardsCount:           1,
		BaseFolderPathsAcrossDrives: drives,
	})
	if err != nil {
		t.Fatalf("unexpected error building strategy: %v", err)
	}
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, _ := s.inner.Acquire(ctx, def)
	_ = s.inner.Begin(ctx, txObj, def)

	sp, err := s.CreateSavepoint(ctx, txObj)
	if err != nil {
		t.Fatalf("create savepoint failed: %v", err)
	}
	m := sp.(*marker)

	found := 0
	for i := 0; i < 3; i++ {
		if _, err := os.Stat(s.shardPath(m.tid, i)); err == nil {
			found++
		}
	}
	if found != 3 {
		t.Fatalf("expected all 3 shard files to exist, found %d", found)
	}

	if err := s.RollbackToSavepoint(ctx, txObj, sp); err != nil {
		t.Fatalf("rollback to savepoint failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := os.Stat(s.shardPath(m.tid, i)); !os.IsNotExist(err) {
			t.Fatalf("expected shard %d to be removed after rollback", i)
		}
	}
}

func TestNew_RequiresAtLeastOneBaseFolder(t *testing.T) {
	if _, err := New(memory.New(), txfs.ErasureCodingConfig{DataShardsCount: 2, ParityShardsCount: 1}); err == nil {
		t.Fatal("expected missing base folder paths to be rejected")
	}
}
