package cassandra

import (
	"context"
	"sync"
	"testing"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/propagation"
	"github.com/sharedcode/txflow/strategy/memory"
)

// fakeLog is a minimal in-process txflow.TransactionLog stand-in, recording
// only what this package's decorator needs to exercise: Add/Remove/NewUUID.
type fakeLog struct {
	mu      sync.Mutex
	nextID  int64
	entries map[txflow.UUID][]byte
}

func newFakeLog() *fakeLog {
	return &fakeLog{entries: make(map[txflow.UUID][]byte)}
}

func (f *fakeLog) Add(ctx context.Context, tid txflow.UUID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[tid] = payload
	return nil
}

func (f *fakeLog) Remove(ctx context.Context, tid txflow.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, tid)
	return nil
}

func (f *fakeLog) NewUUID() txflow.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return txflow.NewUUID()
}

func (f *fakeLog) GetOne(ctx context.Context) (txflow.UUID, string, []txflow.KeyValuePair[int, []byte], error) {
	return txflow.NilUUID, "", nil, nil
}

func (f *fakeLog) GetOneOfHour(ctx context.Context, hour string) (txflow.UUID, []txflow.KeyValuePair[int, []byte], error) {
	return txflow.NilUUID, nil, nil
}

func (f *fakeLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestCassandraStrategy_BeginLogsCommitRemoves(t *testing.T) {
	log := newFakeLog()
	s := New(memory.New(), log)
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED, Name: "transfer"}

	txObj, err := s.Acquire(ctx, def)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := s.Begin(ctx, txObj, def); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if log.count() != 1 {
		t.Fatalf("expected one log entry after Begin, got %d", log.count())
	}
	if err := s.Commit(ctx, txObj); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if log.count() != 0 {
		t.Fatalf("expected log entry to be removed after Commit, got %d", log.count())
	}
}

func TestCassandraStrategy_RollbackRemovesLogEntry(t *testing.T) {
	log := newFakeLog()
	s := New(memory.New(), log)
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, _ := s.Acquire(ctx, def)
	if err := s.Begin(ctx, txObj, def); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := s.Rollback(ctx, txObj); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if log.count() != 0 {
		t.Fatalf("expected log entry to be removed after Rollback, got %d", log.count())
	}
}

func TestCassandraStrategy_SavepointDelegatesToInner(t *testing.T) {
	log := newFakeLog()
	s := New(memory.New(), log)
	ctx := context.Background()
	def := propagation.Definition{Propagation: propagation.REQUIRED}

	txObj, _ := s.Acquire(ctx, def)
	_ = s.Begin(ctx, txObj, def)

	if !s.UseSavepointForNested(ctx, txObj) {
		t.Fatal("expected memory-backed inner to support savepoints")
	}
	sp, err := s.CreateSavepoint(ctx, txObj)
	if err != nil {
		t.Fatalf("create savepoint failed: %v", err)
	}
	if err := s.RollbackToSavepoint(ctx, txObj, sp); err != nil {
		t.Fatalf("rollback to savepoint failed: %v", err)
	}
	if err := s.Commit(ctx, txObj); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}
