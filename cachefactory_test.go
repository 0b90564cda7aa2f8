package txflow

import (
	"context"
	"testing"
	"time"
)

type mockCache struct{}

func (m *mockCache) Ping(ctx context.Context) error  { return nil }
func (m *mockCache) Clear(ctx context.Context) error { return nil }
func (m *mockCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return nil
}
func (m *mockCache) Get(ctx context.Context, key string) (bool, string, error) { return false, "", nil }
func (m *mockCache) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	return false, "", nil
}
func (m *mockCache) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (m *mockCache) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	return false, nil
}
func (m *mockCache) GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error) {
	return false, nil
}
func (m *mockCache) Delete(ctx context.Context, keys []string) (bool, error)   { return true, nil }
func (m *mockCache) Info(ctx context.Context, section string) (string, error) { return "", nil }
func (m *mockCache) FormatLockKey(k string) string                            { return k }
func (m *mockCache) CreateLockKeys(keys []string) []*LockKey {
	r := make([]*LockKey, len(keys))
	for i, k := range keys {
		r[i] = &LockKey{Key: k, LockID: NewUUID()}
	}
	return r
}
func (m *mockCache) Lock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, error) {
	return true, nil
}
func (m *mockCache) IsLocked(ctx context.Context, lockKeys []*LockKey) (bool, error) { return true, nil }
func (m *mockCache) IsLockedByOthers(ctx context.Context, keys []string) (bool, error) {
	return false, nil
}
func (m *mockCache) Unlock(ctx context.Context, lockKeys []*LockKey) error { return nil }
func (m *mockCache) IsRestarted(ctx context.Context) bool                 { return false }

func TestCacheFactory_RegisterAndGet(t *testing.T) {
	t.Cleanup(func() {
		cacheRegistry = make(map[CacheType]CacheFactory)
		globalCacheFactory = nil
		globalCacheFactoryType = NoCache
	})

	RegisterCacheFactory(InMemory, func() Cache { return &mockCache{} })
	SetCacheFactory(InMemory)

	if GetCacheFactoryType() != InMemory {
		t.Fatalf("expected factory type InMemory, got %v", GetCacheFactoryType())
	}

	if c := NewCacheClient(); c == nil {
		t.Fatal("expected a non-nil Cache from the registered factory")
	}
}

func TestCacheFactory_NoFactoryRegistered(t *testing.T) {
	t.Cleanup(func() {
		globalCacheFactory = nil
	})
	globalCacheFactory = nil
	if c := NewCacheClient(); c != nil {
		t.Fatalf("expected nil Cache when no factory is registered, got %v", c)
	}
}
