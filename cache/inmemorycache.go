package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sharedcode/txflow"
)

type item struct {
	data       []byte
	expiration time.Time
}

type InMemoryCache struct {
	mu    sync.RWMutex
	mru   Cache[string, item]
	locks map[string]txflow.UUID
}

func NewInMemoryCache() txflow.Cache {
	return &InMemoryCache{
		mru:   NewCache[string, item](1000, 10000), // Default capacity
		locks: make(map[string]txflow.UUID),
	}
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	c.mru.Set([]txflow.KeyValuePair[string, item]{
		{
			Key: key,
			Value: item{
				data:       []byte(value),
				expiration: exp,
			},
		},
	})
	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (bool, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := c.mru.Get([]string{key})
	if len(items) == 0 {
		return false, "", nil
	}
	it := items[0]
	if it.data == nil {
		return false, "", nil
	}

	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		c.mru.Delete([]string{key})
		return false, "", nil
	}

	return true, string(it.data), nil
}

func (c *InMemoryCache) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.mru.Get([]string{key})
	if len(items) == 0 {
		return false, "", nil
	}
	it := items[0]
	if it.data == nil {
		return false, "", nil
	}

	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		c.mru.Delete([]string{key})
		return false, "", nil
	}

	if expiration > 0 {
		it.expiration = time.Now().Add(expiration)
		c.mru.Set([]txflow.KeyValuePair[string, item]{
			{Key: key, Value: it},
		})
	}

	return true, string(it.data), nil
}

func (c *InMemoryCache) IsRestarted(ctx context.Context) bool {
	return false
}

func (c *InMemoryCache) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	c.mru.Set([]txflow.KeyValuePair[string, item]{
		{
			Key: key,
			Value: item{
				data:       data,
				expiration: exp,
			},
		},
	})
	return nil
}

func (c *InMemoryCache) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := c.mru.Get([]string{key})
	if len(items) == 0 {
		return false, nil
	}
	it := items[0]
	if it.data == nil {
		return false, nil
	}

	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		c.mru.Delete([]string{key})
		return false, nil
	}

	if err := json.Unmarshal(it.data, target); err != nil {
		return false, err
	}

	return true, nil
}

func (c *InMemoryCache) GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.mru.Get([]string{key})
	if len(items) == 0 {
		return false, nil
	}
	it := items[0]
	if it.data == nil {
		return false, nil
	}

	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		c.mru.Delete([]string{key})
		return false, nil
	}

	if expiration > 0 {
		it.expiration = time.Now().Add(expiration)
		c.mru.Set([]txflow.KeyValuePair[string, item]{
			{Key: key, Value: it},
		})
	}

	if err := json.Unmarshal(it.data, target); err != nil {
		return false, err
	}

	return true, nil
}

func (c *InMemoryCache) Delete(ctx context.Context, keys []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mru.Delete(keys)
	return true, nil
}

func (c *InMemoryCache) Ping(ctx context.Context) error {
	return nil
}

func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mru.Clear()
	return nil
}

func (c *InMemoryCache) Info(ctx context.Context, section string) (string, error) {
	return "InMemoryCache", nil
}

// Locking implementation

func (c *InMemoryCache) FormatLockKey(k string) string {
	return fmt.Sprintf("lock:%s", k)
}

func (c *InMemoryCache) CreateLockKeys(keys []string) []*txflow.LockKey {
	locks := make([]*txflow.LockKey, len(keys))
	for i, k := range keys {
		locks[i] = &txflow.LockKey{
			Key:    c.FormatLockKey(k),
			LockID: txflow.NewUUID(),
		}
	}
	return locks
}

// Lock claims every key in lockKeys within this process. duration is accepted for
// interface parity with the Redis-backed Cache but is not enforced: an in-process
// lock is released explicitly via Unlock, not by expiry.
func (c *InMemoryCache) Lock(ctx context.Context, duration time.Duration, lockKeys []*txflow.LockKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, lk := range lockKeys {
		if owner, held := c.locks[lk.Key]; held && owner != lk.LockID {
			return false, nil
		}
	}
	for _, lk := range lockKeys {
		c.locks[lk.Key] = lk.LockID
		lk.IsLockOwner = true
	}
	return true, nil
}

func (c *InMemoryCache) IsLocked(ctx context.Context, lockKeys []*txflow.LockKey) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, lk := range lockKeys {
		if owner, held := c.locks[lk.Key]; !held || owner != lk.LockID {
			return false, nil
		}
	}
	return true, nil
}

func (c *InMemoryCache) IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range lockKeyNames {
		if _, held := c.locks[name]; !held {
			return false, nil
		}
	}
	return true, nil
}

func (c *InMemoryCache) Unlock(ctx context.Context, lockKeys []*txflow.LockKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, lk := range lockKeys {
		if !lk.IsLockOwner {
			continue
		}
		if owner, held := c.locks[lk.Key]; held && owner == lk.LockID {
			delete(c.locks, lk.Key)
		}
	}
	return nil
}

func init() {
	txflow.RegisterCacheFactory(txflow.InMemory, NewInMemoryCache)
}
