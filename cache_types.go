package txflow

import (
	"context"
	"io"
	"time"
)

// KeyValuePair associates a key with a value, used across cache and log APIs
// where a plain map would lose ordering or allow duplicate keys.
type KeyValuePair[TK any, TV any] struct {
	Key   TK
	Value TV
}

// Tuple holds two heterogeneously typed values.
type Tuple[T1 any, T2 any] struct {
	First  T1
	Second T2
}

// LockKey identifies a distributed lock attempt. LockID is the token this
// caller used to claim the lock; IsLockOwner is set by the Cache implementation
// once the claim succeeds, so only the owner's Unlock call has effect.
type LockKey struct {
	Key         string
	LockID      UUID
	IsLockOwner bool
}

// Cache is the shared contract for the key/value and distributed-locking
// backends a Strategy can be composed with (in-process or Redis-backed).
type Cache interface {
	Ping(ctx context.Context) error
	Clear(ctx context.Context) error

	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (bool, string, error)
	GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error)

	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error)

	Delete(ctx context.Context, keys []string) (bool, error)

	// Info returns the backend's diagnostic text for the given section, mirroring
	// Redis's INFO command. In-process backends may return an empty string.
	Info(ctx context.Context, section string) (string, error)

	// FormatLockKey returns the backend-qualified key string used for a lock name.
	FormatLockKey(key string) string
	// CreateLockKeys mints a fresh LockID for each name, ready to pass to Lock.
	CreateLockKeys(keys []string) []*LockKey

	Lock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, error)
	IsLocked(ctx context.Context, lockKeys []*LockKey) (bool, error)
	IsLockedByOthers(ctx context.Context, keys []string) (bool, error)
	Unlock(ctx context.Context, lockKeys []*LockKey) error

	// IsRestarted reports whether the backing store process appears to have
	// restarted since the last call, e.g. a Redis server reboot losing leases.
	IsRestarted(ctx context.Context) bool
}

// CloseableCache is a Cache bound to a connection the caller owns and must close.
type CloseableCache interface {
	Cache
	io.Closer
}

// ManageBlobStore provisions and tears down the durable blob containers
// (S3 buckets and similar) that a Strategy writes savepoint or log payloads to.
type ManageBlobStore interface {
	CreateBlobStore(ctx context.Context, name string) error
	RemoveBlobStore(ctx context.Context, name string) error
}

// TransactionLog is a durable, append-only record of in-flight completions,
// written by a Strategy so a crash-recovery sweep can find and resolve
// transactions that never reached a terminal state.
type TransactionLog interface {
	// Add appends a payload for the given transaction id.
	Add(ctx context.Context, tid UUID, payload []byte) error
	// Remove deletes all log records for the given transaction id, normally
	// called once a transaction reaches a terminal state.
	Remove(ctx context.Context, tid UUID) error
	// NewUUID mints a time-ordered id suitable for log bucketing.
	NewUUID() UUID
	// GetOne claims and returns the oldest unresolved transaction log entry
	// along with the hour bucket it was found in, or a nil UUID if none
	// are currently claimable.
	GetOne(ctx context.Context) (tid UUID, hour string, entries []KeyValuePair[int, []byte], err error)
	// GetOneOfHour resumes a sweep of a specific previously claimed hour bucket.
	GetOneOfHour(ctx context.Context, hour string) (tid UUID, entries []KeyValuePair[int, []byte], err error)
}
