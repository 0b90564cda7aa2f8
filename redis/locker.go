package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/sharedcode/txflow"
)

// FormatLockKey prefixes a name so lock keys occupy a distinct namespace from data keys.
func (c client) FormatLockKey(k string) string {
	return fmt.Sprintf("L%s", k)
}

// CreateLockKeys mints a fresh LockID for each of the given names.
func (c client) CreateLockKeys(keys []string) []*txflow.LockKey {
	lockKeys := make([]*txflow.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &txflow.LockKey{
			Key:    c.FormatLockKey(keys[i]),
			LockID: txflow.NewUUID(),
		}
	}
	return lockKeys
}

// Lock attempts to claim every key in lockKeys, using a compare-and-confirm
// GET/SET/GET sequence since Redis has no atomic "set if absent, report owner" in one round trip
// without Lua scripting. Partial claims are left in place; callers should Unlock on failure.
func (c client) Lock(ctx context.Context, duration time.Duration, lockKeys []*txflow.LockKey) (bool, error) {
	for _, lk := range lockKeys {
		found, readItem, err := c.Get(ctx, lk.Key)
		if err != nil {
			return false, err
		}
		if !found {
			if err := c.Set(ctx, lk.Key, lk.LockID.String(), duration); err != nil {
				return false, err
			}
			// Second GET confirms we won the race against a concurrent claimant.
			_, readItem2, err := c.Get(ctx, lk.Key)
			if err != nil {
				return false, err
			}
			if readItem2 != lk.LockID.String() {
				return false, nil
			}
			lk.IsLockOwner = true
			continue
		}
		if readItem != lk.LockID.String() {
			return false, nil
		}
	}
	return true, nil
}

// IsLocked reports whether every key in lockKeys is currently held by its recorded LockID.
func (c client) IsLocked(ctx context.Context, lockKeys []*txflow.LockKey) (bool, error) {
	for _, lk := range lockKeys {
		found, readItem, err := c.Get(ctx, lk.Key)
		if err != nil {
			return false, err
		}
		if !found || readItem != lk.LockID.String() {
			return false, nil
		}
	}
	return true, nil
}

// IsLockedByOthers reports whether all of the given (already-formatted) lock keys
// are currently held, regardless of owner; it returns false as soon as one is free.
func (c client) IsLockedByOthers(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	for _, k := range keys {
		found, _, err := c.Get(ctx, k)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// Unlock releases every key this client owns in lockKeys. Keys not owned are left untouched.
func (c client) Unlock(ctx context.Context, lockKeys []*txflow.LockKey) error {
	var lastErr error
	for _, lk := range lockKeys {
		if !lk.IsLockOwner {
			continue
		}
		if _, err := c.Delete(ctx, []string{lk.Key}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
