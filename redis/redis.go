package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/encoding"
)

type client struct {
	conn    *Connection
	isOwner bool
}

// NewClient returns a Cache backed by the default shared Redis connection.
// The underlying connection must have been initialized via OpenConnection.
func NewClient() txflow.Cache {
	return &client{
		conn: connection,
	}
}

// NewConnectionClient opens a new Redis connection with the given options and returns a CloseableCache.
// Call Close on the returned cache when no longer needed. Useful for isolating a Strategy's own lock space.
func NewConnectionClient(options Options) txflow.CloseableCache {
	c := openConnection(options)
	return &client{
		conn:    c,
		isOwner: true,
	}
}

// Close closes the owned Redis connection, if any.
func (c *client) Close() error {
	if !c.isOwner || c.conn == nil {
		return nil
	}
	err := closeConnection(c.conn)
	c.conn = nil
	return err
}

func (c client) keyNotFound(err error) bool {
	return err == redis.Nil
}

// Ping tests connectivity to Redis.
func (c client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	return c.conn.Client.Ping(ctx).Err()
}

// Clear removes all keys in the current Redis database. Use with caution.
func (c client) Clear(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	return c.conn.Client.FlushDB(ctx).Err()
}

// Set stores a string value with the specified expiration; expiration < 0 disables caching.
func (c client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	if expiration < 0 {
		return nil
	}
	return c.conn.Client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a string value. Returns (found, value, error-from-backend).
func (c client) Get(ctx context.Context, key string) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	s, err := c.conn.Client.Get(ctx, key).Result()
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// GetEx retrieves a string value and sets its expiration (TTL) at the same time.
func (c client) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	s, err := c.conn.Client.GetEx(ctx, key, expiration).Result()
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, s, err
}

// SetStruct marshals a struct and stores it with the specified expiration; expiration < 0 disables caching.
func (c client) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	if expiration < 0 {
		return nil
	}
	ba, err := encoding.DefaultMarshaler.Marshal(value)
	if err != nil {
		return err
	}
	return c.conn.Client.Set(ctx, key, ba, expiration).Err()
}

// GetStruct retrieves a struct value and unmarshals it into target.
func (c client) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	ba, err := c.conn.Client.Get(ctx, key).Bytes()
	if err == nil {
		err = encoding.DefaultMarshaler.Unmarshal(ba, target)
	}
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// GetStructEx retrieves a struct value with TTL behavior and unmarshals it into target.
func (c client) GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	if target == nil {
		return false, fmt.Errorf("target can't be nil")
	}
	ba, err := c.conn.Client.GetEx(ctx, key, expiration).Bytes()
	if err == nil {
		err = encoding.DefaultMarshaler.Unmarshal(ba, target)
	}
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// Delete removes keys and returns whether the operation completed without backend errors.
func (c client) Delete(ctx context.Context, keys []string) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	err := c.conn.Client.Del(ctx, keys...).Err()
	r := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return r, err
}

// Info returns the Redis INFO output for the given section.
func (c client) Info(ctx context.Context, section string) (string, error) {
	if c.conn == nil {
		return "", fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	return c.conn.Client.Info(ctx, section).Result()
}

// IsRestarted reports whether the Redis server run_id changed since the last check,
// as tracked by the package-level restart helper shared across clients on this connection.
func (c *client) IsRestarted(ctx context.Context) bool {
	if restartHelper == nil {
		restartHelper = txflow.NewCacheRestartHelper(c)
	}
	restarted, err := restartHelper.IsRestarted(ctx)
	if err != nil {
		return false
	}
	return restarted
}

var restartHelper *txflow.CacheRestartHelper

func init() {
	txflow.RegisterCacheFactory(txflow.Redis, NewClient)
	txflow.SetCacheFactory(txflow.Redis)
}
