// Package txflow defines the core types and ambient plumbing shared across the
// txflow codebase: cache/locking contracts, durable log/blob contracts, UUIDs,
// configuration, structured logging, retry/backoff, and error codes. The
// transaction propagation engine itself lives in the propagation subpackage;
// concrete Strategy backends live in subpackages such as strategy/memory,
// strategy/redis, strategy/cassandra, and strategy/s3.
package txflow

// Timeout model
//
// The caller-provided context is passed to every Strategy call, so its deadline and
// cancellation reach whatever backend the Strategy talks to.
//
// A Definition's Timeout, with -1 replaced by the engine's DefaultTimeoutSeconds, is
// handed to Strategy.Begin. strategy/redis uses it as the TTL of the locks it takes
// (30 seconds when it is not positive), so locks expire even if the caller's context
// is canceled; locks re-taken on Resume get a fixed 30-second TTL. The engine itself
// does not bound Commit or Rollback by the Definition's Timeout.
