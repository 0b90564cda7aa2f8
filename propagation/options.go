package propagation

import "context"

// SyncMode controls how strictly the engine enforces that an existing
// Status's Isolation/ReadOnly match a newly requested Definition when
// participating in it (REQUIRED/SUPPORTS/MANDATORY against an existing
// transaction).
type SyncMode int

const (
	// SyncModeLenient ignores mismatches between the active transaction's
	// characteristics and a participating Definition's.
	SyncModeLenient SyncMode = iota
	// SyncModeValidate rejects participation with IllegalTransactionState
	// when the participating Definition asks for a non-DEFAULT isolation
	// that differs from the active transaction's, or for a different
	// read-only setting.
	SyncModeValidate
)

// ParticipationValidator lets callers plug in policy-driven checks (e.g. a
// CEL expression evaluator) that run before the engine allows a Definition to
// participate in, suspend, or start a transaction. It lives behind this
// interface so the core engine never imports a policy evaluation library.
type ParticipationValidator interface {
	Validate(ctx context.Context, def Definition, existing *Status) error
}

// EngineOptions configures a WorkflowEngine's behavior beyond what a single
// Definition can express.
type EngineOptions struct {
	// DefaultTimeoutSeconds is used whenever a Definition's Timeout is -1.
	DefaultTimeoutSeconds int

	// NestedAllowed gates NESTED propagation against an existing
	// transaction; when false, such a request fails with NestedNotSupported.
	// NESTED with no active transaction begins a new one either way.
	NestedAllowed bool

	// SyncMode controls isolation-mismatch enforcement on participation.
	SyncMode SyncMode

	// GlobalRollbackOnParticipationFailure, when true, calls SetRollbackOnly
	// on the active Status if a participant's GetTransaction call itself
	// fails (e.g. a ParticipationValidator rejects it), rather than leaving
	// the outer transaction's fate solely to its own completion call.
	GlobalRollbackOnParticipationFailure bool

	// FailEarlyOnGlobalRollbackOnly, when true, makes GetTransaction itself
	// fail with UnexpectedRollback for participating Definitions when the
	// active Status is already rollback-only, instead of deferring the
	// failure to Commit.
	FailEarlyOnGlobalRollbackOnly bool

	// RollbackOnCommitFailure, when true, makes the engine call Rollback on
	// behalf of the caller if Strategy.Commit returns an error, so a failed
	// commit never leaves the physical transaction open.
	RollbackOnCommitFailure bool

	// Validator, if non-nil, is consulted on every GetTransaction call.
	Validator ParticipationValidator
}

// DefaultEngineOptions returns the engine's out-of-the-box configuration.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		DefaultTimeoutSeconds:                30,
		NestedAllowed:                        true,
		SyncMode:                             SyncModeLenient,
		GlobalRollbackOnParticipationFailure: true,
		FailEarlyOnGlobalRollbackOnly:        true,
		RollbackOnCommitFailure:              true,
	}
}
