package propagation

import "context"

// TransactionObject is the opaque token a Strategy uses to identify the
// physical transaction it is managing. The engine never inspects it; it only
// ever passes back the value a Strategy previously handed out.
type TransactionObject interface{}

// SuspendedBundle captures everything the engine needs to later resume a
// transaction it suspended on behalf of a REQUIRES_NEW or NOT_SUPPORTED
// scope. Ownership transfers to whoever holds the bundle: the engine either
// resumes it (handing it back to the Strategy) or, if resume is impossible,
// surfaces it to the caller so nothing is silently dropped. frame carries the
// suspended scope's own registered callbacks and synchronization metadata so
// they can be restored verbatim on resume.
type SuspendedBundle struct {
	Transaction TransactionObject
	Name        string
	ReadOnly    bool
	Isolation   Isolation

	frame *syncFrame
}

// Strategy is the external collaborator that knows how to acquire, begin,
// suspend, resume, commit, and roll back a physical transaction of some
// concrete resource. The engine drives a Strategy through a fixed sequence;
// a Strategy never calls back into the engine.
type Strategy interface {
	// Acquire produces a new TransactionObject bound to the given Definition.
	// It does not begin the physical transaction.
	Acquire(ctx context.Context, def Definition) (TransactionObject, error)

	// IsExisting reports whether txObj is already an active physical
	// transaction (as opposed to one Acquire handed out but Begin has not
	// yet started).
	IsExisting(ctx context.Context, txObj TransactionObject) bool

	// Begin starts the physical transaction represented by txObj.
	Begin(ctx context.Context, txObj TransactionObject, def Definition) error

	// Suspend detaches txObj from the current execution context and returns
	// whatever the Strategy needs to later resume it. After Suspend, txObj
	// must not be used again except via Resume.
	Suspend(ctx context.Context, txObj TransactionObject) (TransactionObject, error)

	// Resume reattaches a previously suspended transaction.
	Resume(ctx context.Context, txObj TransactionObject, suspended TransactionObject) error

	// Commit commits the physical transaction represented by txObj.
	Commit(ctx context.Context, txObj TransactionObject) error

	// Rollback rolls back the physical transaction represented by txObj.
	Rollback(ctx context.Context, txObj TransactionObject) error

	// SetRollbackOnly marks txObj so that any later Commit is rejected.
	SetRollbackOnly(ctx context.Context, txObj TransactionObject) error

	// Cleanup releases any resources txObj holds after the transaction has
	// fully completed (committed, rolled back, or handed to a participant
	// that owns its own completion). Cleanup is called exactly once per
	// TransactionObject the engine created via Acquire.
	Cleanup(ctx context.Context, txObj TransactionObject)

	// UseSavepointForNested reports whether NESTED propagation should be
	// implemented via a savepoint on txObj rather than a new physical
	// transaction.
	UseSavepointForNested(ctx context.Context, txObj TransactionObject) bool

	// CreateSavepoint creates a savepoint within txObj and returns a handle
	// the engine can later pass to RollbackToSavepoint or ReleaseSavepoint.
	CreateSavepoint(ctx context.Context, txObj TransactionObject) (interface{}, error)

	// RollbackToSavepoint rolls txObj back to a previously created savepoint.
	RollbackToSavepoint(ctx context.Context, txObj TransactionObject, savepoint interface{}) error

	// ReleaseSavepoint discards a savepoint once it is no longer needed,
	// e.g. after the nested scope committed successfully.
	ReleaseSavepoint(ctx context.Context, txObj TransactionObject, savepoint interface{}) error

	// ShouldCommitOnGlobalRollbackOnly reports whether Commit should still be
	// attempted (and is expected to fail with UnexpectedRollback) when the
	// Status carries a rollback-only flag set by a participant, rather than
	// short-circuiting straight to Rollback. Most strategies return false.
	ShouldCommitOnGlobalRollbackOnly() bool
}
