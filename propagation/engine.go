package propagation

import (
	"context"
	"fmt"
)

// WorkflowEngine drives a Strategy through the propagation decision tables:
// GetTransaction decides whether to join, suspend, nest, or begin a
// transaction for a Definition given whatever is currently active on the
// caller's SyncRegistry; Commit and Rollback drive the matching completion
// sequence, including resuming anything that was suspended to make room for
// this scope.
type WorkflowEngine struct {
	strategy Strategy
	options  EngineOptions
}

// NewWorkflowEngine builds an engine around strategy using opts.
func NewWorkflowEngine(strategy Strategy, opts EngineOptions) *WorkflowEngine {
	return &WorkflowEngine{strategy: strategy, options: opts}
}

func (e *WorkflowEngine) effectiveTimeout(def Definition) int {
	if def.Timeout == -1 {
		return e.options.DefaultTimeoutSeconds
	}
	return def.Timeout
}

// GetTransaction resolves def against whatever Status is active on ctx's
// SyncRegistry (see WithRegistry) and returns a new Status representing the
// caller's scope. The returned Status must be passed to exactly one of
// Commit or Rollback.
func (e *WorkflowEngine) GetTransaction(ctx context.Context, def Definition) (*Status, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.Timeout = e.effectiveTimeout(def)

	reg := registryFrom(ctx)
	existing := reg.active

	if existing != nil && e.options.FailEarlyOnGlobalRollbackOnly && existing.IsRollbackOnly() &&
		def.Propagation != REQUIRES_NEW && def.Propagation != NOT_SUPPORTED && def.Propagation != NEVER {
		return nil, newError(UnexpectedRollback, "participation requested against a transaction already marked rollback-only", nil)
	}

	if e.options.Validator != nil {
		if err := e.options.Validator.Validate(ctx, def, existing); err != nil {
			if existing != nil && e.options.GlobalRollbackOnParticipationFailure {
				existing.SetRollbackOnly()
			}
			return nil, err
		}
	}

	var status *Status
	var err error

	if existing == nil {
		status, err = e.getTransactionNoneActive(ctx, def)
	} else {
		status, err = e.getTransactionWithActive(ctx, def, existing)
	}
	if err != nil {
		if existing != nil && e.options.GlobalRollbackOnParticipationFailure {
			existing.SetRollbackOnly()
		}
		return nil, err
	}

	status.engine = e
	status.registry = reg
	status.parent = existing
	reg.active = status
	reg.push(def.Name)
	return status, nil
}

func (e *WorkflowEngine) getTransactionNoneActive(ctx context.Context, def Definition) (*Status, error) {
	reg := registryFrom(ctx)
	switch def.Propagation {
	case MANDATORY:
		return nil, newError(IllegalTransactionState, "MANDATORY propagation requires an existing transaction", nil)
	case SUPPORTS, NOT_SUPPORTED, NEVER:
		reg.activate(def, false)
		return &Status{definition: def, owner: true}, nil
	case REQUIRED, REQUIRES_NEW, NESTED:
		txObj, err := e.strategy.Acquire(ctx, def)
		if err != nil {
			return nil, wrapSystemError("acquire", err)
		}
		if err := e.strategy.Begin(ctx, txObj, def); err != nil {
			e.strategy.Cleanup(ctx, txObj)
			return nil, wrapSystemError("begin", err)
		}
		reg.activate(def, true)
		return &Status{definition: def, txObj: txObj, newTransaction: true, owner: true}, nil
	default:
		return nil, newError(IllegalTransactionState, fmt.Sprintf("unrecognized propagation %v", def.Propagation), nil)
	}
}

func (e *WorkflowEngine) getTransactionWithActive(ctx context.Context, def Definition, existing *Status) (*Status, error) {
	reg := registryFrom(ctx)
	switch def.Propagation {
	case REQUIRED, SUPPORTS, MANDATORY:
		if e.options.SyncMode == SyncModeValidate {
			if err := validateAgainstActive(def, reg); err != nil {
				return nil, err
			}
		}
		return &Status{definition: def, txObj: existing.txObj}, nil

	case NEVER:
		return nil, newError(IllegalTransactionState, "NEVER propagation forbids an existing transaction", nil)

	case REQUIRES_NEW:
		bundle, err := e.suspend(ctx, existing, def)
		if err != nil {
			return nil, err
		}
		txObj, err := e.strategy.Acquire(ctx, def)
		if err != nil {
			e.restoreAfterFailedSuspend(ctx, bundle)
			return nil, wrapSystemError("acquire", err)
		}
		if err := e.strategy.Begin(ctx, txObj, def); err != nil {
			e.strategy.Cleanup(ctx, txObj)
			e.restoreAfterFailedSuspend(ctx, bundle)
			return nil, wrapSystemError("begin", err)
		}
		reg.activate(def, true)
		return &Status{definition: def, txObj: txObj, newTransaction: true, suspended: bundle, owner: true}, nil

	case NOT_SUPPORTED:
		bundle, err := e.suspend(ctx, existing, def)
		if err != nil {
			return nil, err
		}
		reg.activate(def, false)
		return &Status{definition: def, suspended: bundle, owner: true}, nil

	case NESTED:
		if !e.options.NestedAllowed {
			return nil, newError(NestedNotSupported, "NESTED propagation is disabled for this engine", nil)
		}
		if e.strategy.UseSavepointForNested(ctx, existing.txObj) {
			sp, err := e.strategy.CreateSavepoint(ctx, existing.txObj)
			if err != nil {
				return nil, wrapSystemError("create savepoint", err)
			}
			reg.activate(def, true)
			return &Status{definition: def, txObj: existing.txObj, usingSavepoint: true, savepoint: sp, owner: true}, nil
		}
		bundle, err := e.suspend(ctx, existing, def)
		if err != nil {
			return nil, err
		}
		txObj, err := e.strategy.Acquire(ctx, def)
		if err != nil {
			e.restoreAfterFailedSuspend(ctx, bundle)
			return nil, wrapSystemError("acquire", err)
		}
		if err := e.strategy.Begin(ctx, txObj, def); err != nil {
			e.strategy.Cleanup(ctx, txObj)
			e.restoreAfterFailedSuspend(ctx, bundle)
			return nil, wrapSystemError("begin", err)
		}
		reg.activate(def, true)
		return &Status{definition: def, txObj: txObj, newTransaction: true, suspended: bundle, owner: true}, nil

	default:
		return nil, newError(IllegalTransactionState, fmt.Sprintf("unrecognized propagation %v", def.Propagation), nil)
	}
}

// validateAgainstActive implements validateExistingTransaction: when
// SyncModeValidate is configured, a Definition joining an existing
// transaction must agree with it on isolation (unless it asks for DEFAULT)
// and read-only, or the join is rejected instead of silently running under
// whatever the owner actually established.
func validateAgainstActive(def Definition, reg *SyncRegistry) error {
	if def.Isolation != DEFAULT && def.Isolation != reg.currentIsolation() {
		return newError(IllegalTransactionState, fmt.Sprintf(
			"participating definition requested isolation %v but the active transaction uses %v",
			def.Isolation, reg.currentIsolation()), nil)
	}
	if def.ReadOnly != reg.isCurrentTransactionReadOnly() {
		return newError(IllegalTransactionState, fmt.Sprintf(
			"participating definition requested read-only=%v but the active transaction is read-only=%v",
			def.ReadOnly, reg.isCurrentTransactionReadOnly()), nil)
	}
	return nil
}

func (e *WorkflowEngine) suspend(ctx context.Context, existing *Status, def Definition) (*SuspendedBundle, error) {
	reg := registryFrom(ctx)
	frame := reg.detachFrame()
	if frame != nil {
		for _, cb := range frame.callbacks {
			cb.Suspend()
		}
	}
	suspendedTx, err := e.strategy.Suspend(ctx, existing.txObj)
	if err != nil {
		if frame != nil {
			for _, cb := range frame.callbacks {
				cb.Resume()
			}
		}
		reg.attachFrame(frame)
		return nil, newError(SuspensionNotSupported, "strategy could not suspend the active transaction", err)
	}
	return &SuspendedBundle{
		Transaction: suspendedTx,
		Name:        existing.definition.Name,
		ReadOnly:    existing.definition.ReadOnly,
		Isolation:   existing.definition.Isolation,
		frame:       frame,
	}, nil
}

// restoreAfterFailedSuspend best-effort resumes a bundle when beginning the
// replacement transaction failed after suspension already succeeded, so the
// caller's outer transaction is not permanently lost.
func (e *WorkflowEngine) restoreAfterFailedSuspend(ctx context.Context, bundle *SuspendedBundle) {
	e.resume(ctx, bundle)
}

// Commit completes status successfully unless it, or the transaction it
// participates in, has been marked rollback-only, in which case the
// transaction is rolled back and UnexpectedRollback is returned. A
// participant that is rollback-only marks its parent rollback-only before
// returning, so the owner rolls back when it completes; an owner whose
// Strategy reports ShouldCommitOnGlobalRollbackOnly hands the transaction to
// Strategy.Commit instead of Strategy.Rollback and still returns
// UnexpectedRollback. A Status
// that is merely participating in a transaction owned by an outer Status
// does not drive any callbacks itself: every callback registered anywhere
// within that transaction is owned by the shared synchronization frame and
// fires exactly once, with the real outcome, when the owning Status
// completes.
func (e *WorkflowEngine) Commit(ctx context.Context, status *Status) error {
	status.mu.Lock()
	if status.completed {
		status.mu.Unlock()
		return newError(IllegalTransactionState, "transaction already completed", nil)
	}
	status.completed = true
	rollbackOnly := status.rollbackOnly
	newTransaction := status.newTransaction
	usingSavepoint := status.usingSavepoint
	txObj := status.txObj
	savepoint := status.savepoint
	suspended := status.suspended
	owner := status.owner
	status.mu.Unlock()

	reg := status.registry

	e.restoreParent(ctx, status)

	if !owner {
		if rollbackOnly {
			if status.parent != nil {
				status.parent.SetRollbackOnly()
			}
			return newError(UnexpectedRollback, "transaction marked rollback-only by a participant", nil)
		}
		return nil
	}

	callbacks := reg.getCallbacks()
	reg.clear()
	runBeforeCompletion(callbacks)

	switch {
	case usingSavepoint:
		if rollbackOnly {
			_ = e.strategy.RollbackToSavepoint(ctx, txObj, savepoint)
			runAfterCompletion(callbacks, CompletionRolledBack)
			return newError(UnexpectedRollback, "nested transaction marked rollback-only", nil)
		}
		if err := e.strategy.ReleaseSavepoint(ctx, txObj, savepoint); err != nil {
			runAfterCompletion(callbacks, CompletionUnknown)
			return wrapSystemError("release savepoint", err)
		}
		runAfterCompletion(callbacks, CompletionCommitted)
		return nil

	case newTransaction:
		defer func() {
			e.strategy.Cleanup(ctx, txObj)
			e.resume(ctx, suspended)
		}()
		if rollbackOnly && !e.strategy.ShouldCommitOnGlobalRollbackOnly() {
			_ = e.strategy.Rollback(ctx, txObj)
			runAfterCompletion(callbacks, CompletionRolledBack)
			return newError(UnexpectedRollback, "transaction marked rollback-only by a participant", nil)
		}
		runBeforeCommit(callbacks, status.definition.ReadOnly)
		if err := e.strategy.Commit(ctx, txObj); err != nil {
			if e.options.RollbackOnCommitFailure {
				_ = e.strategy.Rollback(ctx, txObj)
				runAfterCompletion(callbacks, CompletionRolledBack)
			} else {
				runAfterCompletion(callbacks, CompletionUnknown)
			}
			return wrapSystemError("commit", err)
		}
		if rollbackOnly {
			runAfterCompletion(callbacks, CompletionRolledBack)
			return newError(UnexpectedRollback, "transaction marked rollback-only by a participant", nil)
		}
		runAfterCommit(callbacks)
		runAfterCompletion(callbacks, CompletionCommitted)
		return nil

	default: // txObj == nil
		e.resume(ctx, suspended)
		runAfterCompletion(callbacks, CompletionUnknown)
		return nil
	}
}

// Rollback completes status by rolling it back. For a participant that does
// not own the physical transaction, this only marks the owning transaction
// rollback-only; the actual rollback, and the firing of every callback
// registered anywhere within that transaction, happens once, when the owning
// Status completes.
func (e *WorkflowEngine) Rollback(ctx context.Context, status *Status) error {
	status.mu.Lock()
	if status.completed {
		status.mu.Unlock()
		return newError(IllegalTransactionState, "transaction already completed", nil)
	}
	status.completed = true
	newTransaction := status.newTransaction
	usingSavepoint := status.usingSavepoint
	txObj := status.txObj
	savepoint := status.savepoint
	suspended := status.suspended
	owner := status.owner
	status.mu.Unlock()

	reg := status.registry

	e.restoreParent(ctx, status)

	if !owner {
		if status.parent != nil {
			status.parent.SetRollbackOnly()
		}
		return nil
	}

	callbacks := reg.getCallbacks()
	reg.clear()
	runBeforeCompletion(callbacks)

	switch {
	case usingSavepoint:
		err := e.strategy.RollbackToSavepoint(ctx, txObj, savepoint)
		runAfterCompletion(callbacks, CompletionRolledBack)
		if err != nil {
			return wrapSystemError("rollback to savepoint", err)
		}
		return nil

	case newTransaction:
		err := e.strategy.Rollback(ctx, txObj)
		e.strategy.Cleanup(ctx, txObj)
		e.resume(ctx, suspended)
		runAfterCompletion(callbacks, CompletionRolledBack)
		if err != nil {
			return wrapSystemError("rollback", err)
		}
		return nil

	default: // txObj == nil
		e.resume(ctx, suspended)
		runAfterCompletion(callbacks, CompletionRolledBack)
		return nil
	}
}

func (e *WorkflowEngine) resume(ctx context.Context, bundle *SuspendedBundle) {
	if bundle == nil {
		return
	}
	reg := registryFrom(ctx)
	if bundle.frame != nil {
		for _, cb := range bundle.frame.callbacks {
			cb.Resume()
		}
	}
	reg.attachFrame(bundle.frame)
	_ = e.strategy.Resume(ctx, nil, bundle.Transaction)
}

func (e *WorkflowEngine) restoreParent(ctx context.Context, status *Status) {
	reg := registryFrom(ctx)
	if reg.active == status {
		reg.active = status.parent
	}
	reg.pop()
}

func runBeforeCommit(callbacks []Callback, readOnly bool) {
	for _, cb := range callbacks {
		cb.BeforeCommit(readOnly)
	}
}

func runBeforeCompletion(callbacks []Callback) {
	for _, cb := range callbacks {
		cb.BeforeCompletion()
	}
}

func runAfterCommit(callbacks []Callback) {
	for _, cb := range callbacks {
		cb.AfterCommit()
	}
}

// runAfterCompletion notifies callbacks in registration order, same as every
// other lifecycle hook.
func runAfterCompletion(callbacks []Callback, status CompletionStatus) {
	for _, cb := range callbacks {
		cb.AfterCompletion(status)
	}
}

func wrapSystemError(op string, err error) error {
	return newError(TransactionSystem, op+" failed", err)
}
