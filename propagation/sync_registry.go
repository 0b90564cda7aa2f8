package propagation

import (
	"context"
	"sync"
)

// syncFrame is one physical transactional scope's worth of synchronization
// state: the metadata a joining Definition can be validated against, and the
// callbacks registered against that scope. REQUIRED/SUPPORTS/MANDATORY
// participation shares the current top frame rather than pushing a new one,
// which is what lets a callback registered by an inner participant be
// observed by the frame owner's eventual physical completion instead of
// firing at the participant's own Commit/Rollback.
type syncFrame struct {
	name                    string
	isolation               Isolation
	readOnly                bool
	actualTransactionActive bool
	callbacks               []Callback
}

// SyncRegistry is the execution-context-local synchronization state that
// threads through a logical call chain: the currently active Status, the
// stack of transaction names used for diagnostics, and the stack of
// syncFrames that own registered callbacks and the metadata a participating
// Definition is validated against. Go has no thread-local storage, so the
// registry is carried explicitly on context.Context via WithRegistry and
// threaded through nested calls by passing that context along.
type SyncRegistry struct {
	mu     sync.Mutex
	active *Status
	names  []string
	frames []*syncFrame
}

type registryKey struct{}

// WithRegistry attaches a fresh SyncRegistry to ctx. Call this once per
// logical execution context (a goroutine, a request, a job) before making any
// GetTransaction calls; nested calls simply pass the returned context along.
func WithRegistry(ctx context.Context) context.Context {
	return context.WithValue(ctx, registryKey{}, &SyncRegistry{})
}

// registryFrom retrieves the SyncRegistry attached to ctx, creating a
// detached one if the caller never called WithRegistry. A detached registry
// behaves correctly within a single call but cannot be observed by sibling
// calls, since it isn't stored back on any context.
func registryFrom(ctx context.Context) *SyncRegistry {
	if r, ok := ctx.Value(registryKey{}).(*SyncRegistry); ok && r != nil {
		return r
	}
	return &SyncRegistry{}
}

// ActiveStatus returns the Status currently bound to ctx's registry, or nil
// if no transaction is active.
func ActiveStatus(ctx context.Context) *Status {
	return registryFrom(ctx).active
}

func (r *SyncRegistry) push(name string) {
	r.names = append(r.names, name)
}

func (r *SyncRegistry) pop() {
	if len(r.names) > 0 {
		r.names = r.names[:len(r.names)-1]
	}
}

func (r *SyncRegistry) currentName() string {
	if len(r.names) == 0 {
		return ""
	}
	return r.names[len(r.names)-1]
}

// activate pushes a new syncFrame for a scope that owns its own physical
// completion: a freshly begun transaction, a savepoint-backed NESTED scope,
// or a Definition that runs without a transaction at all (SUPPORTS,
// NOT_SUPPORTED, NEVER with nothing active). Every activate must be matched
// by exactly one later clear.
func (r *SyncRegistry) activate(def Definition, actualTransactionActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, &syncFrame{
		name:                    def.Name,
		isolation:               def.Isolation,
		readOnly:                def.ReadOnly,
		actualTransactionActive: actualTransactionActive,
	})
}

// clear pops the top syncFrame once its owning scope has fully completed.
func (r *SyncRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) > 0 {
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// detachFrame pops and returns the top syncFrame so it can be stashed in a
// SuspendedBundle, leaving the registry as if no scope were active. Returns
// nil if nothing is active.
func (r *SyncRegistry) detachFrame() *syncFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	f := r.frames[len(r.frames)-1]
	r.frames = r.frames[:len(r.frames)-1]
	return f
}

// attachFrame pushes back a syncFrame previously taken by detachFrame, once
// the scope it was stashed for has resumed.
func (r *SyncRegistry) attachFrame(f *syncFrame) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

// isActive reports whether a syncFrame is currently active, i.e. whether a
// transactional scope (physical or not) is presently in effect.
func (r *SyncRegistry) isActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames) > 0
}

// register attaches cb to the current top syncFrame so it is observed by
// that frame's eventual completion, whoever owns it.
func (r *SyncRegistry) register(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return
	}
	top := r.frames[len(r.frames)-1]
	top.callbacks = append(top.callbacks, cb)
}

// getCallbacks returns a snapshot of the current top syncFrame's callbacks,
// in registration order.
func (r *SyncRegistry) getCallbacks() []Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	top := r.frames[len(r.frames)-1]
	return append([]Callback(nil), top.callbacks...)
}

// currentTransactionName returns the name the active syncFrame was activated
// with, or "" if none is active.
func (r *SyncRegistry) currentTransactionName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return ""
	}
	return r.frames[len(r.frames)-1].name
}

// currentIsolation returns the isolation the active syncFrame was activated
// with, or DEFAULT if none is active.
func (r *SyncRegistry) currentIsolation() Isolation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return DEFAULT
	}
	return r.frames[len(r.frames)-1].isolation
}

// isCurrentTransactionReadOnly returns the read-only flag the active
// syncFrame was activated with, or false if none is active.
func (r *SyncRegistry) isCurrentTransactionReadOnly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return false
	}
	return r.frames[len(r.frames)-1].readOnly
}

// isActualTransactionActive reports whether the active syncFrame is backed
// by a real physical transaction, as opposed to a SUPPORTS/NOT_SUPPORTED/
// NEVER scope running without one.
func (r *SyncRegistry) isActualTransactionActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return false
	}
	return r.frames[len(r.frames)-1].actualTransactionActive
}
