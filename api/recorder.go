// Package api exposes an admin/observability HTTP surface over a running
// engine: health, and propagation outcome counters. It never implements
// propagation semantics itself; it only observes them through a Recorder
// callback callers register on their own Status values.
package api

import (
	"sync/atomic"

	"github.com/sharedcode/txflow/propagation"
)

// Recorder is a propagation.Callback that tallies how transactions complete.
// Register one instance on every Status an application creates (or wrap
// engine.GetTransaction to do so automatically) to get process-wide counters.
type Recorder struct {
	propagation.NoopCallback

	committed  atomic.Int64
	rolledBack atomic.Int64
	unknown    atomic.Int64
}

// NewRecorder returns a Recorder with all counters at zero.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AfterCompletion(status propagation.CompletionStatus) {
	switch status {
	case propagation.CompletionCommitted:
		r.committed.Add(1)
	case propagation.CompletionRolledBack:
		r.rolledBack.Add(1)
	default:
		r.unknown.Add(1)
	}
}

// Snapshot is the JSON-serializable view of a Recorder's current counters.
type Snapshot struct {
	Committed  int64 `json:"committed"`
	RolledBack int64 `json:"rolledBack"`
	Unknown    int64 `json:"unknown"`
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Committed:  r.committed.Load(),
		RolledBack: r.rolledBack.Load(),
		Unknown:    r.unknown.Load(),
	}
}
