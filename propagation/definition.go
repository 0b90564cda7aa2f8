// Package propagation implements the transaction propagation workflow engine:
// given a caller-declared Definition and the current execution context, it
// decides whether to begin a new Strategy-backed transaction, participate in
// an existing one, suspend-and-replace it, create a savepoint, or run without
// transactional scope, then drives commit or rollback through the same
// discipline. Resource drivers, declarative interception, and configuration
// binding are explicitly out of scope here; they are reached only through the
// Strategy contract a caller supplies.
package propagation

import "fmt"

// Propagation is the rule determining how a new transactional scope relates
// to any currently active one. The integer encodings are stable and must not
// be renumbered.
type Propagation int

const (
	REQUIRED Propagation = iota
	SUPPORTS
	MANDATORY
	REQUIRES_NEW
	NOT_SUPPORTED
	NEVER
	NESTED
)

func (p Propagation) String() string {
	switch p {
	case REQUIRED:
		return "REQUIRED"
	case SUPPORTS:
		return "SUPPORTS"
	case MANDATORY:
		return "MANDATORY"
	case REQUIRES_NEW:
		return "REQUIRES_NEW"
	case NOT_SUPPORTED:
		return "NOT_SUPPORTED"
	case NEVER:
		return "NEVER"
	case NESTED:
		return "NESTED"
	default:
		return fmt.Sprintf("Propagation(%d)", int(p))
	}
}

// Isolation is the strength of guarantees against concurrent anomalies.
// Encodings match the standard database driver constants.
type Isolation int

const (
	DEFAULT          Isolation = -1
	READ_UNCOMMITTED Isolation = 1
	READ_COMMITTED   Isolation = 2
	REPEATABLE_READ  Isolation = 4
	SERIALIZABLE     Isolation = 8
)

func (i Isolation) String() string {
	switch i {
	case DEFAULT:
		return "DEFAULT"
	case READ_UNCOMMITTED:
		return "READ_UNCOMMITTED"
	case READ_COMMITTED:
		return "READ_COMMITTED"
	case REPEATABLE_READ:
		return "REPEATABLE_READ"
	case SERIALIZABLE:
		return "SERIALIZABLE"
	default:
		return fmt.Sprintf("Isolation(%d)", int(i))
	}
}

// Definition is an immutable declaration of the propagation, isolation,
// timeout, read-only, and name a caller wants for a transactional scope.
type Definition struct {
	Propagation Propagation
	Isolation   Isolation
	// Timeout is in seconds; -1 means "use the engine's default timeout".
	Timeout int
	ReadOnly bool
	Name     string
}

// Validate enforces the Definition's only standalone invariant: timeout >= -1.
func (d Definition) Validate() error {
	if d.Timeout < -1 {
		return newError(InvalidTimeout, fmt.Sprintf("timeout must be >= -1, got %d", d.Timeout), nil)
	}
	return nil
}
