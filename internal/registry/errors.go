package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskExists reports a same-namespace pid collision on Register.
	// Registration never silently overwrites a live task.
	ErrTaskExists = errors.New("task already registered")
	// ErrTaskNotFound reports a mutation against a pid with no entry.
	ErrTaskNotFound = errors.New("task not found")
)

// FailureKind classifies registry failures. Callers treat every kind as fatal
// to the requested operation; the kind exists for diagnostics, not recovery.
type FailureKind string

const (
	FailInit  FailureKind = "init"
	FailMapOp FailureKind = "map"
	FailCodec FailureKind = "codec"
)

// Error is the discriminated error for all registry operations.
type Error struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind FailureKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
