// Package corerr defines the single error type shared by every core
// subsystem, per the error kinds in spec §7.
package corerr

import (
	"errors"
	"fmt"
)

// Kind classifies a CoreError so the message loop and marshalling bridge
// can decide how to react without string-matching.
type Kind int

const (
	KindResources Kind = iota
	KindInvalid
	KindNoMatch
	KindTimeout
	KindRead
	KindWrite
	KindDriver
	KindBusy
	KindRestartApp
	KindRestart
)

func (k Kind) String() string {
	switch k {
	case KindResources:
		return "resources"
	case KindInvalid:
		return "invalid"
	case KindNoMatch:
		return "no_match"
	case KindTimeout:
		return "timeout"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindDriver:
		return "driver"
	case KindBusy:
		return "busy"
	case KindRestartApp:
		return "restart_app"
	case KindRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// CoreError wraps a Kind, the operation that failed, and an optional cause.
type CoreError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New builds a CoreError with no wrapped cause.
func New(kind Kind, op string) *CoreError {
	return &CoreError{Kind: kind, Op: op}
}

// Wrap builds a CoreError around an existing error.
func Wrap(kind Kind, op string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return &CoreError{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInvalid when err is
// not a CoreError — an unclassified error at the loop's top level is always
// treated as something to log and suppress, never as a reason to break.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInvalid
}

// Fatal reports whether the loop must break on this error: restart_app,
// restart, and transport read/write failures, per §7's propagation policy.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindRestartApp, KindRestart, KindRead, KindWrite:
		return true
	default:
		return false
	}
}
