// Package engineerrors provides the job engine's classified error type and
// a small set of wrapping helpers, in the style of the rest of the corpus:
// a thin Wrap/Wrapf pair for plain context, and a typed, classified error
// for callers (schedulers, REST layers) that need to branch on failure kind.
package engineerrors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps err with additional context.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps err with formatted context.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind classifies engine errors per spec.md §7.
type Kind string

const (
	// KindInvalidArgument marks a synchronously-rejected malformed call:
	// unknown job id, null mandatory field, non-positive track index.
	KindInvalidArgument Kind = "invalid_argument"

	// KindStateConflict marks an operation rejected because of the current
	// state of a job, instance or snapshot (e.g. reschedule of a running
	// job, derive under a locked/incomplete parent).
	KindStateConflict Kind = "state_conflict"

	// KindProviderFailure marks any exception raised from Processor.execute.
	KindProviderFailure Kind = "provider_failure"

	// KindPersistenceFailure marks a failed SnapshotStore call; the engine
	// degrades to in-memory state and continues.
	KindPersistenceFailure Kind = "persistence_failure"
)

// Error is the job engine's classified error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, engineerrors.ErrStateConflict) style checks via the
// sentinel kind values below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewInvalidArgument builds a KindInvalidArgument error.
func NewInvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

// NewStateConflict builds a KindStateConflict error.
func NewStateConflict(message string) *Error {
	return &Error{Kind: KindStateConflict, Message: message}
}

// NewProviderFailure builds a KindProviderFailure error wrapping cause.
func NewProviderFailure(message string, cause error) *Error {
	return &Error{Kind: KindProviderFailure, Message: message, Cause: cause}
}

// NewPersistenceFailure builds a KindPersistenceFailure error wrapping cause.
func NewPersistenceFailure(message string, cause error) *Error {
	return &Error{Kind: KindPersistenceFailure, Message: message, Cause: cause}
}

// ErrStateConflict and friends are sentinels usable with errors.Is when only
// the kind, not the message, matters to the caller.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrStateConflict     = &Error{Kind: KindStateConflict}
	ErrProviderFailure   = &Error{Kind: KindProviderFailure}
	ErrPersistenceFailure = &Error{Kind: KindPersistenceFailure}
)
