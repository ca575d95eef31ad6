// Package orkaerr defines the semantic error kinds that cross component
// boundaries (spec §7 "Error Handling Design"), independent of any
// particular transport. The control surface translates these to HTTP
// status + JSON; the supervisor logs them and only notifies chat for the
// kinds tagged user-visible.
package orkaerr

import (
	"errors"
	"fmt"
)

// Kind is one of the semantic error categories from spec §7.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindPrecondition  Kind = "precondition"
	KindExternal      Kind = "external"
	KindCorrupted     Kind = "corrupted_state"
	KindCancellation  Kind = "cancellation"
	KindFatalStartup  Kind = "fatal_startup"
)

// Error is a typed error carrying a Kind plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound builds a KindNotFound error, e.g. "session", "s_123".
func NotFound(entity, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

// Precondition builds a KindPrecondition error (an invariant would be violated).
func Precondition(message string) *Error {
	return New(KindPrecondition, message)
}

// External wraps a failure from the multiplexer, assistant, LLM, or chat call.
func External(message string, cause error) *Error {
	return Wrap(KindExternal, message, cause)
}

// Corrupted wraps a state-file read failure.
func Corrupted(message string, cause error) *Error {
	return Wrap(KindCorrupted, message, cause)
}

// Cancellation marks a user-initiated abort; never surfaced to the user
// as an error (spec §7: "no user-visible error, body empty 200").
func Cancellation(message string) *Error {
	return New(KindCancellation, message)
}

// FatalStartup marks a condition that should abort process startup.
func FatalStartup(message string, cause error) *Error {
	return Wrap(KindFatalStartup, message, cause)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsUserVisible reports whether the supervisor should notify chat about
// this error category instead of only logging it (spec §7 propagation:
// "notifies chat only for categories tagged user-visible").
func IsUserVisible(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindPrecondition, KindExternal:
		return true
	default:
		return false
	}
}
