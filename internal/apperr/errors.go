// Package apperr defines the error taxonomy returned by the conversation
// and call-session services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers.
type Kind int

const (
	// Validation means the caller supplied malformed or missing input.
	// Never retried.
	Validation Kind = iota + 1
	// BackendUnavailable means the persistence gateway could not be reached
	// or failed. Safe to retry with backoff.
	BackendUnavailable
	// InvalidStateTransition means an illegal call status move was attempted.
	InvalidStateTransition
	// NotFound means a referenced chat, call or message does not exist.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation_error"
	case BackendUnavailable:
		return "backend_unavailable"
	case InvalidStateTransition:
		return "invalid_state_transition"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	ErrValidation             = &Error{Kind: Validation}
	ErrBackendUnavailable     = &Error{Kind: BackendUnavailable}
	ErrInvalidStateTransition = &Error{Kind: InvalidStateTransition}
	ErrNotFound               = &Error{Kind: NotFound}
)

// Error is the uniform failure value. Message is safe to show to end users;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New builds an error of the given kind with a user-safe message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// PublicMessage returns the user-safe part of err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	}
	return "internal error"
}
