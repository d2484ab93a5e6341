package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind string

const (
	// KindValidation: a precondition was not met. No state change, no backend call.
	KindValidation ErrorKind = "validation"
	// KindBackend: the backend collaborator answered with a failure.
	KindBackend ErrorKind = "backend"
	// KindTransport: the backend collaborator could not be reached.
	KindTransport ErrorKind = "transport"
)

// Error is the error type returned by wizard operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		if e.Err != nil {
			return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("%s: backend unreachable: %s", e.Op, e.Message)
	case KindBackend:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// BackendFailure builds an error carrying the backend's message verbatim.
func BackendFailure(op, message string) *Error {
	return &Error{Kind: KindBackend, Op: op, Message: message}
}

// TransportFailure wraps a connectivity error.
func TransportFailure(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, treating unclassified errors as transport failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsKind reports whether err is a wizard error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Classify normalizes any backend-call error into a wizard error for op.
// Backend and transport errors keep their message; anything else becomes a
// transport failure.
func Classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindValidation {
			return e
		}
		return &Error{Kind: e.Kind, Op: op, Message: e.Message, Err: e.Err}
	}
	return TransportFailure(op, err)
}
