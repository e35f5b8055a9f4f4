// Package apperr defines the error kinds shared by the domain packages and
// the HTTP layer. Domain code returns either *Error values or its own typed
// errors that report a Kind; handlers translate kinds to status codes.
package apperr

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies an error for callers that need to react to it.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindStock
	KindUnauthorized
	KindForbidden
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindStock:
		return "stock"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Kinder is implemented by errors that carry their own classification.
type Kinder interface {
	ErrorKind() Kind
}

// Error is a classified error with a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	// Details is attached to the response payload as-is.
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements Kinder.
func (e *Error) ErrorKind() Kind { return e.Kind }

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind with a client-facing message.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation returns a KindValidation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// NotFound returns a KindNotFound error.
func NotFound(msg string) *Error {
	return New(KindNotFound, msg)
}

// Conflict returns a KindStateConflict error carrying details.
func Conflict(msg string, details any) *Error {
	return &Error{Kind: KindStateConflict, Message: msg, Details: details}
}

// KindOf reports the kind of err. Deadline and cancellation errors from
// storage calls are treated as retryable unavailability.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}

// Message returns the client-facing message of err, or fallback when err is
// not classified.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var k Kinder
	if errors.As(err, &k) && k.ErrorKind() != KindInternal {
		return k.(error).Error()
	}
	return fallback
}

// DetailsOf returns the details attached to err, if any.
func DetailsOf(err error) any {
	var d interface{ ErrorDetails() any }
	if errors.As(err, &d) {
		return d.ErrorDetails()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
