// Package apierr models the error kinds the admission core can surface,
// following the repository convention of typed, wrapped errors rather than
// string matching at the HTTP boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for HTTP translation and logging.
type Kind string

// Error kinds from the control-plane error design.
const (
	KindInvalidInput   Kind = "InvalidInput"
	KindJobNotFound    Kind = "JobNotFound"
	KindJobNotComplete Kind = "JobNotCompleted"
	KindTransport      Kind = "TransportError"
	KindStore          Kind = "StoreError"
	KindInternal       Kind = "InternalError"
)

// Error is a typed error carrying an HTTP status and optional per-field
// details, joinable with %w like any stdlib error.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status maps a Kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidInput, KindJobNotComplete:
		return http.StatusBadRequest
	case KindJobNotFound:
		return http.StatusNotFound
	case KindTransport, KindStore, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches a details string, returning the same Error for chaining.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
