// Package apperr defines the error taxonomy surfaced by the search core and its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for the caller.
type Kind int

const (
	// KindUnknown is anything uncategorized.
	KindUnknown Kind = iota
	// KindValidation is malformed input; not retryable.
	KindValidation
	// KindTimeout is the global search deadline elapsing before any usable result.
	KindTimeout
	// KindRateLimited means every requested source signaled blocking, captcha or rate limiting.
	KindRateLimited
	// KindSourceFailure means every requested source failed for some other reason.
	KindSourceFailure
)

// String returns the machine name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindSourceFailure:
		return "source_failure"
	default:
		return "unknown_error"
	}
}

// Retryable reports whether a caller may retry the whole operation.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindRateLimited || k == KindSourceFailure
}

// Error is a classified error. Sources names the listing sources involved, if any.
type Error struct {
	Kind    Kind
	Message string
	Sources []string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Sources) > 0 {
		fmt.Fprintf(&b, " (sources: %s)", strings.Join(e.Sources, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string, sources ...string) *Error {
	return &Error{Kind: kind, Message: message, Sources: sources}
}

// Wrap classifies err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a validation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code the search endpoint returns for it.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindSourceFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
