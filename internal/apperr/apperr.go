// Package apperr defines the typed error taxonomy shared by all domain
// services. Handlers map kinds to HTTP status codes; repositories map
// driver errors into these kinds so the rest of the code never inspects
// Postgres error codes directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// KindValidation covers malformed input, bad schema names and invalid
	// payment signatures.
	KindValidation Kind = iota
	// KindNotFound covers unknown tenants, doctors and queue entries.
	KindNotFound
	// KindConflict covers duplicate same-day bookings.
	KindConflict
	// KindUnauthorized covers schemas outside the allow-list and invalid
	// sessions.
	KindUnauthorized
	// KindStateConflict covers transitions attempted from a disallowed
	// queue status.
	KindStateConflict
	// KindInfra covers connection and migration failures.
	KindInfra
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindStateConflict:
		return "state_conflict"
	case KindInfra:
		return "infra"
	}
	return "unknown"
}

// Error is the concrete error type returned by services.
type Error struct {
	Kind Kind
	Msg  string
	// Ref optionally points at the resource that caused the error, e.g. the
	// id of a conflicting booking or the status required before a
	// transition.
	Ref string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.Conflict("")) match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStateConflict, Msg: fmt.Sprintf(format, args...)}
}

func Infra(msg string, err error) *Error {
	return &Error{Kind: KindInfra, Msg: msg, Err: err}
}

// WithRef attaches a resource reference and returns the same error.
func (e *Error) WithRef(ref string) *Error {
	e.Ref = ref
	return e
}

// Wrap attaches a cause and returns the same error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the kind of err, or KindInfra for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// HTTPStatus maps an error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindStateConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
