// Package apperr classifies service failures and maps them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a service failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindValidation
	KindNotFound
	KindUnauthorized
	KindRateLimited
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation_conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindStore:
		return "store_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Reason is safe to show to callers.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the response status for the error's kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PermissionDenied reports that the caller may not perform the action.
func PermissionDenied(reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Reason: reason}
}

// Validation reports a request that conflicts with the current state.
func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// NotFound reports a missing record, e.g. NotFound("Book").
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Reason: what + " not found."}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason}
}

// RateLimited reports a caller that exceeded its request budget.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Reason: "rate limit exceeded"}
}

// Store wraps a persistence failure for operation op.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Reason: "internal store failure", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// StatusCode maps any error to an HTTP status; unclassified errors are 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text to expose to a client for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return "internal server error"
}

// Wrap returns err unchanged when it is already classified and a store
// failure for op otherwise. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Store(op, err)
}
