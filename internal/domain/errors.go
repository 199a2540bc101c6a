package domain

import "fmt"

// ErrorKind classifies failures surfaced to clients.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindStoreUnavailable  ErrorKind = "STORE_UNAVAILABLE"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
)

// Error is the single error type crossing the service boundary.
type Error struct {
	Kind   ErrorKind
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Detail, e.Field)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against
// the kind sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

func NewValidationError(field, detail string) *Error {
	return &Error{Kind: KindValidation, Field: field, Detail: detail}
}

func NewNotFoundError(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

func NewInvalidTransitionError(from, to Status) *Error {
	return &Error{
		Kind:   KindInvalidTransition,
		Field:  "status",
		Detail: fmt.Sprintf("cannot move status from %s to %s", from, to),
	}
}

func NewStoreUnavailableError(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Detail: "message store unavailable", Err: err}
}
