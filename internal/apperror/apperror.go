// Package apperror defines the error taxonomy shared by the store, service
// and handler layers.
//
// HOW ERRORS FLOW:
// Stores and services return errors that wrap one of the sentinels below.
// Only the handler package translates them to HTTP status codes, so the
// business layer never needs to know about HTTP:
//
//	store:    apperror.Unavailable("finding user by email", pgErr)
//	service:  fmt.Errorf("service/identity: register: %w", err)
//	handler:  errors.Is(err, apperror.ErrStoreUnavailable) → 503
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrInvalidCredentials covers unknown email, OAuth-only account and
	// wrong password alike. Callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateAccount means the email (or Google id) is already taken.
	ErrDuplicateAccount = errors.New("duplicate account")

	// ErrUnauthenticated covers missing, malformed, expired or unverifiable
	// tokens, and tokens whose user no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStoreUnavailable means the credential store could not be reached
	// or failed the query. It is never retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrRateLimited = errors.New("rate limited")
)

// AppError carries a sentinel (Err) for classification, a client-safe
// Message, and optionally the Field at fault and an underlying Cause.
type AppError struct {
	Err     error  // sentinel used with errors.Is
	Message string // human-readable, safe to return to clients
	Field   string // optional: request field causing the error
	Cause   error  // optional: lower-level error, kept for logs and errors.Is
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidCredentials always carries the same message so that the response
// does not reveal which check failed.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

// DuplicateAccount reports that an account already exists for the key.
func DuplicateAccount(key string) *AppError {
	return &AppError{
		Err:     ErrDuplicateAccount,
		Message: fmt.Sprintf("user with this %s already exists", key),
	}
}

// Unauthenticated wraps an optional cause (e.g. auth.ErrTokenExpired).
func Unauthenticated(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
		Cause:   cause,
	}
}

// Unavailable wraps a persistence failure. op names what was attempted.
func Unavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreUnavailable,
		Message: op,
		Cause:   cause,
	}
}

// RateLimited is returned when a client exceeded its request budget.
func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "rate limit exceeded",
	}
}
