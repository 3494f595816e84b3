package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so all error
// bodies share one shape:
//
//	{"error": "invalid_credentials", "message": "Invalid credentials"}
//
// The "error" field is a stable machine-readable code; "message" is safe
// to show to a user. Internal causes (driver errors, stack details) stay
// in the logs.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/expense-auth/internal/apperror"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`

	// RetryAfter is set on 429 answers, in seconds.
	RetryAfter int `json:"retry_after,omitempty"`
}

// WriteJSON sends data with the given status. Middleware outside this
// package answers through it so every body has the same shape.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set after is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// StatusFor maps an error to its HTTP status and error code.
//
// ORDER MATTERS:
// An AppError can match more than one sentinel through its cause, so the
// more specific ones are checked first. A token rejected because its user
// was deleted is "unauthorized", not "not_found".
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrDuplicateAccount):
		return http.StatusConflict, "duplicate_account"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "too_many_requests"
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates a domain error into a response.
//
// Store failures carry the driver error as their cause. Only the AppError
// message for client-facing categories is sent; 5xx answers use a fixed
// message so SQL text or hostnames never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := StatusFor(err)

	resp := ErrorResponse{Error: code}
	var appErr *apperror.AppError
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}

	switch status {
	case http.StatusServiceUnavailable:
		resp.Message = "credential store unavailable"
		logger.Error("credential store failure", slog.String("error", err.Error()))
	case http.StatusInternalServerError:
		resp.Message = "An internal error occurred"
		logger.Error("unhandled error", slog.String("error", err.Error()))
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON request body into dst. Bodies are capped at 1MB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
