package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/model"
)

// TokenCookie is the cookie the browser flow stores the token in.
const TokenCookie = "token"

// contextKey is unexported so only this package can set or read the
// authenticated user in a request context.
type contextKey string

const userKey contextKey = "user"

// Verifier turns a raw token into the authenticated user.
type Verifier interface {
	Validate(ctx context.Context, token string) (*model.UserContext, error)
}

// RequireAuth rejects requests without a valid session token.
//
// The token is read from "Authorization: Bearer <jwt>", falling back to
// the token cookie. On success the UserContext is stored in the request
// context; handlers read it with UserFromContext.
//
// A store outage while re-fetching the user answers 503, so clients can
// tell "log in again" apart from "try again later". Every other failure
// answers 401.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			user, err := v.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, apperror.ErrStoreUnavailable) {
					writeAuthError(w, http.StatusServiceUnavailable, "store_unavailable", "credential store unavailable")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.UserContext) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) when
// the request did not pass through RequireAuth.
func UserFromContext(ctx context.Context) (*model.UserContext, bool) {
	u, ok := ctx.Value(userKey).(*model.UserContext)
	return u, ok && u != nil
}

// TokenFromRequest extracts the bearer token, or "" if there is none.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
