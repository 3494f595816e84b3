package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/model"
)

const stateCookie = "oauth_state"

// Authenticator is the part of service.AuthService the handlers use.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.AuthResult, error)
	Register(ctx context.Context, email, password, name string) (*model.AuthResult, error)
	LoginGoogle(ctx context.Context, profile *model.OAuthProfile) (*model.AuthResult, error)
	DevLogin(ctx context.Context, email, name string) (*model.AuthResult, error)
}

// OAuthProvider starts and completes a third-party login.
// *auth.GoogleProvider satisfies it.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.OAuthProfile, error)
}

// AuthOptions configures cookie and redirect behaviour.
type AuthOptions struct {
	// FrontendURL receives the browser after the Google callback.
	FrontendURL string
	// TokenTTL is the token cookie lifetime; it matches the JWT expiry.
	TokenTTL time.Duration
	// SecureCookies marks cookies Secure (HTTPS only). On in production.
	SecureCookies bool
}

// AuthHandler serves the /auth endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister, HandleLogin, HandleDevLogin → credential logins (JSON)
//   - HandleGoogleLogin, HandleGoogleCallback    → browser OAuth flow
//   - HandleProfile, HandleVerify                → read the authenticated user
//   - HandleLogout                               → clear the token cookie
//
// Every successful login answers the same AuthResult body and also sets
// the token cookie, so both API clients and browsers are served.
type AuthHandler struct {
	svc    Authenticator
	google OAuthProvider // nil when Google login is not configured
	opts   AuthOptions
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(svc Authenticator, google OAuthProvider, opts AuthOptions, logger *slog.Logger) *AuthHandler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = auth.DefaultTTL
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &AuthHandler{svc: svc, google: google, opts: opts, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /auth/register {email, password, name?} → 201 AuthResult
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusCreated, res)
}

// HandleLogin authenticates with email and password.
//
// HTTP: POST /auth/login {email, password} → 200 AuthResult
//
// Unknown email, OAuth-only account and wrong password all answer the
// same 401 body.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperror.ValidationFailed("email", "email and password are required"))
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, res)
}

// HandleDevLogin logs in (or registers) with the fixed development password.
//
// HTTP: POST /auth/dev-login {email, name?} → 200 AuthResult, 404 in production
func (h *AuthHandler) HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.DevLogin(r.Context(), req.Email, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, res)
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /auth/google
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into a short-lived HttpOnly cookie and
// into the consent URL. The callback only proceeds when the two match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the Google login.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state parameter against the cookie
//  2. Exchange the code for the Google profile
//  3. Resolve the profile to an account and issue a token
//  4. Redirect to FRONTEND_URL/auth/callback?token=<jwt>
//
// Failures after the state check also redirect to the frontend, with
// ?error=<code>, because the user is looking at a browser tab, not JSON.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("google callback: state mismatch")
		writeError(w, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", denied))
		h.redirectToFrontend(w, r, url.Values{"error": {"access_denied"}})
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google callback: exchange failed", slog.String("error", err.Error()))
		h.redirectToFrontend(w, r, url.Values{"error": {"oauth_failed"}})
		return
	}

	res, err := h.svc.LoginGoogle(r.Context(), profile)
	if err != nil {
		_, errCode := StatusFor(err)
		h.logger.Warn("google callback: login failed",
			slog.String("code", errCode),
			slog.String("error", err.Error()),
		)
		h.redirectToFrontend(w, r, url.Values{"error": {errCode}})
		return
	}

	h.setTokenCookie(w, res.AccessToken)
	h.redirectToFrontend(w, r, url.Values{"token": {res.AccessToken}})
}

// HandleProfile returns the authenticated user.
//
// HTTP: GET /auth/profile (RequireAuth)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("valid authentication required", nil))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// VerifyResponse is the body of GET /auth/verify.
type VerifyResponse struct {
	Valid bool               `json:"valid"`
	User  *model.UserContext `json:"user"`
}

// HandleVerify lets resource services check a token they were handed.
//
// HTTP: GET /auth/verify (RequireAuth) → {valid: true, user}
//
// Invalid tokens never reach this handler; RequireAuth answers 401.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("valid authentication required", nil))
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, User: user})
}

// HandleLogout deletes the token cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so a copied token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, res *model.AuthResult) {
	h.setTokenCookie(w, res.AccessToken)
	writeJSON(w, status, res)
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.opts.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, h.opts.FrontendURL+"/auth/callback?"+q.Encode(), http.StatusSeeOther)
}
