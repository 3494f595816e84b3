// Package service holds the authentication business logic.
//
//	AuthHandler (HTTP) → AuthService ─┬→ IdentityResolver → UserRepository
//	                                  ├→ TokenIssuer      → TokenService (JWT)
//	                                  └→ TokenValidator   → TokenService + UserRepository
//
// Nothing in this package knows about HTTP. Errors are classified with the
// apperror sentinels and translated to status codes by the handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

// DevUserName names accounts created by DevLogin without a name.
const DevUserName = "Dev User"

// ErrDevLoginDisabled is returned by DevLogin in production.
var ErrDevLoginDisabled = &apperror.AppError{Err: apperror.ErrNotFound, Message: "dev login is disabled"}

// Options tunes AuthService behaviour per deployment.
type Options struct {
	// DevLoginPassword is the fixed password used by DevLogin.
	DevLoginPassword string
	// Production disables DevLogin.
	Production bool
}

// AuthService composes identity resolution and token handling into the
// operations the HTTP layer exposes.
type AuthService struct {
	identity  *IdentityResolver
	issuer    *TokenIssuer
	validator *TokenValidator
	opts      Options
	logger    *slog.Logger
}

// NewAuthService wires an AuthService from its dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	opts Options,
) *AuthService {
	return &AuthService{
		identity:  NewIdentityResolver(users, passwords, logger),
		issuer:    NewTokenIssuer(tokens),
		validator: NewTokenValidator(tokens, users, logger),
		opts:      opts,
		logger:    logger,
	}
}

// Login authenticates with email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	user, err := s.identity.ResolveLocal(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(user, "password")
}

// Register creates a password account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*model.AuthResult, error) {
	user, err := s.identity.Register(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	return s.issue(user, "register")
}

// LoginGoogle resolves a Google profile to an account and logs it in.
func (s *AuthService) LoginGoogle(ctx context.Context, profile *model.OAuthProfile) (*model.AuthResult, error) {
	user, err := s.identity.ResolveGoogle(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s.issue(user, "google")
}

// DevLoginEnabled reports whether DevLogin may be used.
func (s *AuthService) DevLoginEnabled() bool {
	return !s.opts.Production
}

// DevLogin logs in with the fixed development password, registering the
// account on first use. It is the only place an authentication failure
// is caught and turned into another attempt.
func (s *AuthService) DevLogin(ctx context.Context, email, name string) (*model.AuthResult, error) {
	if !s.DevLoginEnabled() {
		return nil, ErrDevLoginDisabled
	}

	res, err := s.Login(ctx, email, s.opts.DevLoginPassword)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = DevUserName
	}
	s.logger.Debug("dev login: registering new account")
	return s.Register(ctx, email, s.opts.DevLoginPassword, name)
}

// Validate verifies a session token. It satisfies auth.Verifier.
func (s *AuthService) Validate(ctx context.Context, token string) (*model.UserContext, error) {
	return s.validator.Validate(ctx, token)
}

func (s *AuthService) issue(user *model.User, method string) (*model.AuthResult, error) {
	res, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	s.logger.Info("user authenticated",
		slog.Int64("userID", user.ID),
		slog.String("method", method),
	)
	return res, nil
}
