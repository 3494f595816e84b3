package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

// TokenIssuer builds the session token for a resolved user. It does not
// touch the store.
type TokenIssuer struct {
	tokens *auth.TokenService
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(tokens *auth.TokenService) *TokenIssuer {
	return &TokenIssuer{tokens: tokens}
}

// Issue signs {sub, email, name, userId} for user and returns it with the
// public summary.
func (i *TokenIssuer) Issue(user *model.User) (*model.AuthResult, error) {
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("service/session: cannot issue a token for a user without an id")
	}

	token, err := i.tokens.Generate(auth.Payload{
		Sub:    user.ID,
		Email:  user.Email,
		Name:   user.Name,
		UserID: user.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("service/session: issuing token for user %d: %w", user.ID, err)
	}

	return &model.AuthResult{
		AccessToken: token,
		User: model.UserSummary{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			UserID:    user.CorrelationID,
		},
	}, nil
}

// TokenValidator verifies a session token and re-checks that its user
// still exists.
type TokenValidator struct {
	tokens *auth.TokenService
	users  repository.UserRepository
	logger *slog.Logger
}

// NewTokenValidator creates a TokenValidator.
func NewTokenValidator(tokens *auth.TokenService, users repository.UserRepository, logger *slog.Logger) *TokenValidator {
	return &TokenValidator{tokens: tokens, users: users, logger: logger}
}

// Validate returns the authenticated user for token.
//
//   - bad signature, wrong issuer, expired → ErrUnauthenticated (wrapping
//     auth.ErrTokenExpired or auth.ErrTokenInvalid)
//   - user deleted since issuance          → ErrUnauthenticated
//   - store failure                        → ErrStoreUnavailable
//
// UserID is copied from the token, not from the store, so resource
// services scope by exactly the id the issuer handed out.
func (v *TokenValidator) Validate(ctx context.Context, token string) (*model.UserContext, error) {
	claims, err := v.tokens.Validate(token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, auth.ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, apperror.Unauthenticated(msg, err)
	}

	user, err := v.users.FindByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			v.logger.Info("token for unknown user", slog.Int64("userID", claims.Sub))
			return nil, apperror.Unauthenticated("user not found", nil)
		}
		return nil, fmt.Errorf("service/session: validate: %w", err)
	}

	return &model.UserContext{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		GoogleID:  user.GoogleID,
		AvatarURL: user.AvatarURL,
		UserID:    string(claims.UserID),
	}, nil
}
