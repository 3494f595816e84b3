package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

// IdentityResolver turns credentials or an OAuth profile into a stored
// user. It never issues tokens; that is TokenIssuer's job.
type IdentityResolver struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger

	// dummyHash is compared against when there is no real hash to check,
	// so unknown and OAuth-only accounts cost the same bcrypt time as a
	// wrong password.
	dummyOnce sync.Once
	dummyHash string
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{users: users, passwords: passwords, logger: logger}
}

// NormalizeEmail trims and lower-cases an email address. Every lookup and
// every insert goes through it, so "Alice@Example.com " and
// "alice@example.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// defaultName is the local part of an email, used when no name is given.
func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// ResolveLocal checks an email and password.
//
// Unknown email, an account without a password and a wrong password all
// return the same apperror.InvalidCredentials, so the response never
// reveals which accounts exist.
func (r *IdentityResolver) ResolveLocal(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)

	// bcrypt compares only the first 72 bytes, so a longer input would
	// match any password sharing that prefix.
	if len(password) > auth.MaxPasswordBytes {
		r.burnCompare(password)
		return nil, apperror.InvalidCredentials()
	}

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			r.burnCompare(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/identity: resolve local: %w", err)
	}

	if !user.HasPassword() {
		r.burnCompare(password)
		return nil, apperror.InvalidCredentials()
	}

	if err := r.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			r.logger.Error("stored password hash is unreadable",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	return user, nil
}

// Register creates a password account.
//
// The pre-check catches the common duplicate case with a clean error; the
// store's unique index still catches two registrations racing for the
// same email.
func (r *IdentityResolver) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	_, err := r.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.DuplicateAccount("email")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/identity: register: %w", err)
	}

	hash, err := r.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", err.Error())
		}
		return nil, fmt.Errorf("service/identity: register: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName(email)
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: register: %w", err)
	}

	r.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("method", "password"),
	)
	return user, nil
}

// ResolveGoogle finds or creates the account linked to a Google profile.
//
// Repeated calls with the same profile id return the same user. When the
// profile photo changed, the stored avatar is refreshed. A profile whose
// email already belongs to a password account is not merged into it: the
// store's unique email index rejects the insert with DuplicateAccount.
func (r *IdentityResolver) ResolveGoogle(ctx context.Context, profile *model.OAuthProfile) (*model.User, error) {
	if profile == nil || profile.ID == "" {
		return nil, apperror.ValidationFailed("id", "OAuth profile has no id")
	}

	user, err := r.users.FindByGoogleID(ctx, profile.ID)
	if err == nil {
		return r.refreshAvatar(ctx, user, profile.PrimaryPhoto()), nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: resolve google: %w", err)
	}

	email := NormalizeEmail(profile.PrimaryEmail())
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Google profile has no email address")
	}

	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = defaultName(email)
	}

	user = &model.User{
		Email:     email,
		Name:      name,
		GoogleID:  profile.ID,
		AvatarURL: profile.PrimaryPhoto(),
	}
	if err := r.users.Create(ctx, user); err != nil {
		// Two first logins for the same Google account can race; the loser
		// picks up the winner's row.
		if errors.Is(err, apperror.ErrDuplicateAccount) {
			if existing, findErr := r.users.FindByGoogleID(ctx, profile.ID); findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("service/identity: resolve google: %w", err)
	}

	r.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("method", "google"),
	)
	return user, nil
}

// refreshAvatar stores a changed profile photo. A failed refresh is logged
// and the login proceeds with the old avatar.
func (r *IdentityResolver) refreshAvatar(ctx context.Context, user *model.User, photo string) *model.User {
	if photo == "" || photo == user.AvatarURL {
		return user
	}
	updated, err := r.users.Update(ctx, user.ID, model.UserPatch{AvatarURL: &photo})
	if err != nil {
		r.logger.Warn("refreshing avatar failed",
			slog.Int64("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return user
	}
	return updated
}

// burnCompare spends one bcrypt comparison so that rejected logins take
// as long as a wrong password does.
func (r *IdentityResolver) burnCompare(password string) {
	r.dummyOnce.Do(func() {
		r.dummyHash, _ = r.passwords.Hash("dummy-password-for-timing")
	})
	if r.dummyHash != "" {
		_ = r.passwords.Verify(r.dummyHash, password)
	}
}

func validateCredentials(email, password string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", auth.ErrPasswordTooLong.Error())
	}
	return nil
}
