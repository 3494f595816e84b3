// Package repository defines the Credential Store contract.
//
// Three implementations live in sub-packages and must be indistinguishable
// to callers:
//
//	repository/postgres  relational, native BIGSERIAL identity (production)
//	repository/sqlite    relational, INTEGER PRIMARY KEY identity (dev/tests)
//	repository/mongo     documents, synthetic userIdHash identity
//
// ERROR CONTRACT:
//   - "no such user"        → error wrapping apperror.ErrNotFound
//   - unique key violation  → error wrapping apperror.ErrDuplicateAccount
//   - anything else failing → error wrapping apperror.ErrStoreUnavailable
package repository

import (
	"context"

	"github.com/sakif/expense-auth/internal/model"
)

// UserRepository persists and looks up user accounts.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// Create assigns ID, CorrelationID, CreatedAt and UpdatedAt in place.
	Create(ctx context.Context, user *model.User) error

	// Update applies the non-nil patch fields and returns the stored user.
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
