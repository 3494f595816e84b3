package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password_hash, google_id, avatar_url, created_at, updated_at`

// FindByEmail selects a user by email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT ` + userColumns + `
FROM users WHERE email = $1`
	return scanUser(db.Pool.QueryRow(ctx, q, email), "email", email)
}

// FindByGoogleID selects a user by linked Google account id.
func (db *DB) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	const q = `
SELECT ` + userColumns + `
FROM users WHERE google_id = $1`
	return scanUser(db.Pool.QueryRow(ctx, q, googleID), "google id", googleID)
}

// FindByID selects a user by primary key.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `
SELECT ` + userColumns + `
FROM users WHERE id = $1`
	return scanUser(db.Pool.QueryRow(ctx, q, id), "id", strconv.FormatInt(id, 10))
}

// Create inserts a new user row. The database assigns id and timestamps.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (email, name, password_hash, google_id, avatar_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`
	row := db.Pool.QueryRow(ctx, q, u.Email, u.Name, optional(u.PasswordHash), optional(u.GoogleID), optional(u.AvatarURL))
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if key, ok := uniqueViolation(err); ok {
			return apperror.DuplicateAccount(key)
		}
		return apperror.Unavailable("postgres: inserting user", err)
	}
	u.CorrelationID = strconv.FormatInt(u.ID, 10)
	return nil
}

// Update applies the non-nil patch fields in one statement.
// A nil *string is sent as NULL, and COALESCE keeps the current value.
func (db *DB) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	const q = `
UPDATE users SET
	name = COALESCE($2, name),
	avatar_url = COALESCE($3, avatar_url),
	google_id = COALESCE($4, google_id),
	password_hash = COALESCE($5, password_hash),
	updated_at = now()
WHERE id = $1
RETURNING ` + userColumns
	row := db.Pool.QueryRow(ctx, q, id, patch.Name, patch.AvatarURL, patch.GoogleID, patch.PasswordHash)
	u, err := scanUser(row, "id", strconv.FormatInt(id, 10))
	if err != nil {
		if key, ok := uniqueViolation(err); ok {
			return nil, apperror.DuplicateAccount(key)
		}
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row, key, value string) (*model.User, error) {
	var (
		u                              model.User
		passwordHash, googleID, avatar pgtype.Text
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &googleID, &avatar, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", key+" "+value)
		}
		if _, ok := uniqueViolation(err); ok {
			return nil, err
		}
		return nil, apperror.Unavailable(fmt.Sprintf("postgres: finding user by %s", key), err)
	}
	u.PasswordHash = passwordHash.String
	u.GoogleID = googleID.String
	u.AvatarURL = avatar.String
	u.CorrelationID = strconv.FormatInt(u.ID, 10)
	return &u, nil
}

// optional maps "" to NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
