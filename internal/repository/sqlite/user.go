package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/model"
	"github.com/sakif/expense-auth/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const selectUser = `SELECT id, email, name, password_hash, google_id, avatar_url, created_at, updated_at FROM users`

// FindByEmail returns the user registered with email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email)
	return scanUser(row, "email", email)
}

// FindByGoogleID returns the user linked to the given Google account id.
func (db *DB) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, selectUser+` WHERE google_id = ?`, googleID)
	return scanUser(row, "google id", googleID)
}

// FindByID returns the user with the given primary key.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id)
	return scanUser(row, "id", strconv.FormatInt(id, 10))
}

// Create inserts a new user. The AUTOINCREMENT key becomes user.ID.
//
// Empty optional fields are written as NULL, not '', so the UNIQUE index on
// google_id only constrains accounts that actually have one.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, google_id, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Name,
		nullString(user.PasswordHash),
		nullString(user.GoogleID),
		nullString(user.AvatarURL),
		now,
		now,
	)
	if err != nil {
		if key, ok := uniqueViolation(err); ok {
			return apperror.DuplicateAccount(key)
		}
		return apperror.Unavailable("sqlite: inserting user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperror.Unavailable("sqlite: reading inserted user id", err)
	}

	user.ID = id
	user.CorrelationID = strconv.FormatInt(id, 10)
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// Update applies the non-nil fields of patch and returns the stored row.
//
// COALESCE(?, column) keeps the current value when the argument is NULL,
// which is what a nil patch field becomes. One static statement covers
// every combination of fields.
func (db *DB) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			name          = COALESCE(?, name),
			avatar_url    = COALESCE(?, avatar_url),
			google_id     = COALESCE(?, google_id),
			password_hash = COALESCE(?, password_hash),
			updated_at    = ?
		 WHERE id = ?`,
		patch.Name,
		patch.AvatarURL,
		patch.GoogleID,
		patch.PasswordHash,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		if key, ok := uniqueViolation(err); ok {
			return nil, apperror.DuplicateAccount(key)
		}
		return nil, apperror.Unavailable("sqlite: updating user", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperror.Unavailable("sqlite: reading affected rows", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}

	return db.FindByID(ctx, id)
}

// scanUser reads one users row. Nullable columns come back as "" when NULL.
func scanUser(row *sql.Row, key, value string) (*model.User, error) {
	var (
		u                              model.User
		passwordHash, googleID, avatar sql.NullString
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&passwordHash,
		&googleID,
		&avatar,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key+" "+value)
		}
		return nil, apperror.Unavailable(fmt.Sprintf("sqlite: finding user by %s", key), err)
	}

	u.PasswordHash = passwordHash.String
	u.GoogleID = googleID.String
	u.AvatarURL = avatar.String
	u.CorrelationID = strconv.FormatInt(u.ID, 10)
	return &u, nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and
// which key caused it ("email" or "google id").
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlitelib.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	if strings.Contains(sqliteErr.Error(), "google_id") {
		return "google id", true
	}
	return "email", true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
