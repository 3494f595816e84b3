// Package postgres implements repository.UserRepository on PostgreSQL.
//
// This is the production relational backend. Identity is the BIGSERIAL
// primary key, uniqueness of email and google_id is enforced by the schema
// (see migrations/), and queries go through pgx's native pool rather than
// database/sql.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the store needs.
// pgxmock.PgxPoolIface satisfies it too, which is how the tests run
// without a database server.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB wraps the pool and provides the user store methods.
type DB struct{ Pool PgxPool }

// New creates a connection pool for dsn and verifies it answers.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// uniqueViolation reports whether err is a unique constraint violation
// (SQLSTATE 23505) and which key caused it.
func uniqueViolation(err error) (string, bool) {
	var pg *pgconn.PgError
	if !errors.As(err, &pg) || pg.Code != "23505" {
		return "", false
	}
	if pg.ConstraintName == "users_google_id_key" {
		return "google id", true
	}
	return "email", true
}
