// Package storage opens the credential store selected by configuration.
//
// Callers get a repository.UserRepository and never learn which backend
// is behind it. The choice is made once, here, from DATABASE_TYPE.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/expense-auth/internal/config"
	"github.com/sakif/expense-auth/internal/migrate"
	"github.com/sakif/expense-auth/internal/repository"
	mongoRepo "github.com/sakif/expense-auth/internal/repository/mongo"
	postgresRepo "github.com/sakif/expense-auth/internal/repository/postgres"
	sqliteRepo "github.com/sakif/expense-auth/internal/repository/sqlite"
)

// Store is an open credential store.
type Store struct {
	Users   repository.UserRepository
	Backend string
	close   func() error
}

// Close releases the backend's connections.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the backend named by cfg.Type.
func Open(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Store, error) {
	backend, err := config.NormalizeBackend(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	switch backend {
	case config.BackendPostgres:
		if cfg.AutoMigrate {
			if err := migrate.Up(connectCtx, cfg.DatabaseURL, logger); err != nil {
				return nil, fmt.Errorf("storage: %w", err)
			}
		}
		db, err := postgresRepo.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("credential store ready", slog.String("backend", backend))
		return &Store{Users: db, Backend: backend, close: db.Close}, nil

	case config.BackendSQLite:
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		db, err := sqliteRepo.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("credential store ready",
			slog.String("backend", backend),
			slog.String("path", cfg.SQLitePath),
		)
		return &Store{Users: db, Backend: backend, close: db.Close}, nil

	case config.BackendMongo:
		st, err := mongoRepo.New(connectCtx, mongoRepo.Config{
			URL:            cfg.MongoURL,
			Database:       cfg.MongoDatabase,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("credential store ready",
			slog.String("backend", backend),
			slog.String("database", cfg.MongoDatabase),
		)
		return &Store{Users: st, Backend: backend, close: st.Close}, nil
	}

	return nil, fmt.Errorf("storage: unsupported backend %q", backend)
}

// ensureDir creates the parent directory of a file-based SQLite path.
func ensureDir(path string) error {
	if path == ":memory:" || filepath.Dir(path) == "." {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	return nil
}
