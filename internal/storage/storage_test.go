package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/expense-auth/internal/config"
	"github.com/sakif/expense-auth/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_SQLiteInMemory(t *testing.T) {
	st, err := Open(context.Background(), config.Storage{Type: "sqlite", SQLitePath: ":memory:"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	assert.Equal(t, config.BackendSQLite, st.Backend)

	ctx := context.Background()
	u := &model.User{Email: "factory@example.com", Name: "f"}
	require.NoError(t, st.Users.Create(ctx, u))
	found, err := st.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, found.Email)
	assert.NoError(t, st.Users.Ping(ctx))
}

func TestOpen_SQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.db")

	st, err := Open(context.Background(), config.Storage{Type: "SQLite", SQLitePath: path}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, st.Close())
	assert.FileExists(t, path)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Storage{Type: "firestore"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown DATABASE_TYPE")
}

func TestStore_CloseWithoutBackend(t *testing.T) {
	var st Store
	assert.NoError(t, st.Close())
}
