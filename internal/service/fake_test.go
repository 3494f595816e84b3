package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository that enforces
// the same uniqueness rules as the real stores.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	// set to a non-nil error to simulate a store failure
	findErr   error
	createErr error
	updateErr error

	creates int
	updates int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User), nextID: 1}
}

func (f *fakeUserRepo) find(match func(*model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) FindByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.GoogleID != "" && u.GoogleID == googleID }, googleID)
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, strconv.FormatInt(id, 10))
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.DuplicateAccount("email")
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return apperror.DuplicateAccount("google id")
		}
	}
	user.ID = f.nextID
	f.nextID++
	user.CorrelationID = strconv.FormatInt(user.ID, 10)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	f.users[user.ID] = &cp
	f.creates++
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.AvatarURL != nil {
		u.AvatarURL = *patch.AvatarURL
	}
	if patch.GoogleID != nil {
		u.GoogleID = *patch.GoogleID
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	u.UpdatedAt = time.Now()
	f.updates++
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) Ping(context.Context) error { return nil }

// remove deletes a user, for "account deleted after token issued" cases.
func (f *fakeUserRepo) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

const testSecret = "test-secret-at-least-16-chars!!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(testSecret, "expense-auth", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// Cost 4 is the bcrypt minimum and keeps tests fast.
func newTestPasswords() *auth.PasswordService {
	return auth.NewPasswordService(4)
}

func newTestResolver(repo *fakeUserRepo) *IdentityResolver {
	return NewIdentityResolver(repo, newTestPasswords(), testLogger())
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo, opts Options) *AuthService {
	t.Helper()
	if opts.DevLoginPassword == "" {
		opts.DevLoginPassword = "dev-password-123"
	}
	return NewAuthService(repo, newTestTokens(t), newTestPasswords(), testLogger(), opts)
}

// seedPasswordUser registers a password account directly through the repo.
func seedPasswordUser(t *testing.T, repo *fakeUserRepo, email, password string) *model.User {
	t.Helper()
	hash, err := newTestPasswords().Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &model.User{Email: email, Name: "seeded", PasswordHash: hash}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}
