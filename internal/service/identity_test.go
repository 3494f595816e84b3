package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/model"
)

// =========================================================================
// ResolveLocal
// =========================================================================

func TestResolveLocal_Success(t *testing.T) {
	repo := newFakeUserRepo()
	seeded := seedPasswordUser(t, repo, "alice@example.com", "Secret1!")
	r := newTestResolver(repo)

	user, err := r.ResolveLocal(context.Background(), "  Alice@Example.com ", "Secret1!")
	if err != nil {
		t.Fatalf("ResolveLocal() error = %v", err)
	}
	if user.ID != seeded.ID {
		t.Errorf("ID = %d, want %d", user.ID, seeded.ID)
	}
}

func TestResolveLocal_FailuresAreIndistinguishable(t *testing.T) {
	repo := newFakeUserRepo()
	seedPasswordUser(t, repo, "alice@example.com", "Secret1!")
	if err := repo.Create(context.Background(), &model.User{Email: "oauth@example.com", GoogleID: "g-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := newTestResolver(repo)

	cases := []struct{ name, email, password string }{
		{"unknown email", "nobody@example.com", "Secret1!"},
		{"oauth-only account", "oauth@example.com", "anything"},
		{"wrong password", "alice@example.com", "Secret2!"},
	}

	var messages []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ResolveLocal(context.Background(), tc.email, tc.password)
			if !errors.Is(err, apperror.ErrInvalidCredentials) {
				t.Fatalf("error = %v, want ErrInvalidCredentials", err)
			}
			messages = append(messages, err.Error())
		})
	}

	for _, m := range messages {
		if m != messages[0] {
			t.Errorf("messages differ: %q vs %q", m, messages[0])
		}
	}
}

func TestResolveLocal_StoreFailurePropagates(t *testing.T) {
	repo := newFakeUserRepo()
	repo.findErr = apperror.Unavailable("fake: finding user", errors.New("connection refused"))
	r := newTestResolver(repo)

	_, err := r.ResolveLocal(context.Background(), "alice@example.com", "x")
	if !errors.Is(err, apperror.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Error("a store failure must not look like bad credentials")
	}
}

func TestResolveLocal_RejectsPasswordsOverBcryptLimit(t *testing.T) {
	repo := newFakeUserRepo()
	full := strings.Repeat("p", 72)
	seedPasswordUser(t, repo, "long@example.com", full)
	r := newTestResolver(repo)

	if _, err := r.ResolveLocal(context.Background(), "long@example.com", full); err != nil {
		t.Fatalf("ResolveLocal() with the exact password: %v", err)
	}

	// Same first 72 bytes, extra suffix.
	_, err := r.ResolveLocal(context.Background(), "long@example.com", full+"anything")
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

// =========================================================================
// Register
// =========================================================================

func TestRegister_CreatesHashedAccount(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)

	user, err := r.Register(context.Background(), "Bob@Example.com", "Secret1!", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "bob@example.com" {
		t.Errorf("Email = %q, want lower-cased", user.Email)
	}
	if user.Name != "bob" {
		t.Errorf("Name = %q, want email local part", user.Name)
	}
	if !strings.HasPrefix(user.PasswordHash, "$2") || user.PasswordHash == "Secret1!" {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", user.PasswordHash)
	}

	// The new account can log in right away.
	if _, err := r.ResolveLocal(context.Background(), "bob@example.com", "Secret1!"); err != nil {
		t.Errorf("ResolveLocal() after Register: %v", err)
	}
}

func TestRegister_KeepsGivenName(t *testing.T) {
	r := newTestResolver(newFakeUserRepo())

	user, err := r.Register(context.Background(), "c@example.com", "pw", "  Carol  ")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Name != "Carol" {
		t.Errorf("Name = %q, want %q", user.Name, "Carol")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	repo := newFakeUserRepo()
	seedPasswordUser(t, repo, "dup@example.com", "pw")
	r := newTestResolver(repo)

	_, err := r.Register(context.Background(), "DUP@example.com", "other", "")
	if !errors.Is(err, apperror.ErrDuplicateAccount) {
		t.Fatalf("error = %v, want ErrDuplicateAccount", err)
	}
	if repo.creates != 1 {
		t.Errorf("creates = %d, want 1 (pre-check should stop the insert)", repo.creates)
	}
}

func TestRegister_StoreUniqueConstraintRace(t *testing.T) {
	repo := newFakeUserRepo()
	// The pre-check sees no account, then the insert loses the race.
	repo.createErr = apperror.DuplicateAccount("email")
	r := newTestResolver(repo)

	_, err := r.Register(context.Background(), "race@example.com", "pw", "")
	if !errors.Is(err, apperror.ErrDuplicateAccount) {
		t.Fatalf("error = %v, want ErrDuplicateAccount", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	r := newTestResolver(newFakeUserRepo())

	cases := []struct {
		name, email, password, field string
	}{
		{"empty email", "", "pw", "email"},
		{"not an email", "not-an-email", "pw", "email"},
		{"display name form", "Alice <a@example.com>", "pw", "email"},
		{"empty password", "a@example.com", "", "password"},
		{"password over 72 bytes", "a@example.com", strings.Repeat("x", 73), "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Register(context.Background(), tc.email, tc.password, "")
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tc.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tc.field)
			}
		})
	}
}

// =========================================================================
// ResolveGoogle
// =========================================================================

func googleProfile(id, email, name, photo string) *model.OAuthProfile {
	p := &model.OAuthProfile{ID: id, DisplayName: name}
	if email != "" {
		p.Emails = []model.ProfileValue{{Value: email}}
	}
	if photo != "" {
		p.Photos = []model.ProfileValue{{Value: photo}}
	}
	return p
}

func TestResolveGoogle_CreatesOnFirstLogin(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)

	user, err := r.ResolveGoogle(context.Background(),
		googleProfile("g-1", "Gee@Example.com", "Gee", "https://img/1.png"))
	if err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}
	if user.GoogleID != "g-1" || user.Email != "gee@example.com" || user.Name != "Gee" {
		t.Errorf("user = %+v", user)
	}
	if user.AvatarURL != "https://img/1.png" {
		t.Errorf("AvatarURL = %q", user.AvatarURL)
	}
	if user.HasPassword() {
		t.Error("Google account should not have a password")
	}
}

func TestResolveGoogle_Idempotent(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)
	p := googleProfile("g-1", "g@example.com", "G", "https://img/1.png")

	first, err := r.ResolveGoogle(context.Background(), p)
	if err != nil {
		t.Fatalf("first ResolveGoogle() error = %v", err)
	}
	second, err := r.ResolveGoogle(context.Background(), p)
	if err != nil {
		t.Fatalf("second ResolveGoogle() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("IDs differ: %d vs %d", first.ID, second.ID)
	}
	if repo.creates != 1 || repo.updates != 0 {
		t.Errorf("creates=%d updates=%d, want 1 and 0", repo.creates, repo.updates)
	}
}

func TestResolveGoogle_RefreshesAvatar(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)
	ctx := context.Background()

	if _, err := r.ResolveGoogle(ctx, googleProfile("g-1", "g@example.com", "G", "https://img/old.png")); err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}
	user, err := r.ResolveGoogle(ctx, googleProfile("g-1", "g@example.com", "G", "https://img/new.png"))
	if err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}

	if user.AvatarURL != "https://img/new.png" {
		t.Errorf("AvatarURL = %q, want refreshed", user.AvatarURL)
	}
	if repo.updates != 1 {
		t.Errorf("updates = %d, want 1", repo.updates)
	}
}

func TestResolveGoogle_AvatarRefreshFailureDoesNotBlockLogin(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)
	ctx := context.Background()

	if _, err := r.ResolveGoogle(ctx, googleProfile("g-1", "g@example.com", "G", "https://img/old.png")); err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}
	repo.updateErr = apperror.Unavailable("fake: update", errors.New("timeout"))

	user, err := r.ResolveGoogle(ctx, googleProfile("g-1", "g@example.com", "G", "https://img/new.png"))
	if err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}
	if user.AvatarURL != "https://img/old.png" {
		t.Errorf("AvatarURL = %q, want the stored one", user.AvatarURL)
	}
}

func TestResolveGoogle_NameDefaultsToLocalPart(t *testing.T) {
	r := newTestResolver(newFakeUserRepo())

	user, err := r.ResolveGoogle(context.Background(), googleProfile("g-2", "dana@example.com", "", ""))
	if err != nil {
		t.Fatalf("ResolveGoogle() error = %v", err)
	}
	if user.Name != "dana" {
		t.Errorf("Name = %q, want %q", user.Name, "dana")
	}
}

func TestResolveGoogle_ProfileWithoutEmail(t *testing.T) {
	repo := newFakeUserRepo()
	r := newTestResolver(repo)

	_, err := r.ResolveGoogle(context.Background(), googleProfile("g-3", "", "No Mail", ""))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if repo.creates != 0 {
		t.Error("nothing should be stored for a profile without email")
	}
}

func TestResolveGoogle_InvalidProfile(t *testing.T) {
	r := newTestResolver(newFakeUserRepo())

	for _, p := range []*model.OAuthProfile{nil, {DisplayName: "no id"}} {
		if _, err := r.ResolveGoogle(context.Background(), p); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("ResolveGoogle(%+v) error = %v, want ErrValidation", p, err)
		}
	}
}

func TestResolveGoogle_EmailHeldByPasswordAccountIsNotMerged(t *testing.T) {
	repo := newFakeUserRepo()
	local := seedPasswordUser(t, repo, "shared@example.com", "Secret1!")
	r := newTestResolver(repo)

	_, err := r.ResolveGoogle(context.Background(), googleProfile("g-9", "shared@example.com", "S", ""))
	if !errors.Is(err, apperror.ErrDuplicateAccount) {
		t.Fatalf("error = %v, want ErrDuplicateAccount", err)
	}

	stored, _ := repo.FindByID(context.Background(), local.ID)
	if stored.GoogleID != "" {
		t.Error("password account must not be linked to the Google id")
	}
}

func TestResolveGoogle_StoreFailurePropagates(t *testing.T) {
	repo := newFakeUserRepo()
	repo.findErr = apperror.Unavailable("fake: find", errors.New("down"))
	r := newTestResolver(repo)

	_, err := r.ResolveGoogle(context.Background(), googleProfile("g-1", "g@example.com", "G", ""))
	if !errors.Is(err, apperror.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.COM":     "alice@example.com",
		"  bob@example.com\t":   "bob@example.com",
		"already@lower.example": "already@lower.example",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
