package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
)

func TestRegisterNormalizesEmailAndHashesPassword(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, "user-1")

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:       "  Anna@Example.NL ",
		DisplayName: "Anna de Boer",
		Password:    "correct horse battery",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "anna@example.nl" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	if user.Locale != "nl" {
		t.Fatalf("locale = %q, want nl default", user.Locale)
	}
	if user.PasswordHash == "correct horse battery" || user.PasswordHash == "" {
		t.Fatalf("expected bcrypt hash, got %q", user.PasswordHash)
	}
	if _, err := svc.Register(context.Background(), RegisterInput{Email: "anna@example.nl", Password: "another password"}); !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("duplicate register err = %v, want conflict", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    RegisterInput
		wantCode apperrors.Code
	}{
		{name: "empty email", input: RegisterInput{Password: "long enough pw"}, wantCode: apperrors.CodeInvalidEmail},
		{name: "display name in email", input: RegisterInput{Email: "Anna <anna@example.nl>", Password: "long enough pw"}, wantCode: apperrors.CodeInvalidEmail},
		{name: "short password", input: RegisterInput{Email: "anna@example.nl", Password: "short"}, wantCode: apperrors.CodeWeakPassword},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(newFakeStore(), "user-1")
			_, err := svc.Register(context.Background(), tc.input)
			if got := apperrors.CodeOf(err); got != tc.wantCode {
				t.Fatalf("code = %s, want %s (err %v)", got, tc.wantCode, err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, "user-1")
	if _, err := svc.Register(context.Background(), RegisterInput{Email: "kees@example.nl", Password: "penningmeester"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), " KEES@example.nl", "penningmeester")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("user id = %q", user.ID)
	}
	if _, err := svc.Authenticate(context.Background(), "kees@example.nl", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.nl", "penningmeester"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestBootstrapSuperAdminIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, "user-1", "user-2")

	first, created, err := svc.BootstrapSuperAdmin(context.Background(), "admin@example.nl", "Admin", "super secret pw")
	if err != nil || !created {
		t.Fatalf("first bootstrap created=%v err=%v", created, err)
	}
	second, created, err := svc.BootstrapSuperAdmin(context.Background(), "ADMIN@example.nl", "Admin", "other password")
	if err != nil || created {
		t.Fatalf("second bootstrap created=%v err=%v", created, err)
	}
	if second.ID != first.ID || !second.SuperAdmin {
		t.Fatalf("second = %+v, want same super admin", second)
	}
	if _, err := svc.Authenticate(context.Background(), "admin@example.nl", "super secret pw"); err != nil {
		t.Fatalf("original password should still work: %v", err)
	}
}

func TestBootstrapSuperAdminPromotesExistingUser(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, "user-1")
	if _, err := svc.Register(context.Background(), RegisterInput{Email: "board@example.nl", Password: "voorzitter123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, created, err := svc.BootstrapSuperAdmin(context.Background(), "board@example.nl", "", "")
	if err != nil || created {
		t.Fatalf("bootstrap created=%v err=%v", created, err)
	}
	if !user.SuperAdmin || !store.users["user-1"].SuperAdmin {
		t.Fatal("expected existing user to be promoted")
	}
}

func TestServiceRequiresStore(t *testing.T) {
	t.Parallel()

	var svc *Service
	if _, err := svc.GetUser(context.Background(), "u"); !errors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("nil service err = %v", err)
	}
}

func newTestService(store *fakeStore, ids ...string) *Service {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return NewService(store, func() time.Time { return now }, id.Sequence(ids...)).WithHashCost(bcrypt.MinCost)
}

type fakeStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User)}
}

func (s *fakeStore) PutUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, apperrors.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, apperrors.ErrNotFound
}
