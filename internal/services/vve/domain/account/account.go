// Package account owns users, password authentication and access tokens.
package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 10

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("account store is not configured")
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = apperrors.New(apperrors.CodeInvalidCredentials, "invalid email or password")
	// ErrWeakPassword indicates the password is shorter than MinPasswordLength.
	ErrWeakPassword = apperrors.New(apperrors.CodeWeakPassword, "password must be at least 10 characters")
	// ErrInvalidEmail indicates the email address could not be parsed.
	ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidEmail, "email address is invalid")
)

// User is one login identity. A user may belong to many associations.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	SuperAdmin   bool
	Locale       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is the persistence boundary for users.
type Store interface {
	PutUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// RegisterInput describes a new user.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	Locale      string
	SuperAdmin  bool
}

// Service implements user registration and authentication.
type Service struct {
	store    Store
	clock    func() time.Time
	newID    func() (string, error)
	hashCost int
}

// NewService constructs account use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes and validates a bare email address.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(normalized)
	if err != nil || parsed.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// HashPassword validates the password length and returns a bcrypt hash.
func (s *Service) HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register creates a user. The email must not be registered yet.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	if s == nil || s.store == nil {
		return User{}, ErrStoreNotConfigured
	}
	email, err := ValidateEmail(input.Email)
	if err != nil {
		return User{}, err
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return User{}, apperrors.New(apperrors.CodeConflict, "email is already registered")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return User{}, err
	}
	hash, err := s.HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	userID, err := s.newID()
	if err != nil {
		return User{}, err
	}
	now := s.clock().UTC()
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = email
	}
	user := User{
		ID:           userID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		SuperAdmin:   input.SuperAdmin,
		Locale:       normalizeLocale(input.Locale),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate checks email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	if s == nil || s.store == nil {
		return User{}, ErrStoreNotConfigured
	}
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if user.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	if s == nil || s.store == nil {
		return User{}, ErrStoreNotConfigured
	}
	return s.store.GetUser(ctx, strings.TrimSpace(userID))
}

// FindByEmail returns the user registered with email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	if s == nil || s.store == nil {
		return User{}, ErrStoreNotConfigured
	}
	return s.store.GetUserByEmail(ctx, NormalizeEmail(email))
}

// BootstrapSuperAdmin creates the super admin, or promotes the existing user
// with that email. The password of an existing user is left untouched.
func (s *Service) BootstrapSuperAdmin(ctx context.Context, email, displayName, password string) (User, bool, error) {
	if s == nil || s.store == nil {
		return User{}, false, ErrStoreNotConfigured
	}
	normalized, err := ValidateEmail(email)
	if err != nil {
		return User{}, false, err
	}
	existing, err := s.store.GetUserByEmail(ctx, normalized)
	switch {
	case err == nil:
		if existing.SuperAdmin {
			return existing, false, nil
		}
		existing.SuperAdmin = true
		existing.UpdatedAt = s.clock().UTC()
		if err := s.store.PutUser(ctx, existing); err != nil {
			return User{}, false, err
		}
		return existing, false, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return User{}, false, err
	}
	user, err := s.Register(ctx, RegisterInput{
		Email:       normalized,
		DisplayName: displayName,
		Password:    password,
		SuperAdmin:  true,
	})
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

// SetPassword replaces the password of an existing user.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	user, err := s.store.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.clock().UTC()
	return s.store.PutUser(ctx, user)
}

func normalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "en", "en-us", "en-gb":
		return "en"
	default:
		return "nl"
	}
}
