package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

const userColumns = `id, email, display_name, password_hash, super_admin, locale, created_at, updated_at`

// PutUser upserts one user.
func (s *Store) PutUser(ctx context.Context, user account.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    email = excluded.email,
    display_name = excluded.display_name,
    password_hash = excluded.password_hash,
    super_admin = excluded.super_admin,
    locale = excluded.locale,
    updated_at = excluded.updated_at
`, user.ID, user.Email, user.DisplayName, user.PasswordHash, boolToInt(user.SuperAdmin), user.Locale,
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
	return mapWriteError(err, "put user")
}

// GetUser loads one user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (account.User, error) {
	if err := s.ready(ctx); err != nil {
		return account.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, strings.TrimSpace(userID))
	user, err := scanUser(row.Scan)
	if err != nil {
		return account.User{}, mapReadError(err, "get user")
	}
	return user, nil
}

// GetUserByEmail loads one user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (account.User, error) {
	if err := s.ready(ctx); err != nil {
		return account.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, account.NormalizeEmail(email))
	user, err := scanUser(row.Scan)
	if err != nil {
		return account.User{}, mapReadError(err, "get user by email")
	}
	return user, nil
}

// ListUsers lists every user ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]account.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collect(rows, scanUser, "user")
}

// ListBoardUserIDs returns users holding at least the board role in
// associationID.
func (s *Store) ListBoardUserIDs(ctx context.Context, associationID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id FROM memberships
WHERE association_id = ? AND role IN (?, ?)
ORDER BY user_id
`, strings.TrimSpace(associationID), association.RoleBoard, association.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list board users: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (string, error) {
		var userID string
		err := scan(&userID)
		return userID, err
	}, "board user")
}

func scanUser(scan func(dest ...any) error) (account.User, error) {
	var (
		user       account.User
		superAdmin int
		createdAt  int64
		updatedAt  int64
	)
	if err := scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &superAdmin, &user.Locale, &createdAt, &updatedAt); err != nil {
		return account.User{}, err
	}
	user.SuperAdmin = superAdmin == 1
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}
