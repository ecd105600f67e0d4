package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
)

const inviteColumns = `id, association_id, email, role, locale, token_hash, status, invited_by, expires_at,
    accepted_at, accepted_user_id, created_at, updated_at`

// PutInvite upserts one invite. Only one pending invite may exist per
// association and email.
func (s *Store) PutInvite(ctx context.Context, inv invite.Invite) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invites (`+inviteColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    role = excluded.role,
    locale = excluded.locale,
    token_hash = excluded.token_hash,
    status = excluded.status,
    invited_by = excluded.invited_by,
    expires_at = excluded.expires_at,
    accepted_at = excluded.accepted_at,
    accepted_user_id = excluded.accepted_user_id,
    updated_at = excluded.updated_at
`, inv.ID, inv.AssociationID, inv.Email, inv.Role, inv.Locale, inv.TokenHash, inv.Status, inv.InvitedBy,
		toMillis(inv.ExpiresAt), pointerMillis(inv.AcceptedAt), inv.AcceptedUserID, toMillis(inv.CreatedAt),
		toMillis(inv.UpdatedAt))
	return mapWriteError(err, "put invite")
}

// SwapInvite writes next only while the stored row still carries prev's
// status and token hash.
func (s *Store) SwapInvite(ctx context.Context, prev, next invite.Invite) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE invites
SET role = ?, locale = ?, token_hash = ?, status = ?, invited_by = ?, expires_at = ?,
    accepted_at = ?, accepted_user_id = ?, updated_at = ?
WHERE association_id = ? AND id = ? AND status = ? AND token_hash = ?
`, next.Role, next.Locale, next.TokenHash, next.Status, next.InvitedBy, toMillis(next.ExpiresAt),
		pointerMillis(next.AcceptedAt), next.AcceptedUserID, toMillis(next.UpdatedAt),
		prev.AssociationID, prev.ID, prev.Status, prev.TokenHash)
	if err != nil {
		return mapWriteError(err, "swap invite")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap invite rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// GetInvite loads one invite.
func (s *Store) GetInvite(ctx context.Context, associationID, inviteID string) (invite.Invite, error) {
	return s.getInvite(ctx, `association_id = ? AND id = ?`, strings.TrimSpace(associationID), strings.TrimSpace(inviteID))
}

// GetInviteByTokenHash loads the invite a token was issued for.
func (s *Store) GetInviteByTokenHash(ctx context.Context, tokenHash string) (invite.Invite, error) {
	return s.getInvite(ctx, `token_hash = ?`, strings.TrimSpace(tokenHash))
}

// FindPendingInvite loads the pending invite for email.
func (s *Store) FindPendingInvite(ctx context.Context, associationID, email string) (invite.Invite, error) {
	return s.getInvite(ctx, `association_id = ? AND email = ? AND status = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(email), invite.StatusPending)
}

// ListInvites lists an association's invites newest first.
func (s *Store) ListInvites(ctx context.Context, associationID string) ([]invite.Invite, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+inviteColumns+` FROM invites
WHERE association_id = ?
ORDER BY created_at DESC, id DESC
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return collect(rows, scanInvite, "invite")
}

func (s *Store) getInvite(ctx context.Context, where string, args ...any) (invite.Invite, error) {
	if err := s.ready(ctx); err != nil {
		return invite.Invite{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE `+where, args...)
	inv, err := scanInvite(row.Scan)
	if err != nil {
		return invite.Invite{}, mapReadError(err, "get invite")
	}
	return inv, nil
}

func scanInvite(scan func(dest ...any) error) (invite.Invite, error) {
	var (
		inv        invite.Invite
		role       string
		status     string
		expiresAt  int64
		acceptedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	if err := scan(&inv.ID, &inv.AssociationID, &inv.Email, &role, &inv.Locale, &inv.TokenHash, &status,
		&inv.InvitedBy, &expiresAt, &acceptedAt, &inv.AcceptedUserID, &createdAt, &updatedAt); err != nil {
		return invite.Invite{}, err
	}
	inv.Role = association.Role(role)
	inv.Status = invite.Status(status)
	inv.ExpiresAt = fromMillis(expiresAt)
	inv.AcceptedAt = pointerFromNull(acceptedAt)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}
