package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

const memberColumns = `id, association_id, user_id, name, email, phone, unit, share, ibans,
    monthly_fee_override, start_date, end_date, created_at, updated_at`

// PutMember upserts one member.
func (s *Store) PutMember(ctx context.Context, m member.Member) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("member id is required")
	}
	var override any
	if m.MonthlyFeeOverride != nil {
		override = m.MonthlyFeeOverride.String()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO members (`+memberColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    name = excluded.name,
    email = excluded.email,
    phone = excluded.phone,
    unit = excluded.unit,
    share = excluded.share,
    ibans = excluded.ibans,
    monthly_fee_override = excluded.monthly_fee_override,
    start_date = excluded.start_date,
    end_date = excluded.end_date,
    updated_at = excluded.updated_at
`, m.ID, m.AssociationID, m.UserID, m.Name, m.Email, m.Phone, m.Unit, m.Share.String(),
		strings.Join(m.IBANs, ","), override, toMillis(m.StartDate), pointerMillis(m.EndDate),
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	return mapWriteError(err, "put member")
}

// GetMember loads one member.
func (s *Store) GetMember(ctx context.Context, associationID, memberID string) (member.Member, error) {
	if err := s.ready(ctx); err != nil {
		return member.Member{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE association_id = ? AND id = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	m, err := scanMember(row.Scan)
	if err != nil {
		return member.Member{}, mapReadError(err, "get member")
	}
	return m, nil
}

// ListMembers lists members ordered by unit. Archived members are included
// only when asked for.
func (s *Store) ListMembers(ctx context.Context, associationID string, includeArchived bool) ([]member.Member, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + memberColumns + ` FROM members WHERE association_id = ?`
	if !includeArchived {
		query += ` AND end_date IS NULL`
	}
	query += ` ORDER BY unit, id`
	rows, err := s.sqlDB.QueryContext(ctx, query, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return collect(rows, scanMember, "member")
}

func scanMember(scan func(dest ...any) error) (member.Member, error) {
	var (
		m         member.Member
		share     string
		ibans     string
		override  sql.NullString
		startDate int64
		endDate   sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := scan(&m.ID, &m.AssociationID, &m.UserID, &m.Name, &m.Email, &m.Phone, &m.Unit, &share, &ibans,
		&override, &startDate, &endDate, &createdAt, &updatedAt); err != nil {
		return member.Member{}, err
	}
	parsedShare, err := parseAmount(share, "member share")
	if err != nil {
		return member.Member{}, err
	}
	m.Share = parsedShare
	if ibans != "" {
		m.IBANs = strings.Split(ibans, ",")
	}
	if override.Valid {
		fee, err := parseAmount(override.String, "monthly fee override")
		if err != nil {
			return member.Member{}, err
		}
		m.MonthlyFeeOverride = &fee
	}
	m.StartDate = fromMillis(startDate)
	m.EndDate = pointerFromNull(endDate)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}
