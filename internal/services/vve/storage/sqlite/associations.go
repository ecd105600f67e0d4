package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

const associationColumns = `id, name, slug, iban, currency, monthly_fee, fiscal_year_start_month, created_at, updated_at`

// PutAssociation upserts one association.
func (s *Store) PutAssociation(ctx context.Context, assoc association.Association) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(assoc.ID) == "" {
		return fmt.Errorf("association id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO associations (`+associationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    slug = excluded.slug,
    iban = excluded.iban,
    currency = excluded.currency,
    monthly_fee = excluded.monthly_fee,
    fiscal_year_start_month = excluded.fiscal_year_start_month,
    updated_at = excluded.updated_at
`, assoc.ID, assoc.Name, assoc.Slug, assoc.IBAN, assoc.Currency, money.FormatStored(assoc.MonthlyFee),
		assoc.FiscalYearStartMonth, toMillis(assoc.CreatedAt), toMillis(assoc.UpdatedAt))
	return mapWriteError(err, "put association")
}

// GetAssociation loads one association.
func (s *Store) GetAssociation(ctx context.Context, associationID string) (association.Association, error) {
	if err := s.ready(ctx); err != nil {
		return association.Association{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+associationColumns+` FROM associations WHERE id = ?`, strings.TrimSpace(associationID))
	assoc, err := scanAssociation(row.Scan)
	if err != nil {
		return association.Association{}, mapReadError(err, "get association")
	}
	return assoc, nil
}

// GetAssociationBySlug loads one association by slug.
func (s *Store) GetAssociationBySlug(ctx context.Context, slug string) (association.Association, error) {
	if err := s.ready(ctx); err != nil {
		return association.Association{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+associationColumns+` FROM associations WHERE slug = ?`, strings.TrimSpace(slug))
	assoc, err := scanAssociation(row.Scan)
	if err != nil {
		return association.Association{}, mapReadError(err, "get association by slug")
	}
	return assoc, nil
}

// ListAssociations lists every association by name.
func (s *Store) ListAssociations(ctx context.Context) ([]association.Association, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+associationColumns+` FROM associations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	return collect(rows, scanAssociation, "association")
}

// PutMembership upserts one user role.
func (s *Store) PutMembership(ctx context.Context, membership association.Membership) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO memberships (association_id, user_id, role, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(association_id, user_id) DO UPDATE SET role = excluded.role
`, membership.AssociationID, membership.UserID, membership.Role, toMillis(membership.CreatedAt))
	return mapWriteError(err, "put membership")
}

// GetMembership loads one user role.
func (s *Store) GetMembership(ctx context.Context, associationID, userID string) (association.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return association.Membership{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT association_id, user_id, role, created_at FROM memberships
WHERE association_id = ? AND user_id = ?
`, strings.TrimSpace(associationID), strings.TrimSpace(userID))
	membership, err := scanMembership(row.Scan)
	if err != nil {
		return association.Membership{}, mapReadError(err, "get membership")
	}
	return membership, nil
}

// DeleteMembership removes one user role.
func (s *Store) DeleteMembership(ctx context.Context, associationID, userID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM memberships WHERE association_id = ? AND user_id = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(userID))
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return requireAffected(result, "delete membership")
}

// ListMemberships lists the roles held in one association.
func (s *Store) ListMemberships(ctx context.Context, associationID string) ([]association.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT association_id, user_id, role, created_at FROM memberships
WHERE association_id = ?
ORDER BY created_at, user_id
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return collect(rows, scanMembership, "membership")
}

// ListMembershipsForUser lists every role one user holds.
func (s *Store) ListMembershipsForUser(ctx context.Context, userID string) ([]association.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT association_id, user_id, role, created_at FROM memberships
WHERE user_id = ?
ORDER BY created_at, association_id
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list memberships for user: %w", err)
	}
	return collect(rows, scanMembership, "membership")
}

func scanAssociation(scan func(dest ...any) error) (association.Association, error) {
	var (
		assoc      association.Association
		monthlyFee string
		createdAt  int64
		updatedAt  int64
	)
	if err := scan(&assoc.ID, &assoc.Name, &assoc.Slug, &assoc.IBAN, &assoc.Currency, &monthlyFee,
		&assoc.FiscalYearStartMonth, &createdAt, &updatedAt); err != nil {
		return association.Association{}, err
	}
	fee, err := parseAmount(monthlyFee, "monthly fee")
	if err != nil {
		return association.Association{}, err
	}
	assoc.MonthlyFee = fee
	assoc.CreatedAt = fromMillis(createdAt)
	assoc.UpdatedAt = fromMillis(updatedAt)
	return assoc, nil
}

func scanMembership(scan func(dest ...any) error) (association.Membership, error) {
	var (
		membership association.Membership
		role       string
		createdAt  int64
	)
	if err := scan(&membership.AssociationID, &membership.UserID, &role, &createdAt); err != nil {
		return association.Membership{}, err
	}
	membership.Role = association.Role(role)
	membership.CreatedAt = fromMillis(createdAt)
	return membership, nil
}
