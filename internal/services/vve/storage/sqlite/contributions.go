package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

const contributionColumns = `id, association_id, member_id, period_year, period_month, due, paid, created_at, updated_at`

// GetContribution loads the dues of one member for one month.
func (s *Store) GetContribution(ctx context.Context, associationID, memberID string, period contribution.Period) (contribution.Contribution, error) {
	if err := s.ready(ctx); err != nil {
		return contribution.Contribution{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+contributionColumns+` FROM contributions
WHERE association_id = ? AND member_id = ? AND period_year = ? AND period_month = ?
`, strings.TrimSpace(associationID), strings.TrimSpace(memberID), period.Year, period.Month)
	c, err := scanContribution(row.Scan)
	if err != nil {
		return contribution.Contribution{}, mapReadError(err, "get contribution")
	}
	return c, nil
}

// ListContributionsForMember lists one member's dues, oldest first.
func (s *Store) ListContributionsForMember(ctx context.Context, associationID, memberID string) ([]contribution.Contribution, error) {
	return s.listContributions(ctx, `association_id = ? AND member_id = ?`, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
}

// ListContributionsForPeriod lists every member's dues for one month.
func (s *Store) ListContributionsForPeriod(ctx context.Context, associationID string, period contribution.Period) ([]contribution.Contribution, error) {
	return s.listContributions(ctx, `association_id = ? AND period_year = ? AND period_month = ?`,
		strings.TrimSpace(associationID), period.Year, period.Month)
}

// ListContributionsForYear lists every member's dues for one calendar year.
func (s *Store) ListContributionsForYear(ctx context.Context, associationID string, year int) ([]contribution.Contribution, error) {
	return s.listContributions(ctx, `association_id = ? AND period_year = ?`, strings.TrimSpace(associationID), year)
}

// ListOutstandingContributions lists dues that are not fully paid.
func (s *Store) ListOutstandingContributions(ctx context.Context, associationID string) ([]contribution.Contribution, error) {
	all, err := s.listContributions(ctx, `association_id = ?`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, c := range all {
		if c.Outstanding().IsPositive() {
			open = append(open, c)
		}
	}
	return open, nil
}

func (s *Store) listContributions(ctx context.Context, where string, args ...any) ([]contribution.Contribution, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+contributionColumns+` FROM contributions
WHERE `+where+`
ORDER BY period_year, period_month, member_id
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return collect(rows, scanContribution, "contribution")
}

// GetCredit returns the member's credit, zero when none was recorded.
func (s *Store) GetCredit(ctx context.Context, associationID, memberID string) (contribution.MemberCredit, error) {
	if err := s.ready(ctx); err != nil {
		return contribution.MemberCredit{}, err
	}
	return getCredit(ctx, s.sqlDB, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
}

// ListCredits lists every recorded member credit.
func (s *Store) ListCredits(ctx context.Context, associationID string) ([]contribution.MemberCredit, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT association_id, member_id, balance, updated_at FROM member_credits
WHERE association_id = ?
ORDER BY member_id
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list member credits: %w", err)
	}
	return collect(rows, scanCredit, "member credit")
}

// ApplyDues stores a new contribution, spends credit and books its entries
// atomically.
func (s *Store) ApplyDues(ctx context.Context, posting contribution.DuesPosting) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "dues write", func(tx *sql.Tx) error {
		return applyDues(ctx, tx, posting)
	})
}

func applyDues(ctx context.Context, q queryer, posting contribution.DuesPosting) error {
	c := posting.Contribution
	if _, err := q.ExecContext(ctx, `
INSERT INTO contributions (`+contributionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, c.ID, c.AssociationID, c.MemberID, c.Period.Year, c.Period.Month, money.FormatStored(c.Due),
		money.FormatStored(c.Paid), toMillis(c.CreatedAt), toMillis(c.UpdatedAt)); err != nil {
		return mapWriteError(err, "insert contribution")
	}
	if posting.CreditUsed.IsPositive() {
		if err := adjustCredit(ctx, q, c.AssociationID, c.MemberID, posting.CreditUsed.Neg(), c.UpdatedAt); err != nil {
			return err
		}
	}
	for _, entry := range posting.Entries {
		if err := insertEntry(ctx, q, entry); err != nil {
			return err
		}
	}
	return nil
}

// addPaid moves the paid amount of one contribution by delta.
func addPaid(ctx context.Context, q queryer, associationID, memberID string, period contribution.Period, delta decimal.Decimal, at time.Time) error {
	var paid string
	if err := q.QueryRowContext(ctx, `
SELECT paid FROM contributions
WHERE association_id = ? AND member_id = ? AND period_year = ? AND period_month = ?
`, associationID, memberID, period.Year, period.Month).Scan(&paid); err != nil {
		return mapReadError(err, "get contribution paid")
	}
	current, err := parseAmount(paid, "paid")
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
UPDATE contributions SET paid = ?, updated_at = ?
WHERE association_id = ? AND member_id = ? AND period_year = ? AND period_month = ?
`, money.FormatStored(current.Add(delta)), toMillis(at), associationID, memberID, period.Year, period.Month)
	if err != nil {
		return fmt.Errorf("update contribution paid: %w", err)
	}
	return nil
}

// adjustCredit moves a member's credit balance by delta.
func adjustCredit(ctx context.Context, q queryer, associationID, memberID string, delta decimal.Decimal, at time.Time) error {
	current, err := getCredit(ctx, q, associationID, memberID)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO member_credits (association_id, member_id, balance, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(association_id, member_id) DO UPDATE SET
    balance = excluded.balance,
    updated_at = excluded.updated_at
`, associationID, memberID, money.FormatStored(current.Balance.Add(delta)), toMillis(at))
	return mapWriteError(err, "update member credit")
}

func getCredit(ctx context.Context, q queryer, associationID, memberID string) (contribution.MemberCredit, error) {
	row := q.QueryRowContext(ctx, `
SELECT association_id, member_id, balance, updated_at FROM member_credits
WHERE association_id = ? AND member_id = ?
`, associationID, memberID)
	credit, err := scanCredit(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return contribution.MemberCredit{AssociationID: associationID, MemberID: memberID, Balance: decimal.Zero}, nil
	}
	if err != nil {
		return contribution.MemberCredit{}, fmt.Errorf("get member credit: %w", err)
	}
	return credit, nil
}

func scanContribution(scan func(dest ...any) error) (contribution.Contribution, error) {
	var (
		c         contribution.Contribution
		due       string
		paid      string
		createdAt int64
		updatedAt int64
	)
	if err := scan(&c.ID, &c.AssociationID, &c.MemberID, &c.Period.Year, &c.Period.Month, &due, &paid, &createdAt, &updatedAt); err != nil {
		return contribution.Contribution{}, err
	}
	var err error
	if c.Due, err = parseAmount(due, "due"); err != nil {
		return contribution.Contribution{}, err
	}
	if c.Paid, err = parseAmount(paid, "paid"); err != nil {
		return contribution.Contribution{}, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func scanCredit(scan func(dest ...any) error) (contribution.MemberCredit, error) {
	var (
		credit    contribution.MemberCredit
		balance   string
		updatedAt int64
	)
	if err := scan(&credit.AssociationID, &credit.MemberID, &balance, &updatedAt); err != nil {
		return contribution.MemberCredit{}, err
	}
	amount, err := parseAmount(balance, "credit balance")
	if err != nil {
		return contribution.MemberCredit{}, err
	}
	credit.Balance = amount
	credit.UpdatedAt = fromMillis(updatedAt)
	return credit, nil
}
