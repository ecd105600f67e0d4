package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
)

const importColumns = `id, association_id, filename, profile, total, imported, duplicates, failed, created_by, created_at`

const transactionColumns = `id, association_id, import_id, external_id, fingerprint, booking_date, amount, currency,
    description, counterparty_name, counterparty_iban, status, member_id, account_code, entry_id, credited, note,
    created_at, updated_at`

// CreateImport records one statement upload.
func (s *Store) CreateImport(ctx context.Context, imp banking.Import) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bank_imports (`+importColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, imp.ID, imp.AssociationID, imp.Filename, imp.Profile, imp.Total, imp.Imported, imp.Duplicates, imp.Failed,
		imp.CreatedBy, toMillis(imp.CreatedAt))
	return mapWriteError(err, "create import")
}

// UpdateImport stores the final counts of an import.
func (s *Store) UpdateImport(ctx context.Context, imp banking.Import) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE bank_imports SET total = ?, imported = ?, duplicates = ?, failed = ?
WHERE association_id = ? AND id = ?
`, imp.Total, imp.Imported, imp.Duplicates, imp.Failed, imp.AssociationID, imp.ID)
	if err != nil {
		return fmt.Errorf("update import: %w", err)
	}
	return requireAffected(result, "update import")
}

// ListImports lists the most recent imports first.
func (s *Store) ListImports(ctx context.Context, associationID string, limit int) ([]banking.Import, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+importColumns+` FROM bank_imports
WHERE association_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, strings.TrimSpace(associationID), limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (banking.Import, error) {
		var (
			imp       banking.Import
			createdAt int64
		)
		if err := scan(&imp.ID, &imp.AssociationID, &imp.Filename, &imp.Profile, &imp.Total, &imp.Imported,
			&imp.Duplicates, &imp.Failed, &imp.CreatedBy, &createdAt); err != nil {
			return banking.Import{}, err
		}
		imp.CreatedAt = fromMillis(createdAt)
		return imp, nil
	}, "import")
}

// InsertTransaction stores one statement line. A second line with the same
// dedupe key fails with ErrConflict.
func (s *Store) InsertTransaction(ctx context.Context, tx banking.Transaction) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bank_transactions (`+transactionColumns+`, dedupe_key)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, tx.ID, tx.AssociationID, tx.ImportID, tx.ExternalID, tx.Fingerprint, toMillis(tx.BookingDate),
		money.FormatStored(tx.Amount), tx.Currency, tx.Description, tx.CounterpartyName, tx.CounterpartyIBAN,
		tx.Status, tx.MemberID, tx.AccountCode, tx.EntryID, money.FormatStored(tx.Credited), tx.Note,
		toMillis(tx.CreatedAt), toMillis(tx.UpdatedAt), tx.DedupeKey())
	return mapWriteError(err, "insert transaction")
}

// GetTransaction loads one transaction.
func (s *Store) GetTransaction(ctx context.Context, associationID, transactionID string) (banking.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return banking.Transaction{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE association_id = ? AND id = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
	tx, err := scanTransaction(row.Scan)
	if err != nil {
		return banking.Transaction{}, mapReadError(err, "get transaction")
	}
	return tx, nil
}

// ListTransactions lists transactions by booking date, oldest first.
func (s *Store) ListTransactions(ctx context.Context, associationID string, filter banking.TransactionFilter) ([]banking.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	where := []string{"association_id = ?"}
	args := []any{strings.TrimSpace(associationID)}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if memberID := strings.TrimSpace(filter.MemberID); memberID != "" {
		where = append(where, "member_id = ?")
		args = append(args, memberID)
	}
	if !filter.From.IsZero() {
		where = append(where, "booking_date >= ?")
		args = append(args, toMillis(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "booking_date <= ?")
		args = append(args, toMillis(filter.To))
	}
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY booking_date, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collect(rows, scanTransaction, "transaction")
}

// ListAllocations lists how one payment was spread over dues.
func (s *Store) ListAllocations(ctx context.Context, associationID, transactionID string) ([]banking.PaymentAllocation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return listAllocations(ctx, s.sqlDB, strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
}

// ListRules lists categorization rules by priority.
func (s *Store) ListRules(ctx context.Context, associationID string) ([]banking.Rule, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, association_id, name, priority, keywords, direction, counterparty_iban, account_code
FROM categorization_rules
WHERE association_id = ?
ORDER BY priority, id
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (banking.Rule, error) {
		var (
			rule      banking.Rule
			keywords  string
			direction string
		)
		if err := scan(&rule.ID, &rule.AssociationID, &rule.Name, &rule.Priority, &keywords, &direction,
			&rule.CounterpartyIBAN, &rule.AccountCode); err != nil {
			return banking.Rule{}, err
		}
		if keywords != "" {
			rule.Keywords = strings.Split(keywords, "\n")
		}
		rule.Direction = banking.Direction(direction)
		return rule, nil
	}, "rule")
}

// PutRule upserts one categorization rule.
func (s *Store) PutRule(ctx context.Context, rule banking.Rule) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO categorization_rules (id, association_id, name, priority, keywords, direction, counterparty_iban, account_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    priority = excluded.priority,
    keywords = excluded.keywords,
    direction = excluded.direction,
    counterparty_iban = excluded.counterparty_iban,
    account_code = excluded.account_code
`, rule.ID, rule.AssociationID, rule.Name, rule.Priority, strings.Join(rule.Keywords, "\n"), rule.Direction,
		rule.CounterpartyIBAN, rule.AccountCode)
	return mapWriteError(err, "put rule")
}

// DeleteRule removes one categorization rule.
func (s *Store) DeleteRule(ctx context.Context, associationID, ruleID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM categorization_rules WHERE association_id = ? AND id = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(ruleID))
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(result, "delete rule")
}

// GetScript returns the association's categorization script, "" when none.
func (s *Store) GetScript(ctx context.Context, associationID string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var script string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT script FROM categorization_scripts WHERE association_id = ?`,
		strings.TrimSpace(associationID)).Scan(&script)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get script: %w", err)
	}
	return script, nil
}

// PutScript stores the association's categorization script. An empty script
// removes it.
func (s *Store) PutScript(ctx context.Context, associationID, script string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	associationID = strings.TrimSpace(associationID)
	if strings.TrimSpace(script) == "" {
		if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM categorization_scripts WHERE association_id = ?`, associationID); err != nil {
			return fmt.Errorf("delete script: %w", err)
		}
		return nil
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO categorization_scripts (association_id, script, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(association_id) DO UPDATE SET
    script = excluded.script,
    updated_at = excluded.updated_at
`, associationID, script, toMillis(time.Now()))
	return mapWriteError(err, "put script")
}

// ApplyPayment books a reconciled payment atomically.
func (s *Store) ApplyPayment(ctx context.Context, application banking.PaymentApplication) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx := application.Transaction
	return s.inTx(ctx, "payment write", func(sqlTx *sql.Tx) error {
		if err := updateTransactionFrom(ctx, sqlTx, tx, banking.StatusUnmatched); err != nil {
			return err
		}
		for _, posting := range application.NewDues {
			if err := applyDues(ctx, sqlTx, posting); err != nil {
				return err
			}
		}
		for _, allocation := range application.Allocations {
			if err := addPaid(ctx, sqlTx, tx.AssociationID, allocation.MemberID, allocation.Period, allocation.Amount, tx.UpdatedAt); err != nil {
				return err
			}
			if _, err := sqlTx.ExecContext(ctx, `
INSERT INTO payment_allocations (transaction_id, association_id, member_id, period_year, period_month, amount)
VALUES (?, ?, ?, ?, ?, ?)
`, allocation.TransactionID, tx.AssociationID, allocation.MemberID, allocation.Period.Year, allocation.Period.Month,
				money.FormatStored(allocation.Amount)); err != nil {
				return mapWriteError(err, "insert allocation")
			}
		}
		if tx.Credited.IsPositive() {
			if err := adjustCredit(ctx, sqlTx, tx.AssociationID, tx.MemberID, tx.Credited, tx.UpdatedAt); err != nil {
				return err
			}
		}
		if application.Entry.ID != "" {
			if err := insertEntry(ctx, sqlTx, application.Entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyCategorization books a categorized transaction atomically.
func (s *Store) ApplyCategorization(ctx context.Context, tx banking.Transaction, entry *ledger.Entry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "categorization write", func(sqlTx *sql.Tx) error {
		if err := updateTransactionFrom(ctx, sqlTx, tx, banking.StatusUnmatched); err != nil {
			return err
		}
		if entry != nil {
			return insertEntry(ctx, sqlTx, *entry)
		}
		return nil
	})
}

// ApplyUndo reverts a reconciled transaction atomically: allocations are
// released, credit is returned and the reversal entry is booked.
func (s *Store) ApplyUndo(ctx context.Context, application banking.UndoApplication) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx := application.Transaction
	return s.inTx(ctx, "undo write", func(sqlTx *sql.Tx) error {
		if err := updateTransactionFrom(ctx, sqlTx, tx, application.PreviousStatus); err != nil {
			return err
		}
		allocations, err := listAllocations(ctx, sqlTx, tx.AssociationID, tx.ID)
		if err != nil {
			return err
		}
		for _, allocation := range allocations {
			if err := addPaid(ctx, sqlTx, tx.AssociationID, allocation.MemberID, allocation.Period, allocation.Amount.Neg(), tx.UpdatedAt); err != nil {
				return err
			}
		}
		if _, err := sqlTx.ExecContext(ctx, `DELETE FROM payment_allocations WHERE transaction_id = ?`, tx.ID); err != nil {
			return fmt.Errorf("delete allocations: %w", err)
		}
		if application.MemberID != "" && !application.CreditReversal.IsZero() {
			credit, err := getCredit(ctx, sqlTx, tx.AssociationID, application.MemberID)
			if err != nil {
				return err
			}
			if credit.Balance.LessThan(application.CreditReversal) {
				return banking.ErrCreditSpent
			}
			if err := adjustCredit(ctx, sqlTx, tx.AssociationID, application.MemberID, application.CreditReversal.Neg(), tx.UpdatedAt); err != nil {
				return err
			}
		}
		if application.Reversal != nil {
			return insertEntry(ctx, sqlTx, *application.Reversal)
		}
		return nil
	})
}

// updateTransactionFrom writes tx only while the stored status is still
// expected.
func updateTransactionFrom(ctx context.Context, q queryer, tx banking.Transaction, expected banking.Status) error {
	result, err := q.ExecContext(ctx, `
UPDATE bank_transactions
SET status = ?, member_id = ?, account_code = ?, entry_id = ?, credited = ?, note = ?, updated_at = ?
WHERE association_id = ? AND id = ? AND status = ?
`, tx.Status, tx.MemberID, tx.AccountCode, tx.EntryID, money.FormatStored(tx.Credited), tx.Note,
		toMillis(tx.UpdatedAt), tx.AssociationID, tx.ID, expected)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func listAllocations(ctx context.Context, q queryer, associationID, transactionID string) ([]banking.PaymentAllocation, error) {
	rows, err := q.QueryContext(ctx, `
SELECT transaction_id, member_id, period_year, period_month, amount
FROM payment_allocations
WHERE association_id = ? AND transaction_id = ?
ORDER BY period_year, period_month
`, associationID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (banking.PaymentAllocation, error) {
		var (
			allocation banking.PaymentAllocation
			amount     string
		)
		if err := scan(&allocation.TransactionID, &allocation.MemberID, &allocation.Period.Year, &allocation.Period.Month, &amount); err != nil {
			return banking.PaymentAllocation{}, err
		}
		parsed, err := parseAmount(amount, "allocation amount")
		if err != nil {
			return banking.PaymentAllocation{}, err
		}
		allocation.Amount = parsed
		return allocation, nil
	}, "allocation")
}

func scanTransaction(scan func(dest ...any) error) (banking.Transaction, error) {
	var (
		tx          banking.Transaction
		bookingDate int64
		amount      string
		status      string
		credited    string
		createdAt   int64
		updatedAt   int64
	)
	if err := scan(&tx.ID, &tx.AssociationID, &tx.ImportID, &tx.ExternalID, &tx.Fingerprint, &bookingDate, &amount,
		&tx.Currency, &tx.Description, &tx.CounterpartyName, &tx.CounterpartyIBAN, &status, &tx.MemberID,
		&tx.AccountCode, &tx.EntryID, &credited, &tx.Note, &createdAt, &updatedAt); err != nil {
		return banking.Transaction{}, err
	}
	var err error
	if tx.Amount, err = parseAmount(amount, "amount"); err != nil {
		return banking.Transaction{}, err
	}
	if tx.Credited, err = parseAmount(credited, "credited"); err != nil {
		return banking.Transaction{}, err
	}
	tx.BookingDate = fromMillis(bookingDate)
	tx.Status = banking.Status(status)
	tx.CreatedAt = fromMillis(createdAt)
	tx.UpdatedAt = fromMillis(updatedAt)
	return tx, nil
}
