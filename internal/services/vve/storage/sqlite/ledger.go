package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
)

// PutAccount upserts one chart-of-accounts entry.
func (s *Store) PutAccount(ctx context.Context, account ledger.Account) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ledger_accounts (association_id, code, name, type, system)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(association_id, code) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    system = excluded.system
`, account.AssociationID, account.Code, account.Name, account.Type, boolToInt(account.System))
	return mapWriteError(err, "put ledger account")
}

// DeleteAccount removes one account.
func (s *Store) DeleteAccount(ctx context.Context, associationID, code string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM ledger_accounts WHERE association_id = ? AND code = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("delete ledger account: %w", err)
	}
	return requireAffected(result, "delete ledger account")
}

// ListAccounts lists the chart of accounts ordered by code.
func (s *Store) ListAccounts(ctx context.Context, associationID string) ([]ledger.Account, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT association_id, code, name, type, system FROM ledger_accounts
WHERE association_id = ?
ORDER BY code
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list ledger accounts: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (ledger.Account, error) {
		var (
			account     ledger.Account
			accountType string
			system      int
		)
		if err := scan(&account.AssociationID, &account.Code, &account.Name, &accountType, &system); err != nil {
			return ledger.Account{}, err
		}
		account.Type = ledger.AccountType(accountType)
		account.System = system == 1
		return account, nil
	}, "ledger account")
}

// AccountInUse reports whether any journal line books on code.
func (s *Store) AccountInUse(ctx context.Context, associationID, code string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var used int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM ledger_lines WHERE association_id = ? AND account_code = ?)
`, strings.TrimSpace(associationID), strings.TrimSpace(code)).Scan(&used); err != nil {
		return false, fmt.Errorf("check ledger account use: %w", err)
	}
	return used == 1, nil
}

// PutEntry stores one journal entry with its lines.
func (s *Store) PutEntry(ctx context.Context, entry ledger.Entry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "ledger entry write", func(tx *sql.Tx) error {
		return insertEntry(ctx, tx, entry)
	})
}

// GetEntry loads one journal entry with its lines.
func (s *Store) GetEntry(ctx context.Context, associationID, entryID string) (ledger.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return ledger.Entry{}, err
	}
	return s.loadEntry(ctx, `association_id = ? AND id = ?`, strings.TrimSpace(associationID), strings.TrimSpace(entryID))
}

// GetReversal loads the entry reversing entryID.
func (s *Store) GetReversal(ctx context.Context, associationID, entryID string) (ledger.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return ledger.Entry{}, err
	}
	return s.loadEntry(ctx, `association_id = ? AND reversal_of = ?`, strings.TrimSpace(associationID), strings.TrimSpace(entryID))
}

// ListEntries lists entries dated in [from, to], oldest first. A zero bound
// is open.
func (s *Store) ListEntries(ctx context.Context, associationID string, from, to time.Time) ([]ledger.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	where := `association_id = ?`
	args := []any{strings.TrimSpace(associationID)}
	if !from.IsZero() {
		where += ` AND entry_date >= ?`
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		where += ` AND entry_date <= ?`
		args = append(args, toMillis(to))
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, association_id, entry_date, description, source, source_ref, reversal_of, created_at
FROM ledger_entries
WHERE `+where+`
ORDER BY entry_date, created_at, id
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	entries, err := collect(rows, scanEntry, "ledger entry")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	lineRows, err := s.sqlDB.QueryContext(ctx, `
SELECT entry_id, account_code, debit, credit, memo
FROM ledger_lines
WHERE entry_id IN (SELECT id FROM ledger_entries WHERE `+where+`)
ORDER BY entry_id, line_no
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger lines: %w", err)
	}
	lines, err := collect(lineRows, scanEntryLine, "ledger line")
	if err != nil {
		return nil, err
	}
	byEntry := make(map[string][]ledger.Line, len(entries))
	for _, line := range lines {
		byEntry[line.entryID] = append(byEntry[line.entryID], line.Line)
	}
	for i := range entries {
		entries[i].Lines = byEntry[entries[i].ID]
	}
	return entries, nil
}

func (s *Store) loadEntry(ctx context.Context, where string, args ...any) (ledger.Entry, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, association_id, entry_date, description, source, source_ref, reversal_of, created_at
FROM ledger_entries
WHERE `+where, args...)
	entry, err := scanEntry(row.Scan)
	if err != nil {
		return ledger.Entry{}, mapReadError(err, "get ledger entry")
	}
	lines, err := entryLines(ctx, s.sqlDB, entry.ID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func entryLines(ctx context.Context, q queryer, entryID string) ([]ledger.Line, error) {
	rows, err := q.QueryContext(ctx, `
SELECT entry_id, account_code, debit, credit, memo
FROM ledger_lines
WHERE entry_id = ?
ORDER BY line_no
`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list ledger lines: %w", err)
	}
	scanned, err := collect(rows, scanEntryLine, "ledger line")
	if err != nil {
		return nil, err
	}
	lines := make([]ledger.Line, 0, len(scanned))
	for _, line := range scanned {
		lines = append(lines, line.Line)
	}
	return lines, nil
}

func insertEntry(ctx context.Context, q queryer, entry ledger.Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("ledger entry id is required")
	}
	var reversalOf any
	if entry.ReversalOf != "" {
		reversalOf = entry.ReversalOf
	}
	if _, err := q.ExecContext(ctx, `
INSERT INTO ledger_entries (id, association_id, entry_date, description, source, source_ref, reversal_of, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, entry.ID, entry.AssociationID, toMillis(entry.Date), entry.Description, entry.Source, entry.SourceRef,
		reversalOf, toMillis(entry.CreatedAt)); err != nil {
		return mapWriteError(err, "insert ledger entry")
	}
	for i, line := range entry.Lines {
		if _, err := q.ExecContext(ctx, `
INSERT INTO ledger_lines (entry_id, line_no, association_id, account_code, debit, credit, memo)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, entry.ID, i+1, entry.AssociationID, line.AccountCode, money.FormatStored(line.Debit),
			money.FormatStored(line.Credit), line.Memo); err != nil {
			return mapWriteError(err, "insert ledger line")
		}
	}
	return nil
}

func scanEntry(scan func(dest ...any) error) (ledger.Entry, error) {
	var (
		entry      ledger.Entry
		entryDate  int64
		source     string
		reversalOf sql.NullString
		createdAt  int64
	)
	if err := scan(&entry.ID, &entry.AssociationID, &entryDate, &entry.Description, &source, &entry.SourceRef,
		&reversalOf, &createdAt); err != nil {
		return ledger.Entry{}, err
	}
	entry.Date = fromMillis(entryDate)
	entry.Source = ledger.Source(source)
	entry.ReversalOf = reversalOf.String
	entry.CreatedAt = fromMillis(createdAt)
	return entry, nil
}

type entryLine struct {
	ledger.Line
	entryID string
}

func scanEntryLine(scan func(dest ...any) error) (entryLine, error) {
	var (
		line   entryLine
		debit  string
		credit string
	)
	if err := scan(&line.entryID, &line.AccountCode, &debit, &credit, &line.Memo); err != nil {
		return entryLine{}, err
	}
	var err error
	if line.Debit, err = parseAmount(debit, "debit"); err != nil {
		return entryLine{}, err
	}
	if line.Credit, err = parseAmount(credit, "credit"); err != nil {
		return entryLine{}, err
	}
	return line, nil
}
