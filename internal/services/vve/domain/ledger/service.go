package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// ErrStoreNotConfigured indicates the service is missing persistence wiring.
var ErrStoreNotConfigured = errors.New("ledger store is not configured")

// Store is the persistence boundary for accounts and journal entries.
type Store interface {
	PutAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, associationID, code string) error
	ListAccounts(ctx context.Context, associationID string) ([]Account, error)
	AccountInUse(ctx context.Context, associationID, code string) (bool, error)
	// PutEntry stores an entry and its lines atomically. A second reversal
	// of the same entry fails with ErrConflict.
	PutEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, associationID, entryID string) (Entry, error)
	GetReversal(ctx context.Context, associationID, entryID string) (Entry, error)
	ListEntries(ctx context.Context, associationID string, from, to time.Time) ([]Entry, error)
}

// Guard is the tenant access check.
type Guard interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
}

// PostInput describes a manual journal entry.
type PostInput struct {
	Date        time.Time
	Description string
	Lines       []Line
}

// BalanceRow is one account in a trial balance.
type BalanceRow struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	// Balance is signed towards the account's normal side.
	Balance decimal.Decimal
}

// TrialBalance lists account totals over a date range.
type TrialBalance struct {
	From        time.Time
	To          time.Time
	Rows        []BalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// IncomeStatement summarizes income and expense for one year.
type IncomeStatement struct {
	Year         int
	Income       []BalanceRow
	Expenses     []BalanceRow
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Result       decimal.Decimal
}

// Service implements bookkeeping use-cases.
type Service struct {
	store Store
	guard Guard
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs ledger use-cases.
func NewService(store Store, guard Guard, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, guard: guard, clock: clock, newID: newID}
}

// SeedAssociation installs the default chart of accounts.
func (s *Service) SeedAssociation(ctx context.Context, associationID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	accounts, err := DefaultChart(associationID)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if err := s.store.PutAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

// ListAccounts returns the chart of accounts ordered by code. Requires member.
func (s *Service) ListAccounts(ctx context.Context, associationID string) ([]Account, error) {
	if err := s.require(ctx, associationID, association.RoleMember); err != nil {
		return nil, err
	}
	return s.store.ListAccounts(ctx, strings.TrimSpace(associationID))
}

// Accounts returns the chart keyed by code without an access check.
func (s *Service) Accounts(ctx context.Context, associationID string) (map[string]Account, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	accounts, err := s.store.ListAccounts(ctx, strings.TrimSpace(associationID))
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Account, len(accounts))
	for _, account := range accounts {
		byCode[account.Code] = account
	}
	return byCode, nil
}

// SaveAccount creates or renames an account. Requires admin.
func (s *Service) SaveAccount(ctx context.Context, associationID string, account Account) (Account, error) {
	if err := s.require(ctx, associationID, association.RoleAdmin); err != nil {
		return Account{}, err
	}
	account.AssociationID = strings.TrimSpace(associationID)
	account.Code = strings.TrimSpace(account.Code)
	account.Name = strings.TrimSpace(account.Name)
	if account.Code == "" || account.Name == "" {
		return Account{}, apperrors.New(apperrors.CodeInvalid, "account code and name are required")
	}
	if !account.Type.Valid() {
		return Account{}, apperrors.Newf(apperrors.CodeInvalid, "unknown account type %q", account.Type)
	}
	existing, err := s.Accounts(ctx, account.AssociationID)
	if err != nil {
		return Account{}, err
	}
	if current, ok := existing[account.Code]; ok {
		if current.System && current.Type != account.Type {
			return Account{}, apperrors.New(apperrors.CodeLedgerSystemAccount, "system account type cannot change")
		}
		account.System = current.System
	} else {
		account.System = false
	}
	if err := s.store.PutAccount(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// DeleteAccount removes an unused, non-system account. Requires admin.
func (s *Service) DeleteAccount(ctx context.Context, associationID, code string) error {
	if err := s.require(ctx, associationID, association.RoleAdmin); err != nil {
		return err
	}
	associationID = strings.TrimSpace(associationID)
	code = strings.TrimSpace(code)
	accounts, err := s.Accounts(ctx, associationID)
	if err != nil {
		return err
	}
	account, ok := accounts[code]
	if !ok {
		return apperrors.ErrNotFound
	}
	if account.System {
		return apperrors.Newf(apperrors.CodeLedgerSystemAccount, "account %s is a system account", code)
	}
	used, err := s.store.AccountInUse(ctx, associationID, code)
	if err != nil {
		return err
	}
	if used {
		return apperrors.Newf(apperrors.CodeConflict, "account %s has postings", code)
	}
	return s.store.DeleteAccount(ctx, associationID, code)
}

// Post records a manual journal entry. Requires board.
func (s *Service) Post(ctx context.Context, associationID string, input PostInput) (Entry, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Entry{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = s.clock()
	}
	entry, err := s.NewEntry(strings.TrimSpace(associationID), date, SourceManual, "", input.Description, input.Lines...)
	if err != nil {
		return Entry{}, err
	}
	if err := s.Record(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// NewEntry builds an entry with a fresh id. It does not persist it.
func (s *Service) NewEntry(associationID string, date time.Time, source Source, sourceRef, description string, lines ...Line) (Entry, error) {
	if s == nil {
		return Entry{}, ErrStoreNotConfigured
	}
	entryID, err := s.newID()
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            entryID,
		AssociationID: associationID,
		Date:          truncateDay(date),
		Description:   strings.TrimSpace(description),
		Source:        source,
		SourceRef:     sourceRef,
		Lines:         lines,
		CreatedAt:     s.clock().UTC(),
	}, nil
}

// Record validates and stores a prepared entry without an access check.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	accounts, err := s.Accounts(ctx, entry.AssociationID)
	if err != nil {
		return err
	}
	if err := entry.Validate(accounts); err != nil {
		return err
	}
	return s.store.PutEntry(ctx, entry)
}

// Reverse posts the mirror of entryID. Requires board.
func (s *Service) Reverse(ctx context.Context, associationID, entryID string, reason ReversalReason, note string) (Entry, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Entry{}, err
	}
	reversal, err := s.PrepareReversal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(entryID), reason, note)
	if err != nil {
		return Entry{}, err
	}
	if err := s.store.PutEntry(ctx, reversal); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return Entry{}, apperrors.Newf(apperrors.CodeLedgerAlreadyReverse, "entry %s is already reversed", entryID)
		}
		return Entry{}, err
	}
	return reversal, nil
}

// PrepareReversal builds the reversal of entryID without persisting it.
func (s *Service) PrepareReversal(ctx context.Context, associationID, entryID string, reason ReversalReason, note string) (Entry, error) {
	if s == nil || s.store == nil {
		return Entry{}, ErrStoreNotConfigured
	}
	original, err := s.store.GetEntry(ctx, associationID, entryID)
	if err != nil {
		return Entry{}, err
	}
	if original.Source == SourceReversal {
		return Entry{}, apperrors.New(apperrors.CodeInvalid, "a reversal cannot be reversed")
	}
	if _, err := s.store.GetReversal(ctx, associationID, entryID); err == nil {
		return Entry{}, apperrors.Newf(apperrors.CodeLedgerAlreadyReverse, "entry %s is already reversed", entryID)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return Entry{}, err
	}
	reversalID, err := s.newID()
	if err != nil {
		return Entry{}, err
	}
	reversal := BuildReversal(original, reversalID, truncateDay(s.clock()), reason, note)
	reversal.CreatedAt = s.clock().UTC()
	return reversal, nil
}

// ListEntries returns entries dated in [from, to], oldest first. Requires board.
func (s *Service) ListEntries(ctx context.Context, associationID string, from, to time.Time) ([]Entry, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, strings.TrimSpace(associationID), truncateDay(from), truncateDay(to))
}

// TrialBalance totals every account over [from, to]. Requires board.
func (s *Service) TrialBalance(ctx context.Context, associationID string, from, to time.Time) (TrialBalance, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return TrialBalance{}, err
	}
	return s.trialBalance(ctx, strings.TrimSpace(associationID), truncateDay(from), truncateDay(to))
}

func (s *Service) trialBalance(ctx context.Context, associationID string, from, to time.Time) (TrialBalance, error) {
	accounts, err := s.store.ListAccounts(ctx, associationID)
	if err != nil {
		return TrialBalance{}, err
	}
	entries, err := s.store.ListEntries(ctx, associationID, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	return computeTrialBalance(accounts, entries, from, to), nil
}

func computeTrialBalance(accounts []Account, entries []Entry, from, to time.Time) TrialBalance {
	rows := make(map[string]*BalanceRow, len(accounts))
	for _, account := range accounts {
		rows[account.Code] = &BalanceRow{Account: account, Debit: decimal.Zero, Credit: decimal.Zero, Balance: decimal.Zero}
	}
	result := TrialBalance{From: from, To: to, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, entry := range entries {
		for _, line := range entry.Lines {
			row, ok := rows[line.AccountCode]
			if !ok {
				row = &BalanceRow{Account: Account{AssociationID: entry.AssociationID, Code: line.AccountCode, Name: line.AccountCode, Type: TypeAsset}, Debit: decimal.Zero, Credit: decimal.Zero}
				rows[line.AccountCode] = row
			}
			row.Debit = row.Debit.Add(line.Debit)
			row.Credit = row.Credit.Add(line.Credit)
			result.TotalDebit = result.TotalDebit.Add(line.Debit)
			result.TotalCredit = result.TotalCredit.Add(line.Credit)
		}
	}
	for _, row := range rows {
		if row.Account.Type.DebitNormal() {
			row.Balance = row.Debit.Sub(row.Credit)
		} else {
			row.Balance = row.Credit.Sub(row.Debit)
		}
		result.Rows = append(result.Rows, *row)
	}
	sort.Slice(result.Rows, func(i, j int) bool { return result.Rows[i].Account.Code < result.Rows[j].Account.Code })
	return result
}

// IncomeStatement reports income minus expense for a calendar year.
// Any member may read it.
func (s *Service) IncomeStatement(ctx context.Context, associationID string, year int) (IncomeStatement, error) {
	if err := s.require(ctx, associationID, association.RoleMember); err != nil {
		return IncomeStatement{}, err
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	balance, err := s.trialBalance(ctx, strings.TrimSpace(associationID), from, to)
	if err != nil {
		return IncomeStatement{}, err
	}
	statement := IncomeStatement{Year: year, TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
	for _, row := range balance.Rows {
		switch row.Account.Type {
		case TypeIncome:
			statement.Income = append(statement.Income, row)
			statement.TotalIncome = statement.TotalIncome.Add(row.Balance)
		case TypeExpense:
			statement.Expenses = append(statement.Expenses, row)
			statement.TotalExpense = statement.TotalExpense.Add(row.Balance)
		}
	}
	statement.Result = statement.TotalIncome.Sub(statement.TotalExpense)
	return statement, nil
}

func (s *Service) require(ctx context.Context, associationID string, role association.Role) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if s.guard == nil {
		return association.ErrPermissionDenied
	}
	_, err := s.guard.RequireRole(ctx, associationID, role)
	return err
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
