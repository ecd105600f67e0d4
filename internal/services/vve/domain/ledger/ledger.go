// Package ledger implements double-entry bookkeeping per association.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
)

// AccountType classifies an account for reporting and balance sign.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeIncome    AccountType = "income"
	TypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of t grow on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == TypeAsset || t == TypeExpense
}

// Account is one entry in an association's chart of accounts.
type Account struct {
	AssociationID string
	Code          string
	Name          string
	Type          AccountType
	System        bool
}

// Source records what produced a journal entry.
type Source string

const (
	SourceManual   Source = "manual"
	SourceDues     Source = "dues"
	SourceBank     Source = "bank"
	SourceCredit   Source = "credit"
	SourceReversal Source = "reversal"
)

// Line is one side of a journal entry. Exactly one of Debit and Credit is set.
type Line struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

// Entry is a balanced journal entry.
type Entry struct {
	ID            string
	AssociationID string
	Date          time.Time
	Description   string
	Source        Source
	SourceRef     string
	ReversalOf    string
	Lines         []Line
	CreatedAt     time.Time
}

// Debit builds a debit line.
func Debit(code string, amount decimal.Decimal) Line {
	return Line{AccountCode: code, Debit: money.Round(amount), Credit: decimal.Zero}
}

// Credit builds a credit line.
func Credit(code string, amount decimal.Decimal) Line {
	return Line{AccountCode: code, Debit: decimal.Zero, Credit: money.Round(amount)}
}

// Totals returns the summed debit and credit of e.
func (e Entry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate checks the double-entry invariants. accounts may be nil to skip
// the account existence check.
func (e Entry) Validate(accounts map[string]Account) error {
	if len(e.Lines) < 2 {
		return apperrors.New(apperrors.CodeLedgerInvalidLine, "journal entry needs at least two lines")
	}
	for i, line := range e.Lines {
		hasDebit := line.Debit.IsPositive()
		hasCredit := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() || hasDebit == hasCredit {
			return apperrors.Newf(apperrors.CodeLedgerInvalidLine, "line %d must have exactly one positive side", i+1)
		}
		if accounts != nil {
			if _, ok := accounts[line.AccountCode]; !ok {
				return apperrors.WithMetadata(apperrors.CodeLedgerUnknownAccount,
					fmt.Sprintf("account %s does not exist", line.AccountCode),
					map[string]string{"Account": line.AccountCode})
			}
		}
	}
	debit, credit := e.Totals()
	if !debit.Equal(credit) {
		return apperrors.Newf(apperrors.CodeLedgerUnbalanced, "debit %s does not equal credit %s", debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// ReversalReason is the fixed vocabulary for reversals.
type ReversalReason string

const (
	ReasonError     ReversalReason = "error"
	ReasonDuplicate ReversalReason = "duplicate"
	ReasonUndo      ReversalReason = "undo"
	ReasonRefund    ReversalReason = "refund"
	ReasonOther     ReversalReason = "other"
)

// ParseReversalReason validates a reversal reason.
func ParseReversalReason(raw string) (ReversalReason, error) {
	reason := ReversalReason(strings.ToLower(strings.TrimSpace(raw)))
	switch reason {
	case ReasonError, ReasonDuplicate, ReasonUndo, ReasonRefund, ReasonOther:
		return reason, nil
	case "":
		return ReasonOther, nil
	}
	return "", apperrors.Newf(apperrors.CodeInvalid, "unknown reversal reason %q", raw)
}

// BuildReversal mirrors original with debit and credit swapped.
func BuildReversal(original Entry, entryID string, date time.Time, reason ReversalReason, note string) Entry {
	lines := make([]Line, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, Line{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		})
	}
	description := fmt.Sprintf("Storno (%s): %s", reason, original.Description)
	if note = strings.TrimSpace(note); note != "" {
		description += " - " + note
	}
	return Entry{
		ID:            entryID,
		AssociationID: original.AssociationID,
		Date:          date,
		Description:   description,
		Source:        SourceReversal,
		SourceRef:     original.ID,
		ReversalOf:    original.ID,
		Lines:         lines,
	}
}
