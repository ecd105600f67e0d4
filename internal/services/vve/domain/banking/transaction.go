// Package banking imports bank statements and reconciles transactions
// against member dues and the ledger.
package banking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

// Status is the reconciliation state of a transaction.
type Status string

const (
	StatusUnmatched   Status = "unmatched"
	StatusMatched     Status = "matched"
	StatusCategorized Status = "categorized"
	StatusIgnored     Status = "ignored"
)

// ParseStatus validates a status filter value.
func ParseStatus(raw string) (Status, bool) {
	switch status := Status(strings.ToLower(strings.TrimSpace(raw))); status {
	case StatusUnmatched, StatusMatched, StatusCategorized, StatusIgnored:
		return status, true
	}
	return "", false
}

// Transaction is one imported bank statement line.
type Transaction struct {
	ID            string
	AssociationID string
	ImportID      string
	ExternalID    string
	Fingerprint   string
	BookingDate   time.Time
	// Amount is positive for incoming money.
	Amount           decimal.Decimal
	Currency         string
	Description      string
	CounterpartyName string
	CounterpartyIBAN string
	Status           Status
	MemberID         string
	AccountCode      string
	// EntryID is the journal entry booked for this transaction.
	EntryID string
	// Credited is the part of a payment added to member credit.
	Credited  decimal.Decimal
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Incoming reports whether money came into the association account.
func (t Transaction) Incoming() bool {
	return t.Amount.IsPositive()
}

// DedupeKey is the external id when the bank provides one, else the
// content fingerprint.
func (t Transaction) DedupeKey() string {
	if id := strings.TrimSpace(t.ExternalID); id != "" {
		return "ext:" + id
	}
	return "fp:" + t.Fingerprint
}

// Fingerprint hashes the fields that identify a statement line.
func Fingerprint(bookingDate time.Time, amount decimal.Decimal, description, counterpartyIBAN string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		bookingDate.UTC().Format(time.DateOnly),
		money.FormatStored(amount),
		strings.Join(strings.Fields(NormalizeText(description)), " "),
		NormalizeIBAN(counterpartyIBAN),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// PaymentAllocation is the part of a payment applied to one contribution.
type PaymentAllocation struct {
	TransactionID string
	MemberID      string
	Period        contribution.Period
	Amount        decimal.Decimal
}

// Import records one statement upload.
type Import struct {
	ID            string
	AssociationID string
	Filename      string
	Profile       string
	Total         int
	Imported      int
	Duplicates    int
	Failed        int
	CreatedBy     string
	CreatedAt     time.Time
}

// RowError explains why a statement line could not be imported.
type RowError struct {
	Line    int
	Message string
}

// ImportResult summarizes an import.
type ImportResult struct {
	ImportID   string
	Total      int
	Imported   int
	Duplicates int
	Failed     []RowError
}

// StatementRow is a parsed statement line before it becomes a transaction.
type StatementRow struct {
	Line             int
	ExternalID       string
	BookingDate      time.Time
	Amount           decimal.Decimal
	Currency         string
	Description      string
	CounterpartyName string
	CounterpartyIBAN string
	AccountIBAN      string
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Status   Status
	MemberID string
	From     time.Time
	To       time.Time
	Limit    int
}
