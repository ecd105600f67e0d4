// Package contribution tracks monthly dues per member and their payment.
package contribution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is derived from the paid amount.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Contribution is the dues of one member for one month.
type Contribution struct {
	ID            string
	AssociationID string
	MemberID      string
	Period        Period
	Due           decimal.Decimal
	Paid          decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Status derives open, partial or paid.
func (c Contribution) Status() Status {
	switch {
	case !c.Paid.IsPositive():
		return StatusOpen
	case c.Paid.LessThan(c.Due):
		return StatusPartial
	default:
		return StatusPaid
	}
}

// Outstanding is Due minus Paid, never negative.
func (c Contribution) Outstanding() decimal.Decimal {
	remaining := c.Due.Sub(c.Paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// MemberCredit holds a member's overpayments.
type MemberCredit struct {
	AssociationID string
	MemberID      string
	Balance       decimal.Decimal
	UpdatedAt     time.Time
}

// MemberSummary aggregates one member's dues over a year.
type MemberSummary struct {
	MemberID    string
	MemberName  string
	Unit        string
	Due         decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	Credit      decimal.Decimal
}

// Overdue describes a member behind on payments.
type Overdue struct {
	MemberID    string
	UserID      string
	MemberName  string
	Outstanding decimal.Decimal
	Periods     []Period
}
