// Package money holds euro-cent arithmetic on top of shopspring/decimal.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency associations are created with.
const DefaultCurrency = "EUR"

// Cent is the smallest representable amount.
var Cent = decimal.New(1, -2)

// Money is an amount with its ISO currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New returns amount rounded to cents.
func New(amount decimal.Decimal, currency string) Money {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: Round(amount), Currency: currency}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Add sums two amounts. It panics on currency mismatch; mixed-currency
// arithmetic is a programming error.
func (m Money) Add(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub subtracts other from m.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// String formats the amount as "EUR 12.50".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Amount.StringFixed(2))
}

func (m Money) mustMatch(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s != %s", m.Currency, other.Currency))
	}
}

// Round rounds amount half away from zero to cents.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// WithinTolerance reports whether |a-b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// Parse reads an amount written either as "1234.56" or in Dutch notation
// "1.234,56". A leading sign and a currency symbol are accepted.
func Parse(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "€")
	value = strings.TrimPrefix(strings.TrimPrefix(value, "EUR"), "eur")
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	value = strings.TrimPrefix(value, "+")
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}

	lastComma := strings.LastIndex(value, ",")
	lastDot := strings.LastIndex(value, ".")
	switch {
	case lastComma > lastDot:
		// Dutch: dots group thousands, comma is the decimal separator.
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		value = strings.ReplaceAll(value, ",", "")
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return amount, nil
}

// ParseStored reads an amount persisted with FormatStored.
func ParseStored(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// FormatStored renders an amount for persistence.
func FormatStored(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
