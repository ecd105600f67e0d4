package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsBothNotations(t *testing.T) {
	cases := map[string]string{
		"1234.56":      "1234.56",
		"1.234,56":     "1234.56",
		"-45,00":       "-45",
		"€ 12,5":       "12.5",
		"EUR 1,000.25": "1000.25",
		"+150":         "150",
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s parsed as %s", raw, got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
	_, err = Parse("twelve")
	assert.Error(t, err)
}

func TestMoneyArithmetic(t *testing.T) {
	a := New(decimal.RequireFromString("10.005"), "eur")
	assert.Equal(t, "EUR", a.Currency)
	assert.Equal(t, "10.01", a.Amount.StringFixed(2))

	sum := a.Add(New(decimal.NewFromInt(5), "EUR"))
	assert.Equal(t, "EUR 15.01", sum.String())
	assert.True(t, sum.Sub(sum).IsZero())

	assert.Panics(t, func() { a.Add(Zero("USD")) })
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(decimal.RequireFromString("1800.00"), decimal.RequireFromString("1800.01"), Cent))
	assert.False(t, WithinTolerance(decimal.RequireFromString("1800.00"), decimal.RequireFromString("1800.02"), Cent))
}

func TestStoredRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("12.3")
	parsed, err := ParseStored(FormatStored(amount))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(amount))

	zero, err := ParseStored("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
