package banking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

func d(raw string) decimal.Decimal { return decimal.RequireFromString(raw) }

func dues(period string, due, paid string) contribution.Contribution {
	return contribution.Contribution{Period: periods(period)[0], Due: d(due), Paid: d(paid)}
}

func TestAllocate(t *testing.T) {
	t.Parallel()

	targets := []Target{
		{Period: contribution.Period{Year: 2026, Month: 1}, Outstanding: d("100")},
		{Period: contribution.Period{Year: 2026, Month: 2}, Outstanding: d("0")},
		{Period: contribution.Period{Year: 2026, Month: 3}, Outstanding: d("100")},
		{Period: contribution.Period{Year: 2026, Month: 4}, Outstanding: d("100")},
	}

	partial := Allocate(d("150"), targets)
	require.Len(t, partial.Shares, 2)
	assert.True(t, partial.Shares[0].Amount.Equal(d("100")))
	assert.Equal(t, 3, partial.Shares[1].Period.Month)
	assert.True(t, partial.Shares[1].Amount.Equal(d("50")))
	assert.True(t, partial.Allocated.Equal(d("150")))
	assert.True(t, partial.Overpayment.IsZero())

	over := Allocate(d("350.004"), targets)
	assert.Len(t, over.Shares, 3)
	assert.True(t, over.Allocated.Equal(d("300")))
	assert.True(t, over.Overpayment.Equal(d("50")), over.Overpayment.String())
}

func TestPlanAllocation(t *testing.T) {
	t.Parallel()

	booked := day(2026, 3, 10)
	history := []contribution.Contribution{
		dues("2026-01", "100", "100"),
		dues("2026-02", "100", "40"),
		dues("2026-03", "100", "0"),
	}

	t.Run("fifo without hint", func(t *testing.T) {
		plan := PlanAllocation(PlanInput{Amount: d("120"), BookingDate: booked, MonthlyDue: d("100"), Contributions: history})
		assert.Equal(t, StrategyFIFO, plan.Strategy)
		require.Len(t, plan.Allocation.Shares, 2)
		assert.Equal(t, 2, plan.Allocation.Shares[0].Period.Month)
		assert.True(t, plan.Allocation.Shares[0].Amount.Equal(d("60")))
		assert.True(t, plan.Allocation.Shares[1].Amount.Equal(d("60")))
	})

	t.Run("hinted future month is created", func(t *testing.T) {
		hint := ExtractPeriods("bijdrage april 2026", booked)
		plan := PlanAllocation(PlanInput{Amount: d("100"), BookingDate: booked, Hint: hint, MonthlyDue: d("100"), Contributions: history})
		assert.Equal(t, StrategyExplicit, plan.Strategy)
		require.Len(t, plan.Allocation.Shares, 1)
		assert.True(t, plan.Allocation.Shares[0].Missing)
		assert.Equal(t, contribution.Period{Year: 2026, Month: 4}, plan.Allocation.Shares[0].Period)
	})

	t.Run("paid hint falls back to fifo", func(t *testing.T) {
		hint := ExtractPeriods("bijdrage januari 2026", booked)
		plan := PlanAllocation(PlanInput{Amount: d("60"), BookingDate: booked, Hint: hint, MonthlyDue: d("100"), Contributions: history})
		assert.Equal(t, StrategyFIFO, plan.Strategy)
		require.Len(t, plan.Allocation.Shares, 1)
		assert.Equal(t, 2, plan.Allocation.Shares[0].Period.Month)
	})

	t.Run("twelve months is annual", func(t *testing.T) {
		plan := PlanAllocation(PlanInput{Amount: d("1200"), BookingDate: booked, MonthlyDue: d("100"), Contributions: history})
		assert.Equal(t, StrategyAnnual, plan.Strategy)
		assert.Len(t, plan.Targets, 12)
		assert.Len(t, plan.Allocation.Shares, 11)
		assert.True(t, plan.Allocation.Allocated.Equal(d("1060")))
		assert.True(t, plan.Allocation.Overpayment.Equal(d("140")))
	})

	t.Run("annual keyword uses the written year", func(t *testing.T) {
		hint := ExtractPeriods("jaarbijdrage 2027", booked)
		plan := PlanAllocation(PlanInput{Amount: d("500"), BookingDate: booked, Hint: hint, MonthlyDue: d("100")})
		assert.Equal(t, StrategyAnnual, plan.Strategy)
		require.Len(t, plan.Allocation.Shares, 5)
		assert.Equal(t, 2027, plan.Allocation.Shares[0].Period.Year)
		assert.True(t, plan.Allocation.Shares[4].Missing)
	})

	t.Run("forced periods win", func(t *testing.T) {
		plan := PlanAllocation(PlanInput{
			Amount:        d("100"),
			BookingDate:   booked,
			Hint:          ExtractPeriods("februari 2026", booked),
			MonthlyDue:    d("100"),
			Contributions: history,
			ForcePeriods:  periods("2026-03"),
		})
		assert.Equal(t, StrategyExplicit, plan.Strategy)
		require.Len(t, plan.Allocation.Shares, 1)
		assert.Equal(t, 3, plan.Allocation.Shares[0].Period.Month)
		assert.False(t, plan.Allocation.Shares[0].Missing)
	})

	t.Run("nothing owed is overpayment", func(t *testing.T) {
		plan := PlanAllocation(PlanInput{Amount: d("75"), BookingDate: booked, MonthlyDue: d("100")})
		assert.Equal(t, StrategyFIFO, plan.Strategy)
		assert.Empty(t, plan.Allocation.Shares)
		assert.True(t, plan.Allocation.Overpayment.Equal(d("75")))
	})
}

func TestIsAnnualPayment(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAnnualPayment(d("1200.01"), PeriodHint{}, d("100")))
	assert.False(t, IsAnnualPayment(d("1200.02"), PeriodHint{}, d("100")))
	assert.True(t, IsAnnualPayment(d("10"), PeriodHint{Annual: true}, d("100")))
	assert.False(t, IsAnnualPayment(d("0"), PeriodHint{}, d("0")))
}
