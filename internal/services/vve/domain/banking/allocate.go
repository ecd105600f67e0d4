package banking

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

// Strategy names how a payment was spread over periods.
type Strategy string

const (
	StrategyAnnual   Strategy = "annual"
	StrategyExplicit Strategy = "explicit"
	StrategyFIFO     Strategy = "fifo"
)

// annualTolerance is how far a payment may be off twelve monthly dues and
// still count as an annual payment.
var annualTolerance = decimal.New(1, -2)

// Target is a period that can receive money.
type Target struct {
	Period      contribution.Period
	Outstanding decimal.Decimal
	// Missing marks a period without a contribution yet.
	Missing bool
}

// Share is the amount given to one target.
type Share struct {
	Period  contribution.Period
	Amount  decimal.Decimal
	Missing bool
}

// Allocation is the result of spreading an amount over targets.
type Allocation struct {
	Shares      []Share
	Allocated   decimal.Decimal
	Overpayment decimal.Decimal
}

// Allocate gives each target min(remaining, outstanding) in order. The
// remainder is the overpayment.
func Allocate(amount decimal.Decimal, targets []Target) Allocation {
	remaining := money.Round(amount)
	result := Allocation{Allocated: decimal.Zero, Overpayment: decimal.Zero}
	for _, target := range targets {
		if !remaining.IsPositive() {
			break
		}
		if !target.Outstanding.IsPositive() {
			continue
		}
		share := money.Min(remaining, target.Outstanding)
		result.Shares = append(result.Shares, Share{Period: target.Period, Amount: share, Missing: target.Missing})
		result.Allocated = result.Allocated.Add(share)
		remaining = remaining.Sub(share)
	}
	if remaining.IsPositive() {
		result.Overpayment = remaining
	}
	return result
}

// PlanInput is everything PlanAllocation needs to know about a payment.
type PlanInput struct {
	Amount      decimal.Decimal
	BookingDate time.Time
	Hint        PeriodHint
	MonthlyDue  decimal.Decimal
	// Contributions are all of the member's contributions.
	Contributions []contribution.Contribution
	// ForcePeriods overrides the hint, for manual assignment.
	ForcePeriods []contribution.Period
}

// Plan is the chosen strategy with its allocation.
type Plan struct {
	Strategy   Strategy
	Targets    []Target
	Allocation Allocation
}

// PlanAllocation picks the annual, explicit-period or FIFO strategy and
// allocates the amount. Explicit periods whose dues are already settled
// fall back to FIFO.
func PlanAllocation(input PlanInput) Plan {
	existing := make(map[contribution.Period]contribution.Contribution, len(input.Contributions))
	for _, c := range input.Contributions {
		existing[c.Period] = c
	}

	periodTargets := func(periods []contribution.Period) []Target {
		targets := make([]Target, 0, len(periods))
		for _, period := range periods {
			if c, ok := existing[period]; ok {
				targets = append(targets, Target{Period: period, Outstanding: c.Outstanding()})
				continue
			}
			targets = append(targets, Target{Period: period, Outstanding: input.MonthlyDue, Missing: true})
		}
		return targets
	}

	if len(input.ForcePeriods) > 0 {
		targets := periodTargets(input.ForcePeriods)
		return Plan{Strategy: StrategyExplicit, Targets: targets, Allocation: Allocate(input.Amount, targets)}
	}

	if IsAnnualPayment(input.Amount, input.Hint, input.MonthlyDue) {
		year := input.Hint.Year
		if year == 0 {
			year = input.BookingDate.Year()
		}
		targets := periodTargets(contribution.YearPeriods(year))
		return Plan{Strategy: StrategyAnnual, Targets: targets, Allocation: Allocate(input.Amount, targets)}
	}

	if len(input.Hint.Periods) > 0 {
		targets := periodTargets(input.Hint.Periods)
		allocation := Allocate(input.Amount, targets)
		if allocation.Allocated.IsPositive() {
			return Plan{Strategy: StrategyExplicit, Targets: targets, Allocation: allocation}
		}
	}

	var targets []Target
	for _, c := range input.Contributions {
		if c.Outstanding().IsPositive() {
			targets = append(targets, Target{Period: c.Period, Outstanding: c.Outstanding()})
		}
	}
	sortTargets(targets)
	return Plan{Strategy: StrategyFIFO, Targets: targets, Allocation: Allocate(input.Amount, targets)}
}

// IsAnnualPayment reports an annual keyword, or an amount equal to twelve
// monthly dues within one cent.
func IsAnnualPayment(amount decimal.Decimal, hint PeriodHint, monthlyDue decimal.Decimal) bool {
	if hint.Annual {
		return true
	}
	if !monthlyDue.IsPositive() {
		return false
	}
	return money.WithinTolerance(amount, monthlyDue.Mul(decimal.NewFromInt(12)), annualTolerance)
}

func sortTargets(targets []Target) {
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Period.Before(targets[j].Period) })
}
