// Package voting runs owner votes on association proposals.
package voting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method decides how much a vote weighs.
type Method string

const (
	// MethodPerUnit gives every unit one vote.
	MethodPerUnit Method = "per_unit"
	// MethodByShare weighs votes by the member's ownership share.
	MethodByShare Method = "by_share"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m == MethodPerUnit || m == MethodByShare
}

// Majority is the share of yes votes a proposal needs.
type Majority string

const (
	MajoritySimple    Majority = "simple"
	MajorityTwoThirds Majority = "two_thirds"
	MajorityUnanimous Majority = "unanimous"
)

// Valid reports whether m is a known majority rule.
func (m Majority) Valid() bool {
	switch m {
	case MajoritySimple, MajorityTwoThirds, MajorityUnanimous:
		return true
	}
	return false
}

// Status is the proposal lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Outcome is the frozen result of a closed proposal.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoQuorum Outcome = "no_quorum"
)

// Choice is a voter's answer.
type Choice string

const (
	ChoiceYes     Choice = "yes"
	ChoiceNo      Choice = "no"
	ChoiceAbstain Choice = "abstain"
)

// Valid reports whether c is a known choice.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceYes, ChoiceNo, ChoiceAbstain:
		return true
	}
	return false
}

// Proposal is one question put to the owners.
type Proposal struct {
	ID            string
	AssociationID string
	Title         string
	Body          string
	Method        Method
	QuorumPercent int
	Majority      Majority
	OpensAt       time.Time
	ClosesAt      time.Time
	Status        Status
	Outcome       Outcome
	// Result is set once the proposal is closed.
	Result    *Tally
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AcceptsVotes reports whether a vote cast at now counts.
func (p Proposal) AcceptsVotes(now time.Time) bool {
	if p.Status != StatusOpen {
		return false
	}
	return !now.Before(p.OpensAt) && now.Before(p.ClosesAt)
}

// Vote is one member's current answer on a proposal.
type Vote struct {
	ProposalID string
	MemberID   string
	Choice     Choice
	Weight     decimal.Decimal
	CastAt     time.Time
}

// Tally summarizes the votes on a proposal.
type Tally struct {
	EligibleWeight decimal.Decimal
	CastWeight     decimal.Decimal
	Yes            decimal.Decimal
	No             decimal.Decimal
	Abstain        decimal.Decimal
	// Turnout is cast weight over eligible weight, in percent.
	Turnout       decimal.Decimal
	QuorumReached bool
	// YesShare is yes over yes plus no, in percent. Abstentions do not count.
	YesShare decimal.Decimal
	Passed   bool
}

// Outcome maps the tally onto a proposal outcome.
func (t Tally) Outcome() Outcome {
	switch {
	case !t.QuorumReached:
		return OutcomeNoQuorum
	case t.Passed:
		return OutcomeAccepted
	default:
		return OutcomeRejected
	}
}

var hundred = decimal.NewFromInt(100)

// Count tallies votes against the eligible weight using the proposal rules.
func Count(p Proposal, eligible decimal.Decimal, votes []Vote) Tally {
	tally := Tally{
		EligibleWeight: eligible,
		CastWeight:     decimal.Zero,
		Yes:            decimal.Zero,
		No:             decimal.Zero,
		Abstain:        decimal.Zero,
		Turnout:        decimal.Zero,
		YesShare:       decimal.Zero,
	}
	for _, vote := range votes {
		tally.CastWeight = tally.CastWeight.Add(vote.Weight)
		switch vote.Choice {
		case ChoiceYes:
			tally.Yes = tally.Yes.Add(vote.Weight)
		case ChoiceNo:
			tally.No = tally.No.Add(vote.Weight)
		case ChoiceAbstain:
			tally.Abstain = tally.Abstain.Add(vote.Weight)
		}
	}
	if eligible.IsPositive() {
		tally.Turnout = tally.CastWeight.Mul(hundred).Div(eligible).Round(2)
	}
	quorum := decimal.NewFromInt(int64(p.QuorumPercent))
	// cast*100 >= eligible*quorum keeps the comparison exact.
	tally.QuorumReached = tally.CastWeight.Mul(hundred).GreaterThanOrEqual(eligible.Mul(quorum))
	if p.QuorumPercent > 0 && !eligible.IsPositive() {
		tally.QuorumReached = false
	}

	decided := tally.Yes.Add(tally.No)
	if decided.IsPositive() {
		tally.YesShare = tally.Yes.Mul(hundred).Div(decided).Round(2)
	}
	tally.Passed = tally.QuorumReached && passes(p.Majority, tally.Yes, tally.No)
	return tally
}

func passes(majority Majority, yes, no decimal.Decimal) bool {
	if !yes.IsPositive() {
		return false
	}
	decided := yes.Add(no)
	switch majority {
	case MajoritySimple:
		return yes.Mul(decimal.NewFromInt(2)).GreaterThan(decided)
	case MajorityTwoThirds:
		return yes.Mul(decimal.NewFromInt(3)).GreaterThanOrEqual(decided.Mul(decimal.NewFromInt(2)))
	case MajorityUnanimous:
		return no.IsZero()
	}
	return false
}
