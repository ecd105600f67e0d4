package contribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

// ErrStoreNotConfigured indicates the service is missing persistence wiring.
var ErrStoreNotConfigured = errors.New("contribution store is not configured")

// DuesPosting is one new contribution with the journal entries it causes.
type DuesPosting struct {
	Contribution Contribution
	CreditUsed   decimal.Decimal
	Entries      []ledger.Entry
}

// Store is the persistence boundary for contributions and credits.
type Store interface {
	GetContribution(ctx context.Context, associationID, memberID string, period Period) (Contribution, error)
	ListContributionsForMember(ctx context.Context, associationID, memberID string) ([]Contribution, error)
	ListContributionsForPeriod(ctx context.Context, associationID string, period Period) ([]Contribution, error)
	ListContributionsForYear(ctx context.Context, associationID string, year int) ([]Contribution, error)
	ListOutstandingContributions(ctx context.Context, associationID string) ([]Contribution, error)
	// GetCredit returns a zero balance for members without credit.
	GetCredit(ctx context.Context, associationID, memberID string) (MemberCredit, error)
	ListCredits(ctx context.Context, associationID string) ([]MemberCredit, error)
	// ApplyDues stores the contribution, lowers the credit balance by
	// CreditUsed and records the entries in one transaction. An existing
	// contribution for the same member and period fails with ErrConflict.
	ApplyDues(ctx context.Context, posting DuesPosting) error
}

// Members is the member registry as seen by dues tracking.
type Members interface {
	All(ctx context.Context, associationID string) ([]member.Member, error)
	Load(ctx context.Context, associationID, memberID string) (member.Member, error)
}

// Associations loads tenants without an access check.
type Associations interface {
	Load(ctx context.Context, associationID string) (association.Association, error)
}

// Guard is the tenant access check.
type Guard interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
}

// GenerateResult reports what GenerateDues did.
type GenerateResult struct {
	Period        Period
	Created       int
	Skipped       int
	CreditApplied decimal.Decimal
}

// Service implements dues tracking.
type Service struct {
	store        Store
	members      Members
	associations Associations
	guard        Guard
	clock        func() time.Time
	newID        func() (string, error)
}

// NewService constructs contribution use-cases.
func NewService(store Store, members Members, associations Associations, guard Guard, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, members: members, associations: associations, guard: guard, clock: clock, newID: newID}
}

// GenerateDues creates the period's contributions. Requires board.
func (s *Service) GenerateDues(ctx context.Context, associationID string, period Period) (GenerateResult, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return GenerateResult{}, err
	}
	return s.GenerateDuesSystem(ctx, associationID, period)
}

// GenerateDuesSystem creates a contribution for every member active in
// period that has none yet, and settles it from member credit where
// possible. Running it twice creates nothing the second time.
func (s *Service) GenerateDuesSystem(ctx context.Context, associationID string, period Period) (GenerateResult, error) {
	if s == nil || s.store == nil || s.members == nil || s.associations == nil {
		return GenerateResult{}, ErrStoreNotConfigured
	}
	if !period.Valid() {
		return GenerateResult{}, apperrors.Newf(apperrors.CodeInvalidPeriod, "invalid period %s", period)
	}
	associationID = strings.TrimSpace(associationID)
	assoc, err := s.associations.Load(ctx, associationID)
	if err != nil {
		return GenerateResult{}, err
	}
	members, err := s.members.All(ctx, associationID)
	if err != nil {
		return GenerateResult{}, err
	}
	existing, err := s.store.ListContributionsForPeriod(ctx, associationID, period)
	if err != nil {
		return GenerateResult{}, err
	}
	has := make(map[string]struct{}, len(existing))
	for _, contribution := range existing {
		has[contribution.MemberID] = struct{}{}
	}

	result := GenerateResult{Period: period, CreditApplied: decimal.Zero}
	for _, m := range members {
		if !m.ActiveDuring(period.Start(), period.End()) {
			continue
		}
		if _, ok := has[m.ID]; ok {
			result.Skipped++
			continue
		}
		posting, err := s.PrepareDues(assoc, m, period)
		if err != nil {
			return result, err
		}
		if posting.Contribution.Due.IsZero() {
			result.Skipped++
			continue
		}
		credit, err := s.store.GetCredit(ctx, associationID, m.ID)
		if err != nil {
			return result, err
		}
		if use := money.Min(credit.Balance, posting.Contribution.Due); use.IsPositive() {
			entry, err := s.newEntry(associationID, period.Start(), ledger.SourceCredit, posting.Contribution.ID,
				fmt.Sprintf("Tegoed verrekend %s %s", period, m.Name),
				ledger.Debit(ledger.AccountPrepaid, use), ledger.Credit(ledger.AccountReceivable, use))
			if err != nil {
				return result, err
			}
			posting.CreditUsed = use
			posting.Contribution.Paid = use
			posting.Entries = append(posting.Entries, entry)
		}
		if err := s.store.ApplyDues(ctx, posting); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Created++
		result.CreditApplied = result.CreditApplied.Add(posting.CreditUsed)
	}
	return result, nil
}

// PrepareDues builds an unpaid contribution for m in period with its
// receivable entry. Nothing is persisted.
func (s *Service) PrepareDues(assoc association.Association, m member.Member, period Period) (DuesPosting, error) {
	if s == nil {
		return DuesPosting{}, ErrStoreNotConfigured
	}
	contributionID, err := s.newID()
	if err != nil {
		return DuesPosting{}, err
	}
	now := s.clock().UTC()
	due := m.MonthlyDue(assoc)
	posting := DuesPosting{
		Contribution: Contribution{
			ID:            contributionID,
			AssociationID: assoc.ID,
			MemberID:      m.ID,
			Period:        period,
			Due:           due,
			Paid:          decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		CreditUsed: decimal.Zero,
	}
	if due.IsZero() {
		return posting, nil
	}
	entry, err := s.newEntry(assoc.ID, period.Start(), ledger.SourceDues, contributionID,
		fmt.Sprintf("Bijdrage %s %s", period, m.Name),
		ledger.Debit(ledger.AccountReceivable, due), ledger.Credit(ledger.AccountContributions, due))
	if err != nil {
		return DuesPosting{}, err
	}
	posting.Entries = []ledger.Entry{entry}
	return posting, nil
}

func (s *Service) newEntry(associationID string, date time.Time, source ledger.Source, ref, description string, lines ...ledger.Line) (ledger.Entry, error) {
	entryID, err := s.newID()
	if err != nil {
		return ledger.Entry{}, err
	}
	entry := ledger.Entry{
		ID:            entryID,
		AssociationID: associationID,
		Date:          date,
		Description:   description,
		Source:        source,
		SourceRef:     ref,
		Lines:         lines,
		CreatedAt:     s.clock().UTC(),
	}
	if err := entry.Validate(nil); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

// ListForMember returns a member's contributions, oldest first. Board sees
// every member; a member sees only their own record.
func (s *Service) ListForMember(ctx context.Context, associationID, memberID string) ([]Contribution, error) {
	if s == nil || s.store == nil || s.guard == nil {
		return nil, ErrStoreNotConfigured
	}
	membership, err := s.guard.RequireRole(ctx, associationID, association.RoleMember)
	if err != nil {
		return nil, err
	}
	associationID = strings.TrimSpace(associationID)
	memberID = strings.TrimSpace(memberID)
	if !membership.Role.AtLeast(association.RoleBoard) {
		m, err := s.members.Load(ctx, associationID, memberID)
		if err != nil {
			return nil, err
		}
		if m.UserID == "" || m.UserID != membership.UserID {
			return nil, association.ErrPermissionDenied
		}
	}
	return s.store.ListContributionsForMember(ctx, associationID, memberID)
}

// ListForPeriod returns the period's contributions. Requires board.
func (s *Service) ListForPeriod(ctx context.Context, associationID string, period Period) ([]Contribution, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return s.store.ListContributionsForPeriod(ctx, strings.TrimSpace(associationID), period)
}

// Outstanding returns a member's unpaid contributions, oldest first,
// without an access check.
func (s *Service) Outstanding(ctx context.Context, associationID, memberID string) ([]Contribution, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	all, err := s.store.ListContributionsForMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	if err != nil {
		return nil, err
	}
	var open []Contribution
	for _, contribution := range all {
		if contribution.Outstanding().IsPositive() {
			open = append(open, contribution)
		}
	}
	sortByPeriod(open)
	return open, nil
}

// AllForMember returns every contribution of a member, oldest first,
// without an access check.
func (s *Service) AllForMember(ctx context.Context, associationID, memberID string) ([]Contribution, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	all, err := s.store.ListContributionsForMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	if err != nil {
		return nil, err
	}
	sortByPeriod(all)
	return all, nil
}

// Contribution returns one contribution without an access check.
func (s *Service) Contribution(ctx context.Context, associationID, memberID string, period Period) (Contribution, error) {
	if s == nil || s.store == nil {
		return Contribution{}, ErrStoreNotConfigured
	}
	return s.store.GetContribution(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID), period)
}

// Credit returns a member's credit balance without an access check.
func (s *Service) Credit(ctx context.Context, associationID, memberID string) (MemberCredit, error) {
	if s == nil || s.store == nil {
		return MemberCredit{}, ErrStoreNotConfigured
	}
	return s.store.GetCredit(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
}

// Summary totals each member's dues for year. Requires board.
func (s *Service) Summary(ctx context.Context, associationID string, year int) ([]MemberSummary, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return s.SummarySystem(ctx, associationID, year)
}

// SummarySystem is Summary without an access check, for the CLI.
func (s *Service) SummarySystem(ctx context.Context, associationID string, year int) ([]MemberSummary, error) {
	if s == nil || s.store == nil || s.members == nil {
		return nil, ErrStoreNotConfigured
	}
	associationID = strings.TrimSpace(associationID)
	members, err := s.members.All(ctx, associationID)
	if err != nil {
		return nil, err
	}
	contributions, err := s.store.ListContributionsForYear(ctx, associationID, year)
	if err != nil {
		return nil, err
	}
	credits, err := s.store.ListCredits(ctx, associationID)
	if err != nil {
		return nil, err
	}

	byMember := make(map[string]*MemberSummary, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		byMember[m.ID] = &MemberSummary{MemberID: m.ID, MemberName: m.Name, Unit: m.Unit, Due: decimal.Zero, Paid: decimal.Zero, Outstanding: decimal.Zero, Credit: decimal.Zero}
		order = append(order, m.ID)
	}
	for _, contribution := range contributions {
		summary, ok := byMember[contribution.MemberID]
		if !ok {
			continue
		}
		summary.Due = summary.Due.Add(contribution.Due)
		summary.Paid = summary.Paid.Add(contribution.Paid)
		summary.Outstanding = summary.Outstanding.Add(contribution.Outstanding())
	}
	for _, credit := range credits {
		if summary, ok := byMember[credit.MemberID]; ok {
			summary.Credit = credit.Balance
		}
	}
	out := make([]MemberSummary, 0, len(order))
	for _, memberID := range order {
		summary := byMember[memberID]
		if summary.Due.IsZero() && summary.Credit.IsZero() {
			continue
		}
		out = append(out, *summary)
	}
	return out, nil
}

// OverdueMembers lists members whose contributions ended more than
// graceDays before asOf and are still not fully paid.
func (s *Service) OverdueMembers(ctx context.Context, associationID string, asOf time.Time, graceDays int) ([]Overdue, error) {
	if s == nil || s.store == nil || s.members == nil {
		return nil, ErrStoreNotConfigured
	}
	associationID = strings.TrimSpace(associationID)
	open, err := s.store.ListOutstandingContributions(ctx, associationID)
	if err != nil {
		return nil, err
	}
	sortByPeriod(open)
	cutoff := asOf.UTC().AddDate(0, 0, -graceDays)
	byMember := map[string]*Overdue{}
	var order []string
	for _, contribution := range open {
		if !contribution.Period.End().Before(truncateDay(cutoff)) || !contribution.Outstanding().IsPositive() {
			continue
		}
		overdue, ok := byMember[contribution.MemberID]
		if !ok {
			m, err := s.members.Load(ctx, associationID, contribution.MemberID)
			if err != nil {
				return nil, err
			}
			overdue = &Overdue{MemberID: m.ID, UserID: m.UserID, MemberName: m.Name, Outstanding: decimal.Zero}
			byMember[m.ID] = overdue
			order = append(order, m.ID)
		}
		overdue.Outstanding = overdue.Outstanding.Add(contribution.Outstanding())
		overdue.Periods = append(overdue.Periods, contribution.Period)
	}
	out := make([]Overdue, 0, len(order))
	for _, memberID := range order {
		out = append(out, *byMember[memberID])
	}
	return out, nil
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

func sortByPeriod(contributions []Contribution) {
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].Period.Before(contributions[j].Period)
	})
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
