package voting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("voting store is not configured")
	// ErrNotOpen indicates the proposal does not accept votes right now.
	ErrNotOpen = apperrors.New(apperrors.CodeProposalNotOpen, "proposal is not open for voting")
	// ErrVoterNotMember indicates the caller has no member record.
	ErrVoterNotMember = apperrors.New(apperrors.CodeVoterNotMember, "caller is not a member of the association")
)

// Event topics raised by voting.
const (
	EventProposalOpened = "proposal.opened"
	EventProposalClosed = "proposal.closed"
)

// Event announces a proposal change to one user.
type Event struct {
	Topic         string
	AssociationID string
	UserID        string
	DedupeKey     string
	Payload       map[string]string
}

// Notifier receives voting events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Store is the persistence boundary for proposals and votes.
type Store interface {
	PutProposal(ctx context.Context, proposal Proposal) error
	GetProposal(ctx context.Context, associationID, proposalID string) (Proposal, error)
	ListProposals(ctx context.Context, associationID string) ([]Proposal, error)
	// PutVote replaces the member's earlier vote on the proposal.
	PutVote(ctx context.Context, vote Vote) error
	ListVotes(ctx context.Context, proposalID string) ([]Vote, error)
}

// Members is the member registry as seen by voting.
type Members interface {
	All(ctx context.Context, associationID string) ([]member.Member, error)
	ListByUser(ctx context.Context, associationID, userID string) ([]member.Member, error)
}

// Guard is the tenant access check.
type Guard interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
}

// CreateInput describes a new draft proposal.
type CreateInput struct {
	Title         string
	Body          string
	Method        Method
	QuorumPercent int
	Majority      Majority
	OpensAt       time.Time
	ClosesAt      time.Time
}

// Service implements proposals and voting.
type Service struct {
	store    Store
	members  Members
	guard    Guard
	notifier Notifier
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs voting use-cases. notifier may be nil.
func NewService(store Store, members Members, guard Guard, notifier Notifier, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, members: members, guard: guard, notifier: notifier, clock: clock, newID: newID}
}

// Create stores a draft proposal. Requires board.
func (s *Service) Create(ctx context.Context, associationID string, input CreateInput) (Proposal, error) {
	membership, err := s.require(ctx, associationID, association.RoleBoard)
	if err != nil {
		return Proposal{}, err
	}
	proposalID, err := s.newID()
	if err != nil {
		return Proposal{}, err
	}
	now := s.clock().UTC()
	proposal := Proposal{
		ID:            proposalID,
		AssociationID: strings.TrimSpace(associationID),
		Title:         strings.TrimSpace(input.Title),
		Body:          strings.TrimSpace(input.Body),
		Method:        input.Method,
		QuorumPercent: input.QuorumPercent,
		Majority:      input.Majority,
		OpensAt:       input.OpensAt.UTC(),
		ClosesAt:      input.ClosesAt.UTC(),
		Status:        StatusDraft,
		CreatedBy:     membership.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if proposal.Method == "" {
		proposal.Method = MethodPerUnit
	}
	if proposal.Majority == "" {
		proposal.Majority = MajoritySimple
	}
	if err := validate(proposal); err != nil {
		return Proposal{}, err
	}
	if err := s.store.PutProposal(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// Open starts voting. A zero OpensAt becomes now. Requires board.
func (s *Service) Open(ctx context.Context, associationID, proposalID string) (Proposal, error) {
	if _, err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Proposal{}, err
	}
	proposal, err := s.store.GetProposal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
	if err != nil {
		return Proposal{}, err
	}
	if proposal.Status != StatusDraft {
		return Proposal{}, apperrors.Newf(apperrors.CodeProposalStatus, "proposal is %s, not draft", proposal.Status)
	}
	now := s.clock().UTC()
	if proposal.OpensAt.IsZero() {
		proposal.OpensAt = now
	}
	if proposal.ClosesAt.IsZero() || !proposal.ClosesAt.After(now) {
		return Proposal{}, apperrors.New(apperrors.CodeProposalInvalid, "closing time must be in the future")
	}
	if err := validate(proposal); err != nil {
		return Proposal{}, err
	}
	proposal.Status = StatusOpen
	proposal.UpdatedAt = now
	if err := s.store.PutProposal(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	s.announce(ctx, proposal, EventProposalOpened, map[string]string{
		"title":     proposal.Title,
		"closes_at": proposal.ClosesAt.Format(time.RFC3339),
	})
	return proposal, nil
}

// Close freezes the tally into the outcome and notifies linked members.
// Requires board.
func (s *Service) Close(ctx context.Context, associationID, proposalID string) (Proposal, error) {
	if _, err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Proposal{}, err
	}
	proposal, err := s.store.GetProposal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
	if err != nil {
		return Proposal{}, err
	}
	return s.close(ctx, proposal)
}

// CloseDueSystem closes open proposals whose closing time has passed,
// without an access check. It returns the closed proposals.
func (s *Service) CloseDueSystem(ctx context.Context, associationID string) ([]Proposal, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	proposals, err := s.store.ListProposals(ctx, strings.TrimSpace(associationID))
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	var closed []Proposal
	for _, proposal := range proposals {
		if proposal.Status != StatusOpen || now.Before(proposal.ClosesAt) {
			continue
		}
		result, err := s.close(ctx, proposal)
		if err != nil {
			return closed, err
		}
		closed = append(closed, result)
	}
	return closed, nil
}

func (s *Service) close(ctx context.Context, proposal Proposal) (Proposal, error) {
	if proposal.Status != StatusOpen {
		return Proposal{}, apperrors.Newf(apperrors.CodeProposalStatus, "proposal is %s, not open", proposal.Status)
	}
	tally, err := s.count(ctx, proposal)
	if err != nil {
		return Proposal{}, err
	}
	proposal.Status = StatusClosed
	proposal.Outcome = tally.Outcome()
	proposal.Result = &tally
	proposal.UpdatedAt = s.clock().UTC()
	if err := s.store.PutProposal(ctx, proposal); err != nil {
		return Proposal{}, err
	}
	s.announce(ctx, proposal, EventProposalClosed, map[string]string{
		"title":   proposal.Title,
		"outcome": string(proposal.Outcome),
		"turnout": tally.Turnout.StringFixed(2),
	})
	return proposal, nil
}

// Cast records the caller's vote for every unit they own, each weighted on
// its own. Re-casting replaces the earlier votes.
func (s *Service) Cast(ctx context.Context, associationID, proposalID string, choice Choice) ([]Vote, error) {
	membership, err := s.require(ctx, associationID, association.RoleMember)
	if err != nil {
		return nil, err
	}
	if !choice.Valid() {
		return nil, apperrors.Newf(apperrors.CodeVoteChoiceInvalid, "unknown choice %q", choice)
	}
	associationID = strings.TrimSpace(associationID)
	proposal, err := s.store.GetProposal(ctx, associationID, strings.TrimSpace(proposalID))
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	if !proposal.AcceptsVotes(now) {
		return nil, ErrNotOpen
	}
	voters, err := s.members.ListByUser(ctx, associationID, membership.UserID)
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		return nil, ErrVoterNotMember
	}
	votes := make([]Vote, 0, len(voters))
	for _, voter := range voters {
		vote := Vote{
			ProposalID: proposal.ID,
			MemberID:   voter.ID,
			Choice:     choice,
			Weight:     weight(proposal.Method, voter),
			CastAt:     now,
		}
		if err := s.store.PutVote(ctx, vote); err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, nil
}

// Get returns one proposal. Any member may read it.
func (s *Service) Get(ctx context.Context, associationID, proposalID string) (Proposal, error) {
	if _, err := s.require(ctx, associationID, association.RoleMember); err != nil {
		return Proposal{}, err
	}
	return s.store.GetProposal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
}

// List returns proposals newest first. Plain members do not see drafts.
func (s *Service) List(ctx context.Context, associationID string) ([]Proposal, error) {
	membership, err := s.require(ctx, associationID, association.RoleMember)
	if err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposals(ctx, strings.TrimSpace(associationID))
	if err != nil {
		return nil, err
	}
	board := membership.Role.AtLeast(association.RoleBoard)
	visible := make([]Proposal, 0, len(proposals))
	for _, proposal := range proposals {
		if proposal.Status == StatusDraft && !board {
			continue
		}
		visible = append(visible, proposal)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})
	return visible, nil
}

// Tally returns the frozen result of a closed proposal or the live count
// of an open one.
func (s *Service) Tally(ctx context.Context, associationID, proposalID string) (Tally, error) {
	if _, err := s.require(ctx, associationID, association.RoleMember); err != nil {
		return Tally{}, err
	}
	proposal, err := s.store.GetProposal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
	if err != nil {
		return Tally{}, err
	}
	if proposal.Result != nil {
		return *proposal.Result, nil
	}
	return s.count(ctx, proposal)
}

// Votes lists the individual votes. Requires board.
func (s *Service) Votes(ctx context.Context, associationID, proposalID string) ([]Vote, error) {
	if _, err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	proposal, err := s.store.GetProposal(ctx, strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
	if err != nil {
		return nil, err
	}
	return s.store.ListVotes(ctx, proposal.ID)
}

func (s *Service) count(ctx context.Context, proposal Proposal) (Tally, error) {
	members, err := s.members.All(ctx, proposal.AssociationID)
	if err != nil {
		return Tally{}, err
	}
	votes, err := s.store.ListVotes(ctx, proposal.ID)
	if err != nil {
		return Tally{}, err
	}
	day := s.clock().UTC()
	eligible := decimal.Zero
	for _, m := range members {
		if m.ActiveOn(day) {
			eligible = eligible.Add(weight(proposal.Method, m))
		}
	}
	return Count(proposal, eligible, votes), nil
}

func (s *Service) announce(ctx context.Context, proposal Proposal, topic string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	members, err := s.members.All(ctx, proposal.AssociationID)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("proposal_id", proposal.ID).Msg("list members for proposal notification")
		return
	}
	day := s.clock().UTC()
	for _, m := range members {
		if m.UserID == "" || !m.ActiveOn(day) {
			continue
		}
		event := Event{
			Topic:         topic,
			AssociationID: proposal.AssociationID,
			UserID:        m.UserID,
			DedupeKey:     topic + ":" + proposal.ID,
			Payload:       payload,
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("topic", topic).Str("user_id", m.UserID).Msg("notify proposal change")
		}
	}
}

func (s *Service) require(ctx context.Context, associationID string, role association.Role) (association.Membership, error) {
	if s == nil || s.store == nil || s.members == nil {
		return association.Membership{}, ErrStoreNotConfigured
	}
	if s.guard == nil {
		return association.Membership{}, association.ErrPermissionDenied
	}
	return s.guard.RequireRole(ctx, associationID, role)
}

func weight(method Method, m member.Member) decimal.Decimal {
	if method == MethodByShare {
		return m.Share
	}
	return decimal.NewFromInt(1)
}

func validate(p Proposal) error {
	switch {
	case p.Title == "":
		return apperrors.New(apperrors.CodeProposalInvalid, "title is required")
	case !p.Method.Valid():
		return apperrors.Newf(apperrors.CodeProposalInvalid, "unknown voting method %q", p.Method)
	case !p.Majority.Valid():
		return apperrors.Newf(apperrors.CodeProposalInvalid, "unknown majority %q", p.Majority)
	case p.QuorumPercent < 0 || p.QuorumPercent > 100:
		return apperrors.New(apperrors.CodeProposalInvalid, "quorum must be between 0 and 100 percent")
	case !p.OpensAt.IsZero() && !p.ClosesAt.IsZero() && !p.ClosesAt.After(p.OpensAt):
		return apperrors.New(apperrors.CodeProposalInvalid, "closing time must be after opening time")
	}
	return nil
}
