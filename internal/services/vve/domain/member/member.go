// Package member owns the registry of apartment owners per association.
package member

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// ErrStoreNotConfigured indicates the service is missing persistence wiring.
var ErrStoreNotConfigured = errors.New("member store is not configured")

// Member is one owner of a unit in an association.
type Member struct {
	ID                 string
	AssociationID      string
	UserID             string
	Name               string
	Email              string
	Phone              string
	Unit               string
	Share              decimal.Decimal
	IBANs              []string
	MonthlyFeeOverride *decimal.Decimal
	StartDate          time.Time
	EndDate            *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ActiveOn reports whether the member owned the unit on day.
func (m Member) ActiveOn(day time.Time) bool {
	day = truncateDay(day)
	if day.Before(m.StartDate) {
		return false
	}
	return m.EndDate == nil || !day.After(*m.EndDate)
}

// ActiveDuring reports whether membership overlaps [from, to].
func (m Member) ActiveDuring(from, to time.Time) bool {
	if truncateDay(to).Before(m.StartDate) {
		return false
	}
	return m.EndDate == nil || !truncateDay(from).After(*m.EndDate)
}

// MonthlyDue is the override when set, else the association fee times the
// member share, rounded half-up to cents.
func (m Member) MonthlyDue(assoc association.Association) decimal.Decimal {
	if m.MonthlyFeeOverride != nil {
		return money.Round(*m.MonthlyFeeOverride)
	}
	return money.Round(assoc.MonthlyFee.Mul(m.Share))
}

// HasIBAN reports whether iban is registered for the member.
func (m Member) HasIBAN(iban string) bool {
	return iban != "" && slices.Contains(m.IBANs, iban)
}

// CreateInput describes a new member.
type CreateInput struct {
	UserID             string
	Name               string
	Email              string
	Phone              string
	Unit               string
	Share              decimal.Decimal
	IBANs              []string
	MonthlyFeeOverride *decimal.Decimal
	StartDate          time.Time
}

// UpdateInput carries changed fields. Nil fields stay untouched.
type UpdateInput struct {
	Name               *string
	Email              *string
	Phone              *string
	Unit               *string
	Share              *decimal.Decimal
	IBANs              *[]string
	MonthlyFeeOverride *decimal.Decimal
	ClearFeeOverride   bool
}

// Store is the persistence boundary for members.
type Store interface {
	PutMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, associationID, memberID string) (Member, error)
	ListMembers(ctx context.Context, associationID string, includeArchived bool) ([]Member, error)
}

// Guard is the tenant access check.
type Guard interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
}

// Service implements the member registry.
type Service struct {
	store Store
	guard Guard
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs member use-cases.
func NewService(store Store, guard Guard, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, guard: guard, clock: clock, newID: newID}
}

// Create registers a member. Requires board.
func (s *Service) Create(ctx context.Context, associationID string, input CreateInput) (Member, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Member{}, err
	}
	associationID = strings.TrimSpace(associationID)
	now := s.clock().UTC()
	share := input.Share
	if share.IsZero() {
		share = decimal.NewFromInt(1)
	}
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	member := Member{
		AssociationID:      associationID,
		UserID:             strings.TrimSpace(input.UserID),
		Name:               strings.TrimSpace(input.Name),
		Email:              account.NormalizeEmail(input.Email),
		Phone:              strings.TrimSpace(input.Phone),
		Unit:               strings.TrimSpace(input.Unit),
		Share:              share,
		MonthlyFeeOverride: input.MonthlyFeeOverride,
		StartDate:          truncateDay(startDate),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	ibans, err := normalizeIBANs(input.IBANs)
	if err != nil {
		return Member{}, err
	}
	member.IBANs = ibans
	if err := s.validate(ctx, member); err != nil {
		return Member{}, err
	}
	memberID, err := s.newID()
	if err != nil {
		return Member{}, err
	}
	member.ID = memberID
	if err := s.store.PutMember(ctx, member); err != nil {
		return Member{}, err
	}
	return member, nil
}

// Update changes member details. Requires board.
func (s *Service) Update(ctx context.Context, associationID, memberID string, input UpdateInput) (Member, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Member{}, err
	}
	member, err := s.store.GetMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	if err != nil {
		return Member{}, err
	}
	if input.Name != nil {
		member.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		member.Email = account.NormalizeEmail(*input.Email)
	}
	if input.Phone != nil {
		member.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Unit != nil {
		member.Unit = strings.TrimSpace(*input.Unit)
	}
	if input.Share != nil {
		member.Share = *input.Share
	}
	if input.IBANs != nil {
		ibans, err := normalizeIBANs(*input.IBANs)
		if err != nil {
			return Member{}, err
		}
		member.IBANs = ibans
	}
	switch {
	case input.ClearFeeOverride:
		member.MonthlyFeeOverride = nil
	case input.MonthlyFeeOverride != nil:
		member.MonthlyFeeOverride = input.MonthlyFeeOverride
	}
	if err := s.validate(ctx, member); err != nil {
		return Member{}, err
	}
	member.UpdatedAt = s.clock().UTC()
	if err := s.store.PutMember(ctx, member); err != nil {
		return Member{}, err
	}
	return member, nil
}

// Get returns one member. Board sees everyone; members see their own record.
func (s *Service) Get(ctx context.Context, associationID, memberID string) (Member, error) {
	if s == nil || s.store == nil {
		return Member{}, ErrStoreNotConfigured
	}
	membership, err := s.guard.RequireRole(ctx, associationID, association.RoleMember)
	if err != nil {
		return Member{}, err
	}
	member, err := s.store.GetMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	if err != nil {
		return Member{}, err
	}
	if !membership.Role.AtLeast(association.RoleBoard) && member.UserID != membership.UserID {
		return Member{}, association.ErrPermissionDenied
	}
	return member, nil
}

// List returns members sorted by unit. Requires board.
func (s *Service) List(ctx context.Context, associationID string, includeArchived bool) ([]Member, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, strings.TrimSpace(associationID), includeArchived)
}

// Archive ends the membership on endDate (today when zero). Requires board.
func (s *Service) Archive(ctx context.Context, associationID, memberID string, endDate time.Time) (Member, error) {
	if err := s.require(ctx, associationID, association.RoleBoard); err != nil {
		return Member{}, err
	}
	member, err := s.store.GetMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
	if err != nil {
		return Member{}, err
	}
	if endDate.IsZero() {
		endDate = s.clock()
	}
	end := truncateDay(endDate)
	if end.Before(member.StartDate) {
		return Member{}, apperrors.New(apperrors.CodeInvalid, "end date precedes start date")
	}
	member.EndDate = &end
	member.UpdatedAt = s.clock().UTC()
	if err := s.store.PutMember(ctx, member); err != nil {
		return Member{}, err
	}
	return member, nil
}

// Self returns the member record linked to the calling user.
func (s *Service) Self(ctx context.Context, associationID string) (Member, error) {
	if s == nil || s.store == nil {
		return Member{}, ErrStoreNotConfigured
	}
	membership, err := s.guard.RequireRole(ctx, associationID, association.RoleMember)
	if err != nil {
		return Member{}, err
	}
	return s.FindByUser(ctx, associationID, membership.UserID)
}

// FindByUser returns the active member linked to userID without an access check.
func (s *Service) FindByUser(ctx context.Context, associationID, userID string) (Member, error) {
	if s == nil || s.store == nil {
		return Member{}, ErrStoreNotConfigured
	}
	members, err := s.store.ListMembers(ctx, strings.TrimSpace(associationID), false)
	if err != nil {
		return Member{}, err
	}
	for _, member := range members {
		if userID != "" && member.UserID == userID {
			return member, nil
		}
	}
	return Member{}, apperrors.ErrNotFound
}

// ListByUser returns every active member linked to userID without an access
// check. A user who owns several units has one member per unit.
func (s *Service) ListByUser(ctx context.Context, associationID, userID string) ([]Member, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	members, err := s.store.ListMembers(ctx, strings.TrimSpace(associationID), false)
	if err != nil {
		return nil, err
	}
	var linked []Member
	for _, member := range members {
		if userID != "" && member.UserID == userID {
			linked = append(linked, member)
		}
	}
	return linked, nil
}

// All lists every member, archived ones included, without an access check.
// Callers pick the members that count on a date with ActiveOn.
func (s *Service) All(ctx context.Context, associationID string) ([]Member, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	return s.store.ListMembers(ctx, strings.TrimSpace(associationID), true)
}

// Load returns one member without an access check.
func (s *Service) Load(ctx context.Context, associationID, memberID string) (Member, error) {
	if s == nil || s.store == nil {
		return Member{}, ErrStoreNotConfigured
	}
	return s.store.GetMember(ctx, strings.TrimSpace(associationID), strings.TrimSpace(memberID))
}

// LinkUserByEmail links active members with email to userID. It returns the
// linked members.
func (s *Service) LinkUserByEmail(ctx context.Context, associationID, email, userID string) ([]Member, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	email = account.NormalizeEmail(email)
	members, err := s.store.ListMembers(ctx, strings.TrimSpace(associationID), false)
	if err != nil {
		return nil, err
	}
	var linked []Member
	for _, member := range members {
		if email == "" || member.Email != email || member.UserID == userID {
			continue
		}
		member.UserID = userID
		member.UpdatedAt = s.clock().UTC()
		if err := s.store.PutMember(ctx, member); err != nil {
			return nil, err
		}
		linked = append(linked, member)
	}
	return linked, nil
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

func (s *Service) validate(ctx context.Context, member Member) error {
	if member.Name == "" {
		return apperrors.New(apperrors.CodeMemberNameEmpty, "member name is required")
	}
	if !member.Share.IsPositive() {
		return apperrors.New(apperrors.CodeMemberInvalidShare, "member share must be positive")
	}
	if member.MonthlyFeeOverride != nil && member.MonthlyFeeOverride.IsNegative() {
		return apperrors.New(apperrors.CodeInvalid, "monthly fee override cannot be negative")
	}
	if member.Email != "" {
		if _, err := account.ValidateEmail(member.Email); err != nil {
			return err
		}
	}
	others, err := s.store.ListMembers(ctx, member.AssociationID, true)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == member.ID {
			continue
		}
		if member.Unit != "" && other.EndDate == nil && strings.EqualFold(other.Unit, member.Unit) {
			return apperrors.Newf(apperrors.CodeMemberUnitTaken, "unit %q already has an active member", member.Unit)
		}
		for _, iban := range member.IBANs {
			if other.HasIBAN(iban) {
				return apperrors.Newf(apperrors.CodeIBANTaken, "iban %s belongs to another member", iban)
			}
		}
	}
	return nil
}

func normalizeIBANs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, value := range raw {
		if strings.TrimSpace(value) == "" {
			continue
		}
		iban, err := association.NormalizeIBAN(value)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, iban) {
			out = append(out, iban)
		}
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
