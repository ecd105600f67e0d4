// Package association owns tenants (VvE's) and the roles users hold in them.
package association

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
)

// Role is the access level of a user inside one association.
type Role string

const (
	RoleMember Role = "member"
	RoleBoard  Role = "board"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleMember: 1,
	RoleBoard:  2,
	RoleAdmin:  3,
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleRank[role]; !ok {
		return "", apperrors.Newf(apperrors.CodeInvalidRole, "unknown role %q", raw)
	}
	return role, nil
}

// AtLeast reports whether r grants at least minimum.
func (r Role) AtLeast(minimum Role) bool {
	return roleRank[r] >= roleRank[minimum] && roleRank[r] > 0
}

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("association store is not configured")
	// ErrUnauthenticated indicates no caller is attached to the context.
	ErrUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	// ErrPermissionDenied indicates the caller lacks the required role.
	ErrPermissionDenied = apperrors.New(apperrors.CodePermissionDenied, "permission denied")
	// ErrLastAdmin indicates the only admin cannot lose the admin role.
	ErrLastAdmin = apperrors.New(apperrors.CodeLastAdmin, "association needs at least one admin")
)

// Association is one tenant.
type Association struct {
	ID                   string
	Name                 string
	Slug                 string
	IBAN                 string
	Currency             string
	MonthlyFee           decimal.Decimal
	FiscalYearStartMonth int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Membership is the role of one user in one association.
type Membership struct {
	AssociationID string
	UserID        string
	Role          Role
	CreatedAt     time.Time
}

// Summary is an association together with the caller's role in it.
type Summary struct {
	Association Association
	Role        Role
}

// CreateInput describes a new association.
type CreateInput struct {
	Name                 string
	Slug                 string
	IBAN                 string
	MonthlyFee           decimal.Decimal
	FiscalYearStartMonth int
	AdminUserID          string
}

// UpdateInput carries mutable association settings.
type UpdateInput struct {
	Name       *string
	IBAN       *string
	MonthlyFee *decimal.Decimal
}

// Store is the persistence boundary for associations and memberships.
type Store interface {
	PutAssociation(ctx context.Context, association Association) error
	GetAssociation(ctx context.Context, associationID string) (Association, error)
	GetAssociationBySlug(ctx context.Context, slug string) (Association, error)
	ListAssociations(ctx context.Context) ([]Association, error)
	PutMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, associationID, userID string) (Membership, error)
	DeleteMembership(ctx context.Context, associationID, userID string) error
	ListMemberships(ctx context.Context, associationID string) ([]Membership, error)
	ListMembershipsForUser(ctx context.Context, userID string) ([]Membership, error)
}

// Seeder initializes per-association data, such as the chart of accounts.
type Seeder interface {
	SeedAssociation(ctx context.Context, associationID string) error
}

// Service implements tenant lifecycle and the tenant guard.
type Service struct {
	store  Store
	seeder Seeder
	clock  func() time.Time
	newID  func() (string, error)
}

// NewService constructs association use-cases. seeder may be nil.
func NewService(store Store, seeder Seeder, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, seeder: seeder, clock: clock, newID: newID}
}

// RequireRole returns the caller's membership when it grants at least
// minimum in associationID. Super admins pass with an admin membership.
func (s *Service) RequireRole(ctx context.Context, associationID string, minimum Role) (Membership, error) {
	if s == nil || s.store == nil {
		return Membership{}, ErrStoreNotConfigured
	}
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return Membership{}, ErrUnauthenticated
	}
	associationID = strings.TrimSpace(associationID)
	if principal.SuperAdmin {
		if _, err := s.store.GetAssociation(ctx, associationID); err != nil {
			return Membership{}, err
		}
		return Membership{AssociationID: associationID, UserID: principal.UserID, Role: RoleAdmin}, nil
	}
	membership, err := s.store.GetMembership(ctx, associationID, principal.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Membership{}, ErrPermissionDenied
		}
		return Membership{}, err
	}
	if !membership.Role.AtLeast(minimum) {
		return Membership{}, ErrPermissionDenied
	}
	return membership, nil
}

// RequireSuperAdmin fails unless the caller is a super admin.
func RequireSuperAdmin(ctx context.Context) (requestctx.Principal, error) {
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return requestctx.Principal{}, ErrUnauthenticated
	}
	if !principal.SuperAdmin {
		return requestctx.Principal{}, ErrPermissionDenied
	}
	return principal, nil
}

// Create registers a new association. Only super admins may call it.
func (s *Service) Create(ctx context.Context, input CreateInput) (Association, error) {
	if s == nil || s.store == nil {
		return Association{}, ErrStoreNotConfigured
	}
	if _, err := RequireSuperAdmin(ctx); err != nil {
		return Association{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Association{}, apperrors.New(apperrors.CodeAssociationNameEmpty, "association name is required")
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if _, err := s.store.GetAssociationBySlug(ctx, slug); err == nil {
		return Association{}, apperrors.Newf(apperrors.CodeAssociationSlugTaken, "slug %q is taken", slug)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return Association{}, err
	}
	iban := ""
	if strings.TrimSpace(input.IBAN) != "" {
		normalized, err := NormalizeIBAN(input.IBAN)
		if err != nil {
			return Association{}, err
		}
		iban = normalized
	}
	if input.MonthlyFee.IsNegative() {
		return Association{}, apperrors.New(apperrors.CodeInvalid, "monthly fee cannot be negative")
	}
	startMonth := input.FiscalYearStartMonth
	if startMonth == 0 {
		startMonth = 1
	}
	if startMonth < 1 || startMonth > 12 {
		return Association{}, apperrors.New(apperrors.CodeInvalid, "fiscal year start month must be 1-12")
	}

	associationID, err := s.newID()
	if err != nil {
		return Association{}, err
	}
	now := s.clock().UTC()
	association := Association{
		ID:                   associationID,
		Name:                 name,
		Slug:                 slug,
		IBAN:                 iban,
		Currency:             money.DefaultCurrency,
		MonthlyFee:           money.Round(input.MonthlyFee),
		FiscalYearStartMonth: startMonth,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.PutAssociation(ctx, association); err != nil {
		return Association{}, err
	}
	if s.seeder != nil {
		if err := s.seeder.SeedAssociation(ctx, associationID); err != nil {
			return Association{}, err
		}
	}
	if adminID := strings.TrimSpace(input.AdminUserID); adminID != "" {
		if err := s.store.PutMembership(ctx, Membership{AssociationID: associationID, UserID: adminID, Role: RoleAdmin, CreatedAt: now}); err != nil {
			return Association{}, err
		}
	}
	return association, nil
}

// Get returns an association visible to the caller.
func (s *Service) Get(ctx context.Context, associationID string) (Association, error) {
	if _, err := s.RequireRole(ctx, associationID, RoleMember); err != nil {
		return Association{}, err
	}
	return s.store.GetAssociation(ctx, strings.TrimSpace(associationID))
}

// Load returns an association without an access check, for background jobs.
func (s *Service) Load(ctx context.Context, associationID string) (Association, error) {
	if s == nil || s.store == nil {
		return Association{}, ErrStoreNotConfigured
	}
	return s.store.GetAssociation(ctx, strings.TrimSpace(associationID))
}

// All lists every association, for background jobs.
func (s *Service) All(ctx context.Context) ([]Association, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	return s.store.ListAssociations(ctx)
}

// Update changes mutable settings. Requires admin.
func (s *Service) Update(ctx context.Context, associationID string, input UpdateInput) (Association, error) {
	if _, err := s.RequireRole(ctx, associationID, RoleAdmin); err != nil {
		return Association{}, err
	}
	association, err := s.store.GetAssociation(ctx, strings.TrimSpace(associationID))
	if err != nil {
		return Association{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Association{}, apperrors.New(apperrors.CodeAssociationNameEmpty, "association name is required")
		}
		association.Name = name
	}
	if input.IBAN != nil {
		association.IBAN = ""
		if strings.TrimSpace(*input.IBAN) != "" {
			normalized, err := NormalizeIBAN(*input.IBAN)
			if err != nil {
				return Association{}, err
			}
			association.IBAN = normalized
		}
	}
	if input.MonthlyFee != nil {
		if input.MonthlyFee.IsNegative() {
			return Association{}, apperrors.New(apperrors.CodeInvalid, "monthly fee cannot be negative")
		}
		association.MonthlyFee = money.Round(*input.MonthlyFee)
	}
	association.UpdatedAt = s.clock().UTC()
	if err := s.store.PutAssociation(ctx, association); err != nil {
		return Association{}, err
	}
	return association, nil
}

// ListAssociationsForUser lists the caller's associations with their roles.
// Super admins see every association as admin.
func (s *Service) ListAssociationsForUser(ctx context.Context) ([]Summary, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if principal.SuperAdmin {
		all, err := s.store.ListAssociations(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]Summary, 0, len(all))
		for _, association := range all {
			summaries = append(summaries, Summary{Association: association, Role: RoleAdmin})
		}
		return summaries, nil
	}
	memberships, err := s.store.ListMembershipsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(memberships))
	for _, membership := range memberships {
		association, err := s.store.GetAssociation(ctx, membership.AssociationID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{Association: association, Role: membership.Role})
	}
	return summaries, nil
}

// ListMemberships lists users with access to the association. Requires board.
func (s *Service) ListMemberships(ctx context.Context, associationID string) ([]Membership, error) {
	if _, err := s.RequireRole(ctx, associationID, RoleBoard); err != nil {
		return nil, err
	}
	return s.store.ListMemberships(ctx, strings.TrimSpace(associationID))
}

// Grant sets userID's role. Requires admin. Demoting the last admin fails.
func (s *Service) Grant(ctx context.Context, associationID, userID string, role Role) (Membership, error) {
	if _, err := s.RequireRole(ctx, associationID, RoleAdmin); err != nil {
		return Membership{}, err
	}
	return s.grant(ctx, strings.TrimSpace(associationID), strings.TrimSpace(userID), role)
}

// LoadMembership returns userID's membership without a caller check.
func (s *Service) LoadMembership(ctx context.Context, associationID, userID string) (Membership, error) {
	if s == nil || s.store == nil {
		return Membership{}, ErrStoreNotConfigured
	}
	return s.store.GetMembership(ctx, strings.TrimSpace(associationID), strings.TrimSpace(userID))
}

// GrantSystem sets a role without a caller check. Used by invite acceptance.
func (s *Service) GrantSystem(ctx context.Context, associationID, userID string, role Role) (Membership, error) {
	if s == nil || s.store == nil {
		return Membership{}, ErrStoreNotConfigured
	}
	return s.grant(ctx, strings.TrimSpace(associationID), strings.TrimSpace(userID), role)
}

func (s *Service) grant(ctx context.Context, associationID, userID string, role Role) (Membership, error) {
	if _, ok := roleRank[role]; !ok {
		return Membership{}, apperrors.Newf(apperrors.CodeInvalidRole, "unknown role %q", role)
	}
	if userID == "" {
		return Membership{}, apperrors.New(apperrors.CodeInvalid, "user id is required")
	}
	existing, err := s.store.GetMembership(ctx, associationID, userID)
	switch {
	case err == nil:
		if existing.Role == role {
			return existing, nil
		}
		if existing.Role == RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx, associationID, userID); err != nil {
				return Membership{}, err
			}
		}
		existing.Role = role
		if err := s.store.PutMembership(ctx, existing); err != nil {
			return Membership{}, err
		}
		return existing, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return Membership{}, err
	}
	membership := Membership{AssociationID: associationID, UserID: userID, Role: role, CreatedAt: s.clock().UTC()}
	if err := s.store.PutMembership(ctx, membership); err != nil {
		return Membership{}, err
	}
	return membership, nil
}

// Revoke removes userID's access. Requires admin. The last admin stays.
func (s *Service) Revoke(ctx context.Context, associationID, userID string) error {
	if _, err := s.RequireRole(ctx, associationID, RoleAdmin); err != nil {
		return err
	}
	associationID = strings.TrimSpace(associationID)
	userID = strings.TrimSpace(userID)
	existing, err := s.store.GetMembership(ctx, associationID, userID)
	if err != nil {
		return err
	}
	if existing.Role == RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx, associationID, userID); err != nil {
			return err
		}
	}
	return s.store.DeleteMembership(ctx, associationID, userID)
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, associationID, userID string) error {
	memberships, err := s.store.ListMemberships(ctx, associationID)
	if err != nil {
		return err
	}
	for _, membership := range memberships {
		if membership.UserID != userID && membership.Role == RoleAdmin {
			return nil
		}
	}
	return ErrLastAdmin
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a lowercase ASCII slug.
func Slugify(raw string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		stripped = raw
	}
	slug := slugInvalid.ReplaceAllString(strings.ToLower(stripped), "-")
	return strings.Trim(slug, "-")
}
