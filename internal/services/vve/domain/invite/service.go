package invite

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("invite store is not configured")
	// ErrInvalid indicates the token does not match any invite.
	ErrInvalid = apperrors.New(apperrors.CodeInviteInvalid, "invite is invalid")
	// ErrExpired indicates the invite is past its expiry.
	ErrExpired = apperrors.New(apperrors.CodeInviteExpired, "invite has expired")
	// ErrUsed indicates the invite was already accepted.
	ErrUsed = apperrors.New(apperrors.CodeInviteUsed, "invite was already accepted")
	// ErrRevoked indicates the invite was revoked.
	ErrRevoked = apperrors.New(apperrors.CodeInviteRevoked, "invite was revoked")
)

// EventAccepted is raised to the inviter when an invite is accepted.
const EventAccepted = "invite.accepted"

// Event announces an invite change to one user.
type Event struct {
	Topic         string
	AssociationID string
	UserID        string
	DedupeKey     string
	Payload       map[string]string
}

// Notifier receives invite events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Invitation is what the mailer needs to send one invite.
type Invitation struct {
	Invite          Invite
	Token           string
	AssociationName string
	InviterName     string
}

// Mailer queues the invite email.
type Mailer interface {
	SendInvite(ctx context.Context, invitation Invitation) error
}

// Store is the persistence boundary for invites.
type Store interface {
	PutInvite(ctx context.Context, invite Invite) error
	// SwapInvite replaces prev with next only while the stored invite still
	// has prev's status and token hash, and returns ErrConflict otherwise.
	SwapInvite(ctx context.Context, prev, next Invite) error
	GetInvite(ctx context.Context, associationID, inviteID string) (Invite, error)
	GetInviteByTokenHash(ctx context.Context, tokenHash string) (Invite, error)
	// FindPendingInvite returns the pending invite for email, if any.
	FindPendingInvite(ctx context.Context, associationID, email string) (Invite, error)
	ListInvites(ctx context.Context, associationID string) ([]Invite, error)
}

// Users is the account registry as seen by invites.
type Users interface {
	GetUser(ctx context.Context, userID string) (account.User, error)
	FindByEmail(ctx context.Context, email string) (account.User, error)
	Register(ctx context.Context, input account.RegisterInput) (account.User, error)
	Authenticate(ctx context.Context, email, password string) (account.User, error)
}

// Access manages association memberships.
type Access interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
	Load(ctx context.Context, associationID string) (association.Association, error)
	LoadMembership(ctx context.Context, associationID, userID string) (association.Membership, error)
	GrantSystem(ctx context.Context, associationID, userID string, role association.Role) (association.Membership, error)
}

// Members links member records to accepted users.
type Members interface {
	LinkUserByEmail(ctx context.Context, associationID, email, userID string) ([]member.Member, error)
}

// CreateInput describes an invite.
type CreateInput struct {
	Email  string
	Role   association.Role
	Locale string
}

// Created is a stored invite together with its plaintext token. The token is
// only available at creation.
type Created struct {
	Invite Invite
	Token  string
}

// AcceptInput redeems an invite. DisplayName and Password create the user
// when the email has no account yet; otherwise Password must match it.
type AcceptInput struct {
	Token       string
	DisplayName string
	Password    string
}

// Accepted reports the outcome of a redeemed invite.
type Accepted struct {
	Invite     Invite
	User       account.User
	Membership association.Membership
	Linked     []member.Member
	NewUser    bool
}

// Preview is the public view of an invite behind a token.
type Preview struct {
	Invite          Invite
	AssociationName string
	HasAccount      bool
}

// Service implements the invite workflow.
type Service struct {
	store    Store
	users    Users
	access   Access
	members  Members
	mailer   Mailer
	notifier Notifier
	ttl      time.Duration
	clock    func() time.Time
	newID    func() (string, error)
	newToken func() (string, string, error)
}

// NewService constructs invite use-cases. mailer and notifier may be nil.
func NewService(store Store, users Users, access Access, members Members, mailer Mailer, notifier Notifier, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:    store,
		users:    users,
		access:   access,
		members:  members,
		mailer:   mailer,
		notifier: notifier,
		ttl:      DefaultTTL,
		clock:    clock,
		newID:    newID,
		newToken: NewToken,
	}
}

// WithTTL overrides the invite lifetime.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Create invites email into associationID. Super admins may grant any role;
// association admins may grant member or board. A pending invite for the same
// email gets a fresh token and expiry.
func (s *Service) Create(ctx context.Context, associationID string, input CreateInput) (Created, error) {
	if s == nil || s.store == nil || s.access == nil {
		return Created{}, ErrStoreNotConfigured
	}
	associationID = strings.TrimSpace(associationID)
	role, err := association.ParseRole(string(input.Role))
	if err != nil {
		return Created{}, err
	}
	principal, err := s.authorize(ctx, associationID, role)
	if err != nil {
		return Created{}, err
	}
	email, err := account.ValidateEmail(input.Email)
	if err != nil {
		return Created{}, err
	}
	assoc, err := s.access.Load(ctx, associationID)
	if err != nil {
		return Created{}, err
	}
	token, hash, err := s.newToken()
	if err != nil {
		return Created{}, err
	}

	now := s.clock().UTC()
	invite, err := s.store.FindPendingInvite(ctx, associationID, email)
	prev := invite
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		inviteID, err := s.newID()
		if err != nil {
			return Created{}, err
		}
		invite = Invite{
			ID:            inviteID,
			AssociationID: associationID,
			Email:         email,
			Status:        StatusPending,
			CreatedAt:     now,
		}
	default:
		return Created{}, err
	}
	invite.Role = role
	invite.Locale = normalizeLocale(input.Locale)
	invite.TokenHash = hash
	invite.InvitedBy = principal.UserID
	invite.ExpiresAt = now.Add(s.ttl)
	invite.UpdatedAt = now
	if prev.ID != "" {
		err = s.store.SwapInvite(ctx, prev, invite)
	} else {
		err = s.store.PutInvite(ctx, invite)
	}
	if err != nil {
		return Created{}, err
	}

	if s.mailer != nil {
		inviterName := ""
		if s.users != nil {
			if inviter, err := s.users.GetUser(ctx, principal.UserID); err == nil {
				inviterName = inviter.DisplayName
			}
		}
		if err := s.mailer.SendInvite(ctx, Invitation{
			Invite:          invite,
			Token:           token,
			AssociationName: assoc.Name,
			InviterName:     inviterName,
		}); err != nil {
			return Created{}, err
		}
	}
	return Created{Invite: invite, Token: token}, nil
}

// Preview resolves token without redeeming it.
func (s *Service) Preview(ctx context.Context, token string) (Preview, error) {
	if s == nil || s.store == nil || s.access == nil {
		return Preview{}, ErrStoreNotConfigured
	}
	invite, err := s.lookup(ctx, token)
	if err != nil {
		return Preview{}, err
	}
	invite.Status = invite.EffectiveStatus(s.clock().UTC())
	assoc, err := s.access.Load(ctx, invite.AssociationID)
	if err != nil {
		return Preview{}, err
	}
	preview := Preview{Invite: invite, AssociationName: assoc.Name}
	if s.users != nil {
		if _, err := s.users.FindByEmail(ctx, invite.Email); err == nil {
			preview.HasAccount = true
		}
	}
	return preview, nil
}

// Accept redeems token. The user is created when the email has no account;
// an existing account proves ownership with its password or an
// authenticated session. Access is granted, member records with the same
// email are linked and the inviter is notified.
func (s *Service) Accept(ctx context.Context, input AcceptInput) (Accepted, error) {
	if s == nil || s.store == nil || s.access == nil || s.users == nil {
		return Accepted{}, ErrStoreNotConfigured
	}
	invite, err := s.lookup(ctx, input.Token)
	if err != nil {
		return Accepted{}, err
	}
	now := s.clock().UTC()
	switch invite.EffectiveStatus(now) {
	case StatusAccepted:
		return Accepted{}, ErrUsed
	case StatusRevoked:
		return Accepted{}, ErrRevoked
	case StatusExpired:
		return Accepted{}, ErrExpired
	}

	user, created, err := s.resolveUser(ctx, invite, input)
	if err != nil {
		return Accepted{}, err
	}

	// Claim the invite before granting anything so a concurrent accept,
	// revoke or re-invite wins or loses as a whole.
	claimed := invite
	acceptedAt := now
	claimed.Status = StatusAccepted
	claimed.AcceptedAt = &acceptedAt
	claimed.AcceptedUserID = user.ID
	claimed.UpdatedAt = now
	if err := s.store.SwapInvite(ctx, invite, claimed); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return Accepted{}, s.claimLost(ctx, invite)
		}
		return Accepted{}, err
	}
	invite = claimed

	membership, err := s.grant(ctx, invite, user.ID)
	if err != nil {
		return Accepted{}, err
	}
	var linked []member.Member
	if s.members != nil {
		linked, err = s.members.LinkUserByEmail(ctx, invite.AssociationID, invite.Email, user.ID)
		if err != nil {
			return Accepted{}, err
		}
	}

	s.announce(ctx, invite)
	return Accepted{Invite: invite, User: user, Membership: membership, Linked: linked, NewUser: created}, nil
}

// Revoke cancels a pending invite. Requires admin.
func (s *Service) Revoke(ctx context.Context, associationID, inviteID string) (Invite, error) {
	if s == nil || s.store == nil || s.access == nil {
		return Invite{}, ErrStoreNotConfigured
	}
	associationID = strings.TrimSpace(associationID)
	if _, err := s.access.RequireRole(ctx, associationID, association.RoleAdmin); err != nil {
		return Invite{}, err
	}
	inviteID = strings.TrimSpace(inviteID)
	for attempt := 0; ; attempt++ {
		invite, err := s.store.GetInvite(ctx, associationID, inviteID)
		if err != nil {
			return Invite{}, err
		}
		switch invite.Status {
		case StatusAccepted:
			return Invite{}, ErrUsed
		case StatusRevoked:
			return invite, nil
		}
		revoked := invite
		revoked.Status = StatusRevoked
		revoked.UpdatedAt = s.clock().UTC()
		err = s.store.SwapInvite(ctx, invite, revoked)
		switch {
		case err == nil:
			return revoked, nil
		case errors.Is(err, apperrors.ErrConflict) && attempt < 2:
			// The token was rotated or the invite accepted meanwhile; look again.
			continue
		default:
			return Invite{}, err
		}
	}
}

// List returns the association's invites, newest first, with expired ones
// reported as such. Requires admin.
func (s *Service) List(ctx context.Context, associationID string) ([]Invite, error) {
	if s == nil || s.store == nil || s.access == nil {
		return nil, ErrStoreNotConfigured
	}
	associationID = strings.TrimSpace(associationID)
	if _, err := s.access.RequireRole(ctx, associationID, association.RoleAdmin); err != nil {
		return nil, err
	}
	invites, err := s.store.ListInvites(ctx, associationID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	for i := range invites {
		invites[i].Status = invites[i].EffectiveStatus(now)
	}
	sort.SliceStable(invites, func(i, j int) bool {
		return invites[i].CreatedAt.After(invites[j].CreatedAt)
	})
	return invites, nil
}

func (s *Service) authorize(ctx context.Context, associationID string, role association.Role) (requestctx.Principal, error) {
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return requestctx.Principal{}, association.ErrUnauthenticated
	}
	if principal.SuperAdmin {
		return principal, nil
	}
	if _, err := s.access.RequireRole(ctx, associationID, association.RoleAdmin); err != nil {
		return requestctx.Principal{}, err
	}
	if role == association.RoleAdmin {
		return requestctx.Principal{}, association.ErrPermissionDenied
	}
	return principal, nil
}

// claimLost explains why claiming invite failed.
func (s *Service) claimLost(ctx context.Context, invite Invite) error {
	current, err := s.store.GetInvite(ctx, invite.AssociationID, invite.ID)
	if err != nil {
		return err
	}
	switch current.Status {
	case StatusAccepted:
		return ErrUsed
	case StatusRevoked:
		return ErrRevoked
	}
	// Re-invited with a new token.
	return ErrInvalid
}

func (s *Service) lookup(ctx context.Context, token string) (Invite, error) {
	if strings.TrimSpace(token) == "" {
		return Invite{}, ErrInvalid
	}
	invite, err := s.store.GetInviteByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Invite{}, ErrInvalid
		}
		return Invite{}, err
	}
	return invite, nil
}

func (s *Service) resolveUser(ctx context.Context, invite Invite, input AcceptInput) (account.User, bool, error) {
	existing, err := s.users.FindByEmail(ctx, invite.Email)
	switch {
	case err == nil:
		if principal, ok := requestctx.PrincipalFromContext(ctx); ok && principal.UserID == existing.ID {
			return existing, false, nil
		}
		user, err := s.users.Authenticate(ctx, invite.Email, input.Password)
		if err != nil {
			return account.User{}, false, err
		}
		return user, false, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return account.User{}, false, err
	}
	user, err := s.users.Register(ctx, account.RegisterInput{
		Email:       invite.Email,
		DisplayName: input.DisplayName,
		Password:    input.Password,
		Locale:      invite.Locale,
	})
	if err != nil {
		return account.User{}, false, err
	}
	return user, true, nil
}

// grant keeps a higher role the user already holds.
func (s *Service) grant(ctx context.Context, invite Invite, userID string) (association.Membership, error) {
	existing, err := s.access.LoadMembership(ctx, invite.AssociationID, userID)
	switch {
	case err == nil:
		if existing.Role.AtLeast(invite.Role) {
			return existing, nil
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return association.Membership{}, err
	}
	return s.access.GrantSystem(ctx, invite.AssociationID, userID, invite.Role)
}

func (s *Service) announce(ctx context.Context, invite Invite) {
	if s.notifier == nil || invite.InvitedBy == "" {
		return
	}
	name := invite.AssociationID
	if assoc, err := s.access.Load(ctx, invite.AssociationID); err == nil {
		name = assoc.Name
	}
	err := s.notifier.Notify(ctx, Event{
		Topic:         EventAccepted,
		AssociationID: invite.AssociationID,
		UserID:        invite.InvitedBy,
		DedupeKey:     EventAccepted + ":" + invite.ID,
		Payload: map[string]string{
			"email":       invite.Email,
			"association": name,
		},
	})
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("invite_id", invite.ID).Msg("notify invite accepted")
	}
}

func normalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "en":
		return "en"
	default:
		return "nl"
	}
}
