package invite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

func TestHashTokenIsStable(t *testing.T) {
	t.Parallel()

	token, hash, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken(" "+token+" "))
	assert.NotContains(t, token, "=")
}

func TestCreateSendsInvite(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: " New@Example.com ", Role: association.RoleBoard, Locale: "EN"})
	require.NoError(t, err)

	assert.Equal(t, "token-1", created.Token)
	stored := f.store.invites[created.Invite.ID]
	assert.Equal(t, HashToken("token-1"), stored.TokenHash)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, "en", stored.Locale)
	assert.Equal(t, "user-admin", stored.InvitedBy)
	assert.Equal(t, f.now.Add(DefaultTTL), stored.ExpiresAt)

	require.Len(t, f.mailer.sent, 1)
	sent := f.mailer.sent[0]
	assert.Equal(t, "token-1", sent.Token)
	assert.Equal(t, "VvE Zonnehof", sent.AssociationName)
	assert.Equal(t, "Anna Admin", sent.InviterName)
}

func TestCreateEnforcesWhoMayGrantWhat(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "x@example.com", Role: association.RoleAdmin})
	assert.ErrorIs(t, err, association.ErrPermissionDenied)

	_, err = f.svc.Create(requestctx.WithUserID(context.Background(), "user-board"), "vve-1", CreateInput{Email: "x@example.com", Role: association.RoleMember})
	assert.ErrorIs(t, err, association.ErrPermissionDenied)

	_, err = f.svc.Create(context.Background(), "vve-1", CreateInput{Email: "x@example.com", Role: association.RoleMember})
	assert.ErrorIs(t, err, association.ErrUnauthenticated)

	created, err := f.svc.Create(f.superAdmin(), "vve-1", CreateInput{Email: "x@example.com", Role: association.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, association.RoleAdmin, created.Invite.Role)
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "not an email", Role: association.RoleMember})
	assert.Equal(t, apperrors.CodeInvalidEmail, apperrors.CodeOf(err))

	_, err = f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "x@example.com", Role: "owner"})
	assert.Equal(t, apperrors.CodeInvalidRole, apperrors.CodeOf(err))

	_, err = f.svc.Create(f.superAdmin(), "vve-missing", CreateInput{Email: "x@example.com", Role: association.RoleMember})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReinviteRotatesToken(t *testing.T) {
	t.Parallel()

	f := newFixture()
	first, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	f.advance(48 * time.Hour)
	second, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleBoard})
	require.NoError(t, err)

	assert.Equal(t, first.Invite.ID, second.Invite.ID)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, association.RoleBoard, second.Invite.Role)
	assert.Equal(t, f.now.Add(DefaultTTL), second.Invite.ExpiresAt)
	assert.Len(t, f.store.invites, 1)

	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: first.Token, Password: "correct horse battery"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAcceptCreatesUserAndGrantsAccess(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.members.emails["new@example.com"] = "mem-7"
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)

	preview, err := f.svc.Preview(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, "VvE Zonnehof", preview.AssociationName)
	assert.False(t, preview.HasAccount)

	accepted, err := f.svc.Accept(context.Background(), AcceptInput{Token: created.Token, DisplayName: "Nina", Password: "correct horse battery"})
	require.NoError(t, err)
	assert.True(t, accepted.NewUser)
	assert.Equal(t, "Nina", accepted.User.DisplayName)
	assert.Equal(t, association.RoleMember, accepted.Membership.Role)
	require.Len(t, accepted.Linked, 1)
	assert.Equal(t, "mem-7", accepted.Linked[0].ID)

	stored := f.store.invites[created.Invite.ID]
	assert.Equal(t, StatusAccepted, stored.Status)
	assert.Equal(t, accepted.User.ID, stored.AcceptedUserID)
	require.NotNil(t, stored.AcceptedAt)

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	assert.Equal(t, EventAccepted, event.Topic)
	assert.Equal(t, "user-admin", event.UserID)
	assert.Equal(t, "new@example.com", event.Payload["email"])
	assert.Equal(t, "VvE Zonnehof", event.Payload["association"])

	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: created.Token, Password: "correct horse battery"})
	assert.ErrorIs(t, err, ErrUsed)
}

func TestAcceptExistingUserRequiresProof(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.users.add(account.User{ID: "user-old", Email: "old@example.com", DisplayName: "Old"}, "old password 123")
	f.access.memberships["vve-1/user-old"] = association.RoleAdmin
	created, err := f.svc.Create(f.superAdmin(), "vve-1", CreateInput{Email: "old@example.com", Role: association.RoleMember})
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: created.Token, Password: "wrong password"})
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	accepted, err := f.svc.Accept(requestctx.WithUserID(context.Background(), "user-old"), AcceptInput{Token: created.Token})
	require.NoError(t, err)
	assert.False(t, accepted.NewUser)
	assert.Equal(t, association.RoleAdmin, accepted.Membership.Role, "existing higher role is kept")
	assert.Equal(t, association.RoleAdmin, f.access.memberships["vve-1/user-old"])
}

func TestAcceptRejectsExpiredAndRevoked(t *testing.T) {
	t.Parallel()

	f := newFixture()
	expiring, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "late@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	revoked, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "gone@example.com", Role: association.RoleMember})
	require.NoError(t, err)

	_, err = f.svc.Revoke(f.admin(), "vve-1", revoked.Invite.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: revoked.Token, Password: "correct horse battery"})
	assert.ErrorIs(t, err, ErrRevoked)

	f.advance(DefaultTTL)
	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: expiring.Token, Password: "correct horse battery"})
	assert.ErrorIs(t, err, ErrExpired)

	invites, err := f.svc.List(f.admin(), "vve-1")
	require.NoError(t, err)
	statuses := map[string]Status{}
	for _, invite := range invites {
		statuses[invite.Email] = invite.Status
	}
	assert.Equal(t, map[string]Status{"late@example.com": StatusExpired, "gone@example.com": StatusRevoked}, statuses)

	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: " "})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRevokeAcceptedFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: created.Token, Password: "correct horse battery"})
	require.NoError(t, err)

	_, err = f.svc.Revoke(f.admin(), "vve-1", created.Invite.ID)
	assert.ErrorIs(t, err, ErrUsed)

	_, err = f.svc.List(requestctx.WithUserID(context.Background(), "user-board"), "vve-1")
	assert.ErrorIs(t, err, association.ErrPermissionDenied)
}

func TestAcceptLosesToRevokeInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	f.store.beforeSwap = func() {
		_, err := f.svc.Revoke(f.admin(), "vve-1", created.Invite.ID)
		require.NoError(t, err)
	}

	_, err = f.svc.Accept(context.Background(), AcceptInput{Token: created.Token, DisplayName: "Nina", Password: "correct horse battery"})
	assert.ErrorIs(t, err, ErrRevoked)
	assert.Equal(t, StatusRevoked, f.store.invites[created.Invite.ID].Status)
	user, err := f.users.FindByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	_, granted := f.access.memberships["vve-1/"+user.ID]
	assert.False(t, granted, "a revoked invite grants nothing")
	assert.Empty(t, f.notifier.events)
}

func TestConcurrentAcceptsSucceedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	input := AcceptInput{Token: created.Token, DisplayName: "Nina", Password: "correct horse battery"}
	var inner error
	f.store.beforeSwap = func() {
		_, inner = f.svc.Accept(context.Background(), input)
	}

	_, err = f.svc.Accept(context.Background(), input)
	require.NoError(t, inner)
	assert.ErrorIs(t, err, ErrUsed)
	assert.Len(t, f.notifier.events, 1)
}

func TestRevokeFollowsRotatedToken(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
	require.NoError(t, err)
	f.store.beforeSwap = func() {
		_, err := f.svc.Create(f.admin(), "vve-1", CreateInput{Email: "new@example.com", Role: association.RoleMember})
		require.NoError(t, err)
	}

	revoked, err := f.svc.Revoke(f.admin(), "vve-1", created.Invite.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, revoked.Status)
	stored := f.store.invites[created.Invite.ID]
	assert.Equal(t, StatusRevoked, stored.Status)
	assert.Equal(t, HashToken("token-2"), stored.TokenHash)
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	users    *fakeUsers
	access   *fakeAccess
	members  *fakeMembers
	mailer   *fakeMailer
	notifier *fakeNotifier
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:    &fakeStore{invites: map[string]Invite{}},
		users:    &fakeUsers{byEmail: map[string]account.User{}, passwords: map[string]string{}},
		access:   newFakeAccess(),
		members:  &fakeMembers{emails: map[string]string{}},
		mailer:   &fakeMailer{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.users.add(account.User{ID: "user-admin", Email: "admin@example.com", DisplayName: "Anna Admin"}, "admin password 1")
	f.svc = NewService(f.store, f.users, f.access, f.members, f.mailer, f.notifier, func() time.Time { return f.now }, id.Sequence("inv-1", "inv-2", "inv-3"))
	tokens := 0
	f.svc.newToken = func() (string, string, error) {
		tokens++
		token := fmt.Sprintf("token-%d", tokens)
		return token, HashToken(token), nil
	}
	return f
}

func (f *fixture) admin() context.Context {
	return requestctx.WithUserID(context.Background(), "user-admin")
}

func (f *fixture) superAdmin() context.Context {
	return requestctx.WithPrincipal(context.Background(), requestctx.Principal{UserID: "user-root", SuperAdmin: true})
}

func (f *fixture) advance(step time.Duration) {
	f.now = f.now.Add(step)
}

type fakeStore struct {
	mu      sync.Mutex
	invites map[string]Invite
	// beforeSwap runs once at the start of the next SwapInvite, standing in
	// for a writer that lands between a read and the conditional write.
	beforeSwap func()
}

func (s *fakeStore) SwapInvite(_ context.Context, prev, next Invite) error {
	s.mu.Lock()
	hook := s.beforeSwap
	s.beforeSwap = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invites[prev.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if current.Status != prev.Status || current.TokenHash != prev.TokenHash {
		return apperrors.ErrConflict
	}
	s.invites[next.ID] = next
	return nil
}

func (s *fakeStore) PutInvite(_ context.Context, invite Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[invite.ID] = invite
	return nil
}

func (s *fakeStore) GetInvite(_ context.Context, associationID, inviteID string) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invite, ok := s.invites[inviteID]
	if !ok || invite.AssociationID != associationID {
		return Invite{}, apperrors.ErrNotFound
	}
	return invite, nil
}

func (s *fakeStore) GetInviteByTokenHash(_ context.Context, tokenHash string) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, invite := range s.invites {
		if invite.TokenHash == tokenHash {
			return invite, nil
		}
	}
	return Invite{}, apperrors.ErrNotFound
}

func (s *fakeStore) FindPendingInvite(_ context.Context, associationID, email string) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, invite := range s.invites {
		if invite.AssociationID == associationID && invite.Email == email && invite.Status == StatusPending {
			return invite, nil
		}
	}
	return Invite{}, apperrors.ErrNotFound
}

func (s *fakeStore) ListInvites(_ context.Context, associationID string) ([]Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var invites []Invite
	for _, invite := range s.invites {
		if invite.AssociationID == associationID {
			invites = append(invites, invite)
		}
	}
	return invites, nil
}

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]account.User
	passwords map[string]string
	next      int
}

func (u *fakeUsers) add(user account.User, password string) {
	u.byEmail[user.Email] = user
	u.passwords[user.Email] = password
}

func (u *fakeUsers) GetUser(_ context.Context, userID string) (account.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.byEmail {
		if user.ID == userID {
			return user, nil
		}
	}
	return account.User{}, apperrors.ErrNotFound
}

func (u *fakeUsers) FindByEmail(_ context.Context, email string) (account.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return account.User{}, apperrors.ErrNotFound
	}
	return user, nil
}

func (u *fakeUsers) Register(_ context.Context, input account.RegisterInput) (account.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(input.Password) < account.MinPasswordLength {
		return account.User{}, account.ErrWeakPassword
	}
	u.next++
	user := account.User{
		ID:          fmt.Sprintf("user-new-%d", u.next),
		Email:       input.Email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Locale:      input.Locale,
	}
	u.byEmail[user.Email] = user
	u.passwords[user.Email] = input.Password
	return user, nil
}

func (u *fakeUsers) Authenticate(_ context.Context, email, password string) (account.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byEmail[email]
	if !ok || u.passwords[email] != password {
		return account.User{}, account.ErrInvalidCredentials
	}
	return user, nil
}

type fakeAccess struct {
	mu           sync.Mutex
	associations map[string]association.Association
	memberships  map[string]association.Role
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{
		associations: map[string]association.Association{"vve-1": {ID: "vve-1", Name: "VvE Zonnehof"}},
		memberships: map[string]association.Role{
			"vve-1/user-admin": association.RoleAdmin,
			"vve-1/user-board": association.RoleBoard,
		},
	}
}

func (a *fakeAccess) RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error) {
	principal, ok := requestctx.PrincipalFromContext(ctx)
	if !ok {
		return association.Membership{}, association.ErrUnauthenticated
	}
	if principal.SuperAdmin {
		return association.Membership{AssociationID: associationID, UserID: principal.UserID, Role: association.RoleAdmin}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	role, ok := a.memberships[associationID+"/"+principal.UserID]
	if !ok || !role.AtLeast(minimum) {
		return association.Membership{}, association.ErrPermissionDenied
	}
	return association.Membership{AssociationID: associationID, UserID: principal.UserID, Role: role}, nil
}

func (a *fakeAccess) Load(_ context.Context, associationID string) (association.Association, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	assoc, ok := a.associations[associationID]
	if !ok {
		return association.Association{}, apperrors.ErrNotFound
	}
	return assoc, nil
}

func (a *fakeAccess) LoadMembership(_ context.Context, associationID, userID string) (association.Membership, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	role, ok := a.memberships[associationID+"/"+userID]
	if !ok {
		return association.Membership{}, apperrors.ErrNotFound
	}
	return association.Membership{AssociationID: associationID, UserID: userID, Role: role}, nil
}

func (a *fakeAccess) GrantSystem(_ context.Context, associationID, userID string, role association.Role) (association.Membership, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memberships[associationID+"/"+userID] = role
	return association.Membership{AssociationID: associationID, UserID: userID, Role: role}, nil
}

type fakeMembers struct {
	emails map[string]string
}

func (m *fakeMembers) LinkUserByEmail(_ context.Context, associationID, email, userID string) ([]member.Member, error) {
	memberID, ok := m.emails[email]
	if !ok {
		return nil, nil
	}
	return []member.Member{{ID: memberID, AssociationID: associationID, Email: email, UserID: userID}}, nil
}

type fakeMailer struct {
	sent []Invitation
}

func (m *fakeMailer) SendInvite(_ context.Context, invitation Invitation) error {
	m.sent = append(m.sent, invitation)
	return nil
}

type fakeNotifier struct {
	events []Event
}

func (n *fakeNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return nil
}
