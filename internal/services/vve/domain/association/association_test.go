package association

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
)

func superAdmin() context.Context {
	return requestctx.WithPrincipal(context.Background(), requestctx.Principal{UserID: "root", SuperAdmin: true})
}

func asUser(userID string) context.Context {
	return requestctx.WithUserID(context.Background(), userID)
}

func TestCreateRequiresSuperAdmin(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), nil, "vve-1")
	_, err := svc.Create(asUser("user-1"), CreateInput{Name: "VvE Zonnehof"})
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	_, err = svc.Create(context.Background(), CreateInput{Name: "VvE Zonnehof"})
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestCreateSeedsAndGrantsAdmin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seeder := &recordingSeeder{}
	svc := newTestService(store, seeder, "vve-1")

	created, err := svc.Create(superAdmin(), CreateInput{
		Name:        "VvE Zonnehof Één",
		IBAN:        "nl91 abna 0417 1643 00",
		MonthlyFee:  decimal.RequireFromString("85.125"),
		AdminUserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "vve-zonnehof-een", created.Slug)
	assert.Equal(t, "NL91ABNA0417164300", created.IBAN)
	assert.Equal(t, "EUR", created.Currency)
	assert.Equal(t, 1, created.FiscalYearStartMonth)
	assert.True(t, created.MonthlyFee.Equal(decimal.RequireFromString("85.13")))
	assert.Equal(t, []string{"vve-1"}, seeder.seeded)

	membership, err := svc.RequireRole(asUser("user-1"), "vve-1", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, membership.Role)

	_, err = svc.Create(superAdmin(), CreateInput{Name: "VvE Zonnehof Een"})
	assert.Equal(t, apperrors.CodeAssociationSlugTaken, apperrors.CodeOf(err))
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input CreateInput
		code  apperrors.Code
	}{
		{name: "empty name", input: CreateInput{Name: "  "}, code: apperrors.CodeAssociationNameEmpty},
		{name: "bad iban", input: CreateInput{Name: "A", IBAN: "NL00ABNA0417164300"}, code: apperrors.CodeInvalidIBAN},
		{name: "negative fee", input: CreateInput{Name: "A", MonthlyFee: decimal.NewFromInt(-1)}, code: apperrors.CodeInvalid},
		{name: "fiscal month", input: CreateInput{Name: "A", FiscalYearStartMonth: 13}, code: apperrors.CodeInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(newFakeStore(), nil, "vve-1")
			_, err := svc.Create(superAdmin(), tc.input)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.associations["vve-1"] = Association{ID: "vve-1", Name: "A", Slug: "a"}
	store.memberships[membershipKey("vve-1", "board-1")] = Membership{AssociationID: "vve-1", UserID: "board-1", Role: RoleBoard}
	store.memberships[membershipKey("vve-1", "member-1")] = Membership{AssociationID: "vve-1", UserID: "member-1", Role: RoleMember}
	svc := newTestService(store, nil)

	tests := []struct {
		name    string
		ctx     context.Context
		minimum Role
		wantErr error
	}{
		{name: "member reads", ctx: asUser("member-1"), minimum: RoleMember},
		{name: "member cannot board", ctx: asUser("member-1"), minimum: RoleBoard, wantErr: ErrPermissionDenied},
		{name: "board acts", ctx: asUser("board-1"), minimum: RoleBoard},
		{name: "board cannot admin", ctx: asUser("board-1"), minimum: RoleAdmin, wantErr: ErrPermissionDenied},
		{name: "outsider", ctx: asUser("stranger"), minimum: RoleMember, wantErr: ErrPermissionDenied},
		{name: "anonymous", ctx: context.Background(), minimum: RoleMember, wantErr: ErrUnauthenticated},
		{name: "super admin", ctx: superAdmin(), minimum: RoleAdmin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.RequireRole(tc.ctx, "vve-1", tc.minimum)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRevokeKeepsLastAdmin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.associations["vve-1"] = Association{ID: "vve-1"}
	store.memberships[membershipKey("vve-1", "admin-1")] = Membership{AssociationID: "vve-1", UserID: "admin-1", Role: RoleAdmin}
	store.memberships[membershipKey("vve-1", "member-1")] = Membership{AssociationID: "vve-1", UserID: "member-1", Role: RoleMember}
	svc := newTestService(store, nil)

	err := svc.Revoke(asUser("admin-1"), "vve-1", "admin-1")
	assert.ErrorIs(t, err, ErrLastAdmin)

	_, err = svc.Grant(asUser("admin-1"), "vve-1", "admin-1", RoleBoard)
	assert.ErrorIs(t, err, ErrLastAdmin)

	_, err = svc.Grant(asUser("admin-1"), "vve-1", "member-1", RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(asUser("member-1"), "vve-1", "admin-1"))

	_, err = svc.RequireRole(asUser("admin-1"), "vve-1", RoleMember)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestListAssociationsForUser(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.associations["vve-1"] = Association{ID: "vve-1", Name: "Een"}
	store.associations["vve-2"] = Association{ID: "vve-2", Name: "Twee"}
	store.memberships[membershipKey("vve-2", "user-1")] = Membership{AssociationID: "vve-2", UserID: "user-1", Role: RoleBoard}
	svc := newTestService(store, nil)

	mine, err := svc.ListAssociationsForUser(asUser("user-1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "vve-2", mine[0].Association.ID)
	assert.Equal(t, RoleBoard, mine[0].Role)

	all, err := svc.ListAssociationsForUser(superAdmin())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParseRoleAndRank(t *testing.T) {
	t.Parallel()

	role, err := ParseRole(" Board ")
	require.NoError(t, err)
	assert.Equal(t, RoleBoard, role)
	_, err = ParseRole("owner")
	assert.Equal(t, apperrors.CodeInvalidRole, apperrors.CodeOf(err))

	assert.True(t, RoleAdmin.AtLeast(RoleBoard))
	assert.False(t, RoleMember.AtLeast(RoleBoard))
	assert.False(t, Role("").AtLeast(""))
}

func TestNormalizeIBAN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "NL91 ABNA 0417 1643 00", want: "NL91ABNA0417164300", ok: true},
		{raw: "de89370400440532013000", want: "DE89370400440532013000", ok: true},
		{raw: "NL92ABNA0417164300"},
		{raw: "NL91"},
		{raw: "1291ABNA0417164300"},
		{raw: "NL91ABNA04171643-0"},
	}
	for _, tc := range tests {
		got, err := NormalizeIBAN(tc.raw)
		if !tc.ok {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func newTestService(store *fakeStore, seeder Seeder, ids ...string) *Service {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	return NewService(store, seeder, func() time.Time { return now }, id.Sequence(ids...))
}

type recordingSeeder struct {
	seeded []string
}

func (s *recordingSeeder) SeedAssociation(_ context.Context, associationID string) error {
	s.seeded = append(s.seeded, associationID)
	return nil
}

func membershipKey(associationID, userID string) string {
	return associationID + "/" + userID
}

type fakeStore struct {
	mu           sync.Mutex
	associations map[string]Association
	memberships  map[string]Membership
}

func newFakeStore() *fakeStore {
	return &fakeStore{associations: map[string]Association{}, memberships: map[string]Membership{}}
}

func (s *fakeStore) PutAssociation(_ context.Context, association Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associations[association.ID] = association
	return nil
}

func (s *fakeStore) GetAssociation(_ context.Context, associationID string) (Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	association, ok := s.associations[associationID]
	if !ok {
		return Association{}, apperrors.ErrNotFound
	}
	return association, nil
}

func (s *fakeStore) GetAssociationBySlug(_ context.Context, slug string) (Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, association := range s.associations {
		if association.Slug == slug {
			return association, nil
		}
	}
	return Association{}, apperrors.ErrNotFound
}

func (s *fakeStore) ListAssociations(context.Context) ([]Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Association, 0, len(s.associations))
	for _, association := range s.associations {
		out = append(out, association)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) PutMembership(_ context.Context, membership Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey(membership.AssociationID, membership.UserID)] = membership
	return nil
}

func (s *fakeStore) GetMembership(_ context.Context, associationID, userID string) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	membership, ok := s.memberships[membershipKey(associationID, userID)]
	if !ok {
		return Membership{}, apperrors.ErrNotFound
	}
	return membership, nil
}

func (s *fakeStore) DeleteMembership(_ context.Context, associationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, membershipKey(associationID, userID))
	return nil
}

func (s *fakeStore) ListMemberships(_ context.Context, associationID string) ([]Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Membership
	for _, membership := range s.memberships {
		if membership.AssociationID == associationID {
			out = append(out, membership)
		}
	}
	return out, nil
}

func (s *fakeStore) ListMembershipsForUser(_ context.Context, userID string) ([]Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Membership
	for _, membership := range s.memberships {
		if membership.UserID == userID {
			out = append(out, membership)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssociationID < out[j].AssociationID })
	return out, nil
}
