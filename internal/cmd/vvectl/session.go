package vvectl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	vveapp "github.com/louisbranch/vvebeheer/internal/services/vve/app"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// systemActor marks rows created by the CLI without an operator.
const systemActor = "vvectl"

// session is one command's view of the composed services.
type session struct {
	settings Settings
	app      *vveapp.App
}

func openSession(settings Settings) (*session, error) {
	if settings.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	store, err := vveapp.OpenStore(settings.DBPath)
	if err != nil {
		return nil, err
	}
	composed, err := vveapp.Compose(store, vveapp.Config{
		InviteURL:    settings.InviteURL,
		ProfilesPath: settings.ProfilesPath,
		RulesPath:    settings.RulesPath,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &session{settings: settings, app: composed}, nil
}

func (s *session) Close() error {
	return s.app.Store.Close()
}

// association resolves a slug or an id.
func (s *session) association(ctx context.Context, ref string) (association.Association, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return association.Association{}, errors.New("association is required")
	}
	found, err := s.app.Store.GetAssociationBySlug(ctx, association.Slugify(ref))
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return association.Association{}, err
	}
	found, err = s.app.Services.Associations.Load(ctx, ref)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return association.Association{}, fmt.Errorf("association %q not found", ref)
		}
		return association.Association{}, err
	}
	return found, nil
}

// operator loads the configured super admin and returns ctx acting as them.
func (s *session) operator(ctx context.Context) (context.Context, account.User, error) {
	if s.settings.Operator == "" {
		return nil, account.User{}, errors.New("operator email is required (--operator or VVEBEHEER_OPERATOR)")
	}
	user, err := s.app.Services.Accounts.FindByEmail(ctx, s.settings.Operator)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, account.User{}, fmt.Errorf("operator %q has no account; run bootstrap first", s.settings.Operator)
		}
		return nil, account.User{}, err
	}
	if !user.SuperAdmin {
		return nil, account.User{}, fmt.Errorf("operator %q is not a super admin", s.settings.Operator)
	}
	return requestctx.WithPrincipal(ctx, requestctx.Principal{UserID: user.ID, SuperAdmin: true}), user, nil
}

// actor names the operator for audit columns, or the CLI itself.
func (s *session) actor(ctx context.Context) string {
	if s.settings.Operator == "" {
		return systemActor
	}
	_, user, err := s.operator(ctx)
	if err != nil {
		return systemActor
	}
	return user.ID
}
