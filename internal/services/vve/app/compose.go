// Package app wires the association management services onto one SQLite
// store and runs them behind the HTTP API.
package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/platform/config"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/stream"
	"github.com/louisbranch/vvebeheer/internal/services/vve/api/httpapi"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking/csvimport"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking/luarules"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
	"github.com/louisbranch/vvebeheer/internal/services/vve/storage/sqlite"
)

const defaultStreamBuffer = 16

// Config tunes service composition.
type Config struct {
	Tokens account.TokenConfig
	Mail   mail.Config
	// InviteTTL overrides how long invite links stay valid.
	InviteTTL time.Duration
	// InviteURL is the accept page; the invite token is appended to it.
	InviteURL string
	// ProfilesPath and RulesPath point at optional YAML files extending the
	// bundled import profiles and categorization rules.
	ProfilesPath string
	RulesPath    string
	StreamBuffer int
	// PasswordCost overrides the bcrypt cost; tests lower it.
	PasswordCost int
	Clock        func() time.Time
	NewID        func() (string, error)
}

// App holds every composed service.
type App struct {
	Store      *sqlite.Store
	Services   httpapi.Services
	Dispatcher *notifications.Dispatcher
	Profiles   *csvimport.Registry
}

// OpenStore opens the SQLite database at path, creating its directory.
func OpenStore(path string) (*sqlite.Store, error) {
	if err := config.EnsureParentDir(path); err != nil {
		return nil, err
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

// Compose builds the services on store.
func Compose(store *sqlite.Store, cfg Config) (*App, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}
	streamBuffer := cfg.StreamBuffer
	if streamBuffer <= 0 {
		streamBuffer = defaultStreamBuffer
	}

	// Background processes compose without a signing secret.
	var tokens *account.TokenIssuer
	if cfg.Tokens.Secret != "" {
		issuer, err := account.NewTokenIssuer(cfg.Tokens, clock)
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
		tokens = issuer
	}
	accounts := account.NewService(store, clock, newID)
	if cfg.PasswordCost > 0 {
		accounts = accounts.WithHashCost(cfg.PasswordCost)
	}

	// Seeding the chart needs no guard, which breaks the cycle between the
	// tenant guard and the books.
	associations := association.NewService(store, ledger.NewService(store, nil, clock, newID), clock, newID)
	books := ledger.NewService(store, associations, clock, newID)
	members := member.NewService(store, associations, clock, newID)
	dues := contribution.NewService(store, members, associations, associations, clock, newID)

	hub := stream.NewHub(streamBuffer)
	outbox := mail.NewOutbox(store, cfg.Mail, clock, newID)
	inbox := notifications.NewService(store, clock, newID)
	dispatcher := notifications.NewDispatcher(inbox, directory{users: accounts, board: store}, outbox, hub)

	profiles, err := loadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}
	rules, err := loadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	reconciler := banking.NewReconciler(banking.Deps{
		Store:        store,
		Members:      members,
		Dues:         dues,
		Ledger:       books,
		Associations: associations,
		Guard:        associations,
		Parsers:      profiles,
		Notifier:     newBankingNotifier(dispatcher),
		Compile:      luarules.Compile,
		DefaultRules: rules,
		Clock:        clock,
		NewID:        newID,
	})

	votes := voting.NewService(store, members, associations, newVotingNotifier(dispatcher), clock, newID)
	invites := invite.NewService(store, accounts, associations, members,
		inviteMailer{dispatcher: dispatcher, acceptURL: cfg.InviteURL},
		newInviteNotifier(dispatcher), clock, newID)
	if cfg.InviteTTL > 0 {
		invites = invites.WithTTL(cfg.InviteTTL)
	}

	return &App{
		Store: store,
		Services: httpapi.Services{
			Tokens:        tokens,
			Accounts:      accounts,
			Associations:  associations,
			Members:       members,
			Contributions: dues,
			Banking:       reconciler,
			Ledger:        books,
			Voting:        votes,
			Invites:       invites,
			Inbox:         inbox,
			Outbox:        outbox,
			Hub:           hub,
		},
		Dispatcher: dispatcher,
		Profiles:   profiles,
	}, nil
}

func loadProfiles(path string) (*csvimport.Registry, error) {
	var extra []csvimport.Profile
	if path = strings.TrimSpace(path); path != "" {
		loaded, err := csvimport.LoadProfiles(path)
		if err != nil {
			return nil, err
		}
		extra = loaded
	}
	registry, err := csvimport.NewRegistry(extra...)
	if err != nil {
		return nil, fmt.Errorf("import profiles: %w", err)
	}
	return registry, nil
}

func loadRules(path string) ([]banking.Rule, error) {
	rules, err := banking.DefaultRules()
	if err != nil {
		return nil, fmt.Errorf("default rules: %w", err)
	}
	if path = strings.TrimSpace(path); path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	extra, err := banking.ParseRules(raw)
	if err != nil {
		return nil, err
	}
	return append(extra, rules...), nil
}
