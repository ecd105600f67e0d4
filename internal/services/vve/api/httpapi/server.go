// Package httpapi exposes the association management services as a JSON
// HTTP API with a websocket notification stream.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/stream"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

// maxImportBody caps uploaded bank statements.
const maxImportBody = 10 << 20

// Services are the domain services the API serves.
type Services struct {
	Tokens        *account.TokenIssuer
	Accounts      *account.Service
	Associations  *association.Service
	Members       *member.Service
	Contributions *contribution.Service
	Banking       *banking.Reconciler
	Ledger        *ledger.Service
	Voting        *voting.Service
	Invites       *invite.Service
	Inbox         *notifications.Service
	Outbox        *mail.Outbox
	Hub           *stream.Hub
}

// Options tune the HTTP surface.
type Options struct {
	Logger     zerolog.Logger
	CORSOrigin string
	// PingInterval keeps idle notification streams alive.
	PingInterval time.Duration
}

// Server routes API requests to the domain services.
type Server struct {
	services     Services
	pingInterval time.Duration
}

// NewHandler builds the full middleware-wrapped API handler.
func NewHandler(services Services, opts Options) (http.Handler, error) {
	if services.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if services.Associations == nil {
		return nil, errors.New("association service is required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	s := &Server{services: services, pingInterval: opts.PingInterval}
	mux := http.NewServeMux()
	s.routes(mux)
	return httpx.Chain(mux,
		httpx.Recover,
		httpx.AccessLog(opts.Logger),
		httpx.CORS(opts.CORSOrigin),
		httpx.Locale,
		s.authenticate,
	), nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("GET /v1/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /v1/associations", s.authed(s.handleListAssociations))
	mux.HandleFunc("POST /v1/associations", s.authed(s.handleCreateAssociation))
	mux.HandleFunc("GET /v1/associations/{assoc}", s.authed(s.handleGetAssociation))
	mux.HandleFunc("PUT /v1/associations/{assoc}", s.authed(s.handleUpdateAssociation))
	mux.HandleFunc("GET /v1/associations/{assoc}/memberships", s.authed(s.handleListMemberships))
	mux.HandleFunc("PUT /v1/associations/{assoc}/memberships/{user}", s.authed(s.handleGrantMembership))
	mux.HandleFunc("DELETE /v1/associations/{assoc}/memberships/{user}", s.authed(s.handleRevokeMembership))

	mux.HandleFunc("GET /v1/associations/{assoc}/members", s.authed(s.handleListMembers))
	mux.HandleFunc("POST /v1/associations/{assoc}/members", s.authed(s.handleCreateMember))
	mux.HandleFunc("GET /v1/associations/{assoc}/members/me", s.authed(s.handleSelfMember))
	mux.HandleFunc("GET /v1/associations/{assoc}/members/{member}", s.authed(s.handleGetMember))
	mux.HandleFunc("PUT /v1/associations/{assoc}/members/{member}", s.authed(s.handleUpdateMember))
	mux.HandleFunc("POST /v1/associations/{assoc}/members/{member}/archive", s.authed(s.handleArchiveMember))

	mux.HandleFunc("POST /v1/associations/{assoc}/dues", s.authed(s.handleGenerateDues))
	mux.HandleFunc("GET /v1/associations/{assoc}/contributions", s.authed(s.handleListPeriod))
	mux.HandleFunc("GET /v1/associations/{assoc}/members/{member}/contributions", s.authed(s.handleListForMember))
	mux.HandleFunc("GET /v1/associations/{assoc}/members/{member}/outstanding", s.authed(s.handleOutstanding))
	mux.HandleFunc("GET /v1/associations/{assoc}/summary", s.authed(s.handleSummary))

	mux.HandleFunc("POST /v1/associations/{assoc}/imports", s.authed(s.handleImport))
	mux.HandleFunc("GET /v1/associations/{assoc}/imports", s.authed(s.handleListImports))
	mux.HandleFunc("POST /v1/associations/{assoc}/reconcile", s.authed(s.handleReconcile))
	mux.HandleFunc("GET /v1/associations/{assoc}/transactions", s.authed(s.handleListTransactions))
	mux.HandleFunc("GET /v1/associations/{assoc}/transactions/{tx}", s.authed(s.handleGetTransaction))
	mux.HandleFunc("POST /v1/associations/{assoc}/transactions/{tx}/assign", s.authed(s.handleAssign))
	mux.HandleFunc("POST /v1/associations/{assoc}/transactions/{tx}/categorize", s.authed(s.handleCategorize))
	mux.HandleFunc("POST /v1/associations/{assoc}/transactions/{tx}/ignore", s.authed(s.handleIgnore))
	mux.HandleFunc("POST /v1/associations/{assoc}/transactions/{tx}/undo", s.authed(s.handleUndo))
	mux.HandleFunc("GET /v1/associations/{assoc}/rules", s.authed(s.handleListRules))
	mux.HandleFunc("PUT /v1/associations/{assoc}/rules/{rule}", s.authed(s.handleSaveRule))
	mux.HandleFunc("DELETE /v1/associations/{assoc}/rules/{rule}", s.authed(s.handleDeleteRule))
	mux.HandleFunc("GET /v1/associations/{assoc}/rules/script", s.authed(s.handleGetScript))
	mux.HandleFunc("PUT /v1/associations/{assoc}/rules/script", s.authed(s.handlePutScript))

	mux.HandleFunc("GET /v1/associations/{assoc}/accounts", s.authed(s.handleListAccounts))
	mux.HandleFunc("PUT /v1/associations/{assoc}/accounts/{code}", s.authed(s.handleSaveAccount))
	mux.HandleFunc("DELETE /v1/associations/{assoc}/accounts/{code}", s.authed(s.handleDeleteAccount))
	mux.HandleFunc("GET /v1/associations/{assoc}/entries", s.authed(s.handleListEntries))
	mux.HandleFunc("POST /v1/associations/{assoc}/entries", s.authed(s.handlePostEntry))
	mux.HandleFunc("POST /v1/associations/{assoc}/entries/{entry}/reverse", s.authed(s.handleReverseEntry))
	mux.HandleFunc("GET /v1/associations/{assoc}/reports/trial-balance", s.authed(s.handleTrialBalance))
	mux.HandleFunc("GET /v1/associations/{assoc}/reports/income-statement", s.authed(s.handleIncomeStatement))

	mux.HandleFunc("GET /v1/associations/{assoc}/proposals", s.authed(s.handleListProposals))
	mux.HandleFunc("POST /v1/associations/{assoc}/proposals", s.authed(s.handleCreateProposal))
	mux.HandleFunc("GET /v1/associations/{assoc}/proposals/{proposal}", s.authed(s.handleGetProposal))
	mux.HandleFunc("POST /v1/associations/{assoc}/proposals/{proposal}/open", s.authed(s.handleOpenProposal))
	mux.HandleFunc("POST /v1/associations/{assoc}/proposals/{proposal}/close", s.authed(s.handleCloseProposal))
	mux.HandleFunc("PUT /v1/associations/{assoc}/proposals/{proposal}/vote", s.authed(s.handleCastVote))
	mux.HandleFunc("GET /v1/associations/{assoc}/proposals/{proposal}/votes", s.authed(s.handleListVotes))
	mux.HandleFunc("GET /v1/associations/{assoc}/proposals/{proposal}/tally", s.authed(s.handleTally))

	mux.HandleFunc("GET /v1/associations/{assoc}/invites", s.authed(s.handleListInvites))
	mux.HandleFunc("POST /v1/associations/{assoc}/invites", s.authed(s.handleCreateInvite))
	mux.HandleFunc("POST /v1/associations/{assoc}/invites/{invite}/revoke", s.authed(s.handleRevokeInvite))
	mux.HandleFunc("GET /v1/invites/{token}", s.handlePreviewInvite)
	mux.HandleFunc("POST /v1/invites/accept", s.handleAcceptInvite)

	mux.HandleFunc("GET /v1/notifications", s.authed(s.handleListNotifications))
	mux.HandleFunc("GET /v1/notifications/unread", s.authed(s.handleUnread))
	mux.HandleFunc("POST /v1/notifications/read", s.authed(s.handleMarkAllRead))
	mux.HandleFunc("POST /v1/notifications/{notification}/read", s.authed(s.handleMarkRead))
	mux.HandleFunc("GET /v1/notifications/stream", s.handleStream)

	mux.HandleFunc("GET /v1/admin/mail", s.authed(s.handleListMail))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate attaches the principal of a valid bearer token. Requests
// without a token pass through anonymous; a bad token is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httpx.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := s.services.Tokens.Verify(token)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithPrincipal(r.Context(), principal)))
	})
}

// authed rejects anonymous callers.
func (s *Server) authed(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requestctx.PrincipalFromContext(r.Context()); !ok {
			httpx.WriteError(w, r, association.ErrUnauthenticated)
			return
		}
		handler(w, r)
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.CodeInvalid, "%s must be a number", name)
	}
	return value, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	return parseDate(r.URL.Query().Get(name), name)
}

func parseDate(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperrors.Newf(apperrors.CodeInvalid, "%s must be a YYYY-MM-DD date", name)
	}
	return value, nil
}

func parseDecimal(raw, name string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, apperrors.Newf(apperrors.CodeInvalid, "%s must be a decimal", name)
	}
	return value, nil
}

func optionalDecimal(raw *string, name string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := parseDecimal(*raw, name)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parsePeriods(raw []string) ([]contribution.Period, error) {
	periods := make([]contribution.Period, 0, len(raw))
	for _, value := range raw {
		period, err := contribution.ParsePeriod(value)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, nil
}

// decodeOptionalJSON decodes a body the caller may omit entirely.
func decodeOptionalJSON(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return httpx.DecodeJSON(r, target)
}
