package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vvebeheer/internal/services/vve/api/httpapi"
	"github.com/louisbranch/vvebeheer/internal/services/vve/app"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
)

const (
	adminEmail    = "beheer@example.nl"
	adminPassword = "correct horse battery"
	assocIBAN     = "NL02ABNA0123456789"
	memberIBAN    = "NL91ABNA0417164300"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	app    *app.App
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := app.OpenStore(filepath.Join(t.TempDir(), "vve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	composed, err := app.Compose(store, app.Config{
		Tokens:       account.TokenConfig{Secret: strings.Repeat("s", 40), Issuer: "vvebeheer-test", TTL: time.Hour},
		InviteURL:    "https://vve.example.nl/invite",
		PasswordCost: 4,
	})
	require.NoError(t, err)
	handler, err := httpapi.NewHandler(composed.Services, httpapi.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	_, created, err := composed.Services.Accounts.BootstrapSuperAdmin(context.Background(), adminEmail, "Beheer", adminPassword)
	require.NoError(t, err)
	require.True(t, created)
	return &testAPI{t: t, server: server, app: composed}
}

// call sends body as JSON and decodes the response into out when non-nil.
func (a *testAPI) call(method, path, token string, body, out any) int {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token, out)
}

func (a *testAPI) send(req *http.Request, token string, out any) int {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) login(email, password string) string {
	a.t.Helper()
	var session struct {
		AccessToken string `json:"access_token"`
	}
	status := a.call(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password}, &session)
	require.Equal(a.t, http.StatusOK, status)
	require.NotEmpty(a.t, session.AccessToken)
	return session.AccessToken
}

type created struct {
	ID string `json:"id"`
}

// setupAssociation creates an association with one member linked to the
// super admin.
func (a *testAPI) setupAssociation(token string) (assocID, memberID string) {
	a.t.Helper()
	var assoc created
	status := a.call(http.MethodPost, "/v1/associations", token, map[string]any{
		"name":        "VvE Lindelaan",
		"iban":        assocIBAN,
		"monthly_fee": "100.00",
	}, &assoc)
	require.Equal(a.t, http.StatusCreated, status)

	var me struct {
		ID string `json:"id"`
	}
	require.Equal(a.t, http.StatusOK, a.call(http.MethodGet, "/v1/me", token, nil, &me))

	var m created
	status = a.call(http.MethodPost, "/v1/associations/"+assoc.ID+"/members", token, map[string]any{
		"user_id":    me.ID,
		"name":       "J Jansen",
		"unit":       "1A",
		"share":      "1",
		"ibans":      []string{memberIBAN},
		"start_date": "2026-01-01",
	}, &m)
	require.Equal(a.t, http.StatusCreated, status)
	return assoc.ID, m.ID
}

func TestHealthAndAuthentication(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	var health map[string]string
	assert.Equal(t, http.StatusOK, api.call(http.MethodGet, "/healthz", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var problem struct {
		Code string `json:"code"`
	}
	assert.Equal(t, http.StatusUnauthorized, api.call(http.MethodGet, "/v1/associations", "", nil, &problem))
	assert.Equal(t, "UNAUTHENTICATED", problem.Code)

	assert.Equal(t, http.StatusUnauthorized, api.call(http.MethodGet, "/v1/me", "not-a-token", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, api.call(http.MethodPost, "/v1/auth/login", "",
		map[string]string{"email": adminEmail, "password": "wrong password"}, nil))

	token := api.login(adminEmail, adminPassword)
	var me struct {
		Email      string `json:"email"`
		SuperAdmin bool   `json:"super_admin"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/me", token, nil, &me))
	assert.Equal(t, adminEmail, me.Email)
	assert.True(t, me.SuperAdmin)
}

func TestRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/v1/associations", strings.NewReader(`{"name":`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, api.send(req, token, nil))

	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/v1/associations", token,
		map[string]any{"name": "VvE", "unexpected": true}, nil))
	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/v1/associations", token,
		map[string]any{"name": "VvE", "monthly_fee": "lots"}, nil))
}

func TestImportAndReconcileStatement(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)
	assocID, memberID := api.setupAssociation(token)
	base := "/v1/associations/" + assocID

	statement := "date,amount,currency,description,counterparty_name,counterparty_iban,id\n" +
		"2026-03-02,300.00,EUR,jan t/m mrt 2026,J Jansen," + memberIBAN + ",A1\n" +
		"2026-03-03,abc,EUR,broken,,,A2\n"
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "maart.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(statement))
	require.NoError(t, err)
	require.NoError(t, form.Close())
	req, err := http.NewRequest(http.MethodPost, api.server.URL+base+"/imports?profile=generic", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())

	var result struct {
		Total    int `json:"total"`
		Imported int `json:"imported"`
		Failed   []struct {
			Line int `json:"line"`
		} `json:"failed"`
	}
	require.Equal(t, http.StatusCreated, api.send(req, token, &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 3, result.Failed[0].Line)

	var imports struct {
		Imports []struct {
			Filename string `json:"filename"`
		} `json:"imports"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, base+"/imports", token, nil, &imports))
	require.Len(t, imports.Imports, 1)
	assert.Equal(t, "maart.csv", imports.Imports[0].Filename)

	var report struct {
		Matched     int `json:"matched"`
		Allocations int `json:"allocations"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, base+"/reconcile", token, nil, &report))
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 3, report.Allocations)

	var txs struct {
		Transactions []struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			MemberID string `json:"member_id"`
		} `json:"transactions"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, base+"/transactions?status=matched", token, nil, &txs))
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, memberID, txs.Transactions[0].MemberID)

	var outstanding struct {
		Total string `json:"total"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, base+"/members/"+memberID+"/outstanding", token, nil, &outstanding))
	assert.Equal(t, "0.00", outstanding.Total)

	var trial struct {
		TotalDebit  string `json:"total_debit"`
		TotalCredit string `json:"total_credit"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, base+"/reports/trial-balance", token, nil, &trial))
	assert.Equal(t, trial.TotalDebit, trial.TotalCredit)

	// Undo returns the payment to the unmatched queue.
	var undone struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, base+"/transactions/"+txs.Transactions[0].ID+"/undo", token, nil, &undone))
	assert.Equal(t, "unmatched", undone.Status)
}

func TestProposalVoteAndTally(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)
	assocID, _ := api.setupAssociation(token)
	base := "/v1/associations/" + assocID + "/proposals"

	var proposal created
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, base, token, map[string]any{
		"title":          "Dakrenovatie",
		"method":         "per_unit",
		"quorum_percent": 50,
		"majority":       "simple",
		"closes_at":      time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}, &proposal))

	assert.Equal(t, http.StatusConflict, api.call(http.MethodPut, base+"/"+proposal.ID+"/vote", token,
		map[string]string{"choice": "yes"}, nil), "drafts do not accept votes")

	require.Equal(t, http.StatusOK, api.call(http.MethodPost, base+"/"+proposal.ID+"/open", token, nil, nil))
	require.Equal(t, http.StatusOK, api.call(http.MethodPut, base+"/"+proposal.ID+"/vote", token,
		map[string]string{"choice": "YES"}, nil))

	var tally struct {
		Yes           string `json:"yes"`
		QuorumReached bool   `json:"quorum_reached"`
		Passed        bool   `json:"passed"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, base+"/"+proposal.ID+"/tally", token, nil, &tally))
	assert.Equal(t, "1", tally.Yes)
	assert.True(t, tally.QuorumReached)
	assert.True(t, tally.Passed)

	var closed struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, base+"/"+proposal.ID+"/close", token, nil, &closed))
	assert.Equal(t, "closed", closed.Status)
}

func TestInviteAcceptFlow(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)
	assocID, _ := api.setupAssociation(token)

	var inv struct {
		Invite struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"invite"`
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/v1/associations/"+assocID+"/invites", token,
		map[string]string{"email": "piet@example.nl", "role": "board"}, &inv))
	require.NotEmpty(t, inv.Token)
	assert.Equal(t, "pending", inv.Invite.Status)

	var outbox struct {
		Messages []struct {
			To     string `json:"to"`
			Status string `json:"status"`
		} `json:"messages"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/admin/mail?status=pending", token, nil, &outbox))
	require.Len(t, outbox.Messages, 1)
	assert.Equal(t, "piet@example.nl", outbox.Messages[0].To)

	var preview struct {
		AssociationName string `json:"association_name"`
		HasAccount      bool   `json:"has_account"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/invites/"+inv.Token, "", nil, &preview))
	assert.Equal(t, "VvE Lindelaan", preview.AssociationName)
	assert.False(t, preview.HasAccount)

	var accepted struct {
		NewUser    bool `json:"new_user"`
		Membership struct {
			Role string `json:"role"`
		} `json:"membership"`
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/v1/invites/accept", "", map[string]string{
		"token":        inv.Token,
		"display_name": "Piet",
		"password":     "another long password",
	}, &accepted))
	assert.True(t, accepted.NewUser)
	assert.Equal(t, "board", accepted.Membership.Role)

	var assocs struct {
		Associations []struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"associations"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/associations", accepted.Session.AccessToken, nil, &assocs))
	require.Len(t, assocs.Associations, 1)
	assert.Equal(t, assocID, assocs.Associations[0].ID)

	assert.Equal(t, http.StatusForbidden, api.call(http.MethodGet, "/v1/admin/mail", accepted.Session.AccessToken, nil, nil))
	assert.NotEqual(t, http.StatusOK, api.call(http.MethodPost, "/v1/invites/accept", "", map[string]string{
		"token":        inv.Token,
		"display_name": "Piet",
		"password":     "another long password",
	}, nil), "tokens are single use")

	var unread struct {
		UnreadCount int `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/notifications/unread", token, nil, &unread))
	assert.Equal(t, 1, unread.UnreadCount)

	var inbox struct {
		Notifications []struct {
			ID    string `json:"id"`
			Topic string `json:"topic"`
		} `json:"notifications"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/notifications", token, nil, &inbox))
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, "invite.accepted", inbox.Notifications[0].Topic)
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/v1/notifications/"+inbox.Notifications[0].ID+"/read", token, nil, nil))
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/notifications/unread", token, nil, &unread))
	assert.Zero(t, unread.UnreadCount)

	var marked struct {
		Marked int `json:"marked"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/v1/notifications/read", token, nil, &marked))
	assert.Zero(t, marked.Marked)
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/v1/notifications?unread=true", token, nil, &inbox))
	assert.Empty(t, inbox.Notifications)
}
