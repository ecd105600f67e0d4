package httpapi

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userView  `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	user, err := s.services.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	token, expiresAt, err := s.services.Tokens.Issue(user)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: toUserView(user)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.services.Accounts.GetUser(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserView(user))
}

type createAssociationRequest struct {
	Name                 string `json:"name"`
	Slug                 string `json:"slug"`
	IBAN                 string `json:"iban"`
	MonthlyFee           string `json:"monthly_fee"`
	FiscalYearStartMonth int    `json:"fiscal_year_start_month"`
	AdminUserID          string `json:"admin_user_id"`
}

type updateAssociationRequest struct {
	Name       *string `json:"name"`
	IBAN       *string `json:"iban"`
	MonthlyFee *string `json:"monthly_fee"`
}

type grantRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleListAssociations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.services.Associations.ListAssociationsForUser(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]associationView, 0, len(summaries))
	for _, summary := range summaries {
		view := toAssociationView(summary.Association)
		view.Role = string(summary.Role)
		views = append(views, view)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"associations": views})
}

func (s *Server) handleCreateAssociation(w http.ResponseWriter, r *http.Request) {
	var req createAssociationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	fee := decimal.Zero
	if req.MonthlyFee != "" {
		parsed, err := parseDecimal(req.MonthlyFee, "monthly_fee")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		fee = parsed
	}
	created, err := s.services.Associations.Create(r.Context(), association.CreateInput{
		Name:                 req.Name,
		Slug:                 req.Slug,
		IBAN:                 req.IBAN,
		MonthlyFee:           fee,
		FiscalYearStartMonth: req.FiscalYearStartMonth,
		AdminUserID:          req.AdminUserID,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAssociationView(created))
}

func (s *Server) handleGetAssociation(w http.ResponseWriter, r *http.Request) {
	assoc, err := s.services.Associations.Get(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAssociationView(assoc))
}

func (s *Server) handleUpdateAssociation(w http.ResponseWriter, r *http.Request) {
	var req updateAssociationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	fee, err := optionalDecimal(req.MonthlyFee, "monthly_fee")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	updated, err := s.services.Associations.Update(r.Context(), httpx.PathValue(r, "assoc"), association.UpdateInput{
		Name:       req.Name,
		IBAN:       req.IBAN,
		MonthlyFee: fee,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAssociationView(updated))
}

func (s *Server) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	memberships, err := s.services.Associations.ListMemberships(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]membershipView, 0, len(memberships))
	for _, m := range memberships {
		views = append(views, toMembershipView(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"memberships": views})
}

func (s *Server) handleGrantMembership(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	role, err := association.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	membership, err := s.services.Associations.Grant(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "user"), role)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMembershipView(membership))
}

func (s *Server) handleRevokeMembership(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Associations.Revoke(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "user")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
