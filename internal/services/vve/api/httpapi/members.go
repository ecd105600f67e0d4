package httpapi

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

type createMemberRequest struct {
	UserID             string   `json:"user_id"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone"`
	Unit               string   `json:"unit"`
	Share              string   `json:"share"`
	IBANs              []string `json:"ibans"`
	MonthlyFeeOverride *string  `json:"monthly_fee_override"`
	StartDate          string   `json:"start_date"`
}

type updateMemberRequest struct {
	Name               *string   `json:"name"`
	Email              *string   `json:"email"`
	Phone              *string   `json:"phone"`
	Unit               *string   `json:"unit"`
	Share              *string   `json:"share"`
	IBANs              *[]string `json:"ibans"`
	MonthlyFeeOverride *string   `json:"monthly_fee_override"`
	ClearFeeOverride   bool      `json:"clear_fee_override"`
}

type archiveRequest struct {
	EndDate string `json:"end_date"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("archived") == "true"
	members, err := s.services.Members.List(r.Context(), httpx.PathValue(r, "assoc"), includeArchived)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, toMemberView(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"members": views})
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	share := decimal.Zero
	if req.Share != "" {
		parsed, err := parseDecimal(req.Share, "share")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		share = parsed
	}
	override, err := optionalDecimal(req.MonthlyFeeOverride, "monthly_fee_override")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	created, err := s.services.Members.Create(r.Context(), httpx.PathValue(r, "assoc"), member.CreateInput{
		UserID:             req.UserID,
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Unit:               req.Unit,
		Share:              share,
		IBANs:              req.IBANs,
		MonthlyFeeOverride: override,
		StartDate:          start,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toMemberView(created))
}

func (s *Server) handleSelfMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.services.Members.Self(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMemberView(m))
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.services.Members.Get(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "member"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMemberView(m))
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req updateMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	share, err := optionalDecimal(req.Share, "share")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	override, err := optionalDecimal(req.MonthlyFeeOverride, "monthly_fee_override")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	updated, err := s.services.Members.Update(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "member"), member.UpdateInput{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Unit:               req.Unit,
		Share:              share,
		IBANs:              req.IBANs,
		MonthlyFeeOverride: override,
		ClearFeeOverride:   req.ClearFeeOverride,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMemberView(updated))
}

func (s *Server) handleArchiveMember(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	archived, err := s.services.Members.Archive(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "member"), end)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMemberView(archived))
}

type generateDuesRequest struct {
	Period string `json:"period"`
}

type generateDuesResponse struct {
	Period        string `json:"period"`
	Created       int    `json:"created"`
	Skipped       int    `json:"skipped"`
	CreditApplied string `json:"credit_applied"`
}

func (s *Server) handleGenerateDues(w http.ResponseWriter, r *http.Request) {
	var req generateDuesRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	period := contribution.PeriodOf(time.Now().UTC())
	if req.Period != "" {
		parsed, err := contribution.ParsePeriod(req.Period)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		period = parsed
	}
	result, err := s.services.Contributions.GenerateDues(r.Context(), httpx.PathValue(r, "assoc"), period)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, generateDuesResponse{
		Period:        result.Period.String(),
		Created:       result.Created,
		Skipped:       result.Skipped,
		CreditApplied: amount(result.CreditApplied),
	})
}

func (s *Server) handleListPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := contribution.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	items, err := s.services.Contributions.ListForPeriod(r.Context(), httpx.PathValue(r, "assoc"), period)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"contributions": toContributionViews(items)})
}

func (s *Server) handleListForMember(w http.ResponseWriter, r *http.Request) {
	items, err := s.services.Contributions.ListForMember(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "member"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"contributions": toContributionViews(items)})
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	associationID := httpx.PathValue(r, "assoc")
	memberID := httpx.PathValue(r, "member")
	items, err := s.services.Contributions.Outstanding(ctx, associationID, memberID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	credit, err := s.services.Contributions.Credit(ctx, associationID, memberID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	total := decimal.Zero
	for _, c := range items {
		total = total.Add(c.Outstanding())
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"contributions": toContributionViews(items),
		"total":         amount(total),
		"credit":        amount(credit.Balance),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	rows, err := s.services.Contributions.Summary(r.Context(), httpx.PathValue(r, "assoc"), year)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]summaryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, summaryView{
			MemberID:    row.MemberID,
			MemberName:  row.MemberName,
			Unit:        row.Unit,
			Due:         amount(row.Due),
			Paid:        amount(row.Paid),
			Outstanding: amount(row.Outstanding),
			Credit:      amount(row.Credit),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"year": year, "members": views})
}
