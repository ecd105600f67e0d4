package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.services.Ledger.ListAccounts(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

type accountRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleSaveAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	saved, err := s.services.Ledger.SaveAccount(r.Context(), httpx.PathValue(r, "assoc"), ledger.Account{
		Code: httpx.PathValue(r, "code"),
		Name: req.Name,
		Type: ledger.AccountType(strings.ToLower(strings.TrimSpace(req.Type))),
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountView(saved))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Ledger.DeleteAccount(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "code")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	entries, err := s.services.Ledger.ListEntries(r.Context(), httpx.PathValue(r, "assoc"), from, to)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": views})
}

type lineRequest struct {
	AccountCode string `json:"account_code"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Memo        string `json:"memo"`
}

type postEntryRequest struct {
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Lines       []lineRequest `json:"lines"`
}

func parseAmountField(raw, name string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(raw, name)
}

func (s *Server) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	lines := make([]ledger.Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		debit, err := parseAmountField(line.Debit, "debit")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		credit, err := parseAmountField(line.Credit, "credit")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		lines = append(lines, ledger.Line{AccountCode: line.AccountCode, Debit: debit, Credit: credit, Memo: line.Memo})
	}
	entry, err := s.services.Ledger.Post(r.Context(), httpx.PathValue(r, "assoc"), ledger.PostInput{
		Date:        date,
		Description: req.Description,
		Lines:       lines,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toEntryView(entry))
}

type reverseRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (s *Server) handleReverseEntry(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	reason, err := ledger.ParseReversalReason(req.Reason)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	reversal, err := s.services.Ledger.Reverse(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "entry"), reason, req.Note)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toEntryView(reversal))
}

func (s *Server) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	report, err := s.services.Ledger.TrialBalance(r.Context(), httpx.PathValue(r, "assoc"), from, to)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"from":         dateString(report.From),
		"to":           dateString(report.To),
		"rows":         toBalanceRows(report.Rows),
		"total_debit":  amount(report.TotalDebit),
		"total_credit": amount(report.TotalCredit),
	})
}

func (s *Server) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	report, err := s.services.Ledger.IncomeStatement(r.Context(), httpx.PathValue(r, "assoc"), year)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"year":          report.Year,
		"income":        toBalanceRows(report.Income),
		"expenses":      toBalanceRows(report.Expenses),
		"total_income":  amount(report.TotalIncome),
		"total_expense": amount(report.TotalExpense),
		"result":        amount(report.Result),
	})
}
