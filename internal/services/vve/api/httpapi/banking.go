package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

// importBody returns the uploaded statement, either a raw request body or
// the "file" part of a multipart form.
func importBody(w http.ResponseWriter, r *http.Request) (io.Reader, string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, filename, func() {}, nil
	}
	if err := r.ParseMultipartForm(maxImportBody); err != nil {
		return nil, "", nil, apperrors.Wrap(apperrors.CodeInvalid, "invalid multipart upload", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", nil, apperrors.New(apperrors.CodeInvalid, "multipart field \"file\" is required")
	}
	if filename == "" {
		filename = header.Filename
	}
	return file, filename, func() { _ = file.Close() }, nil
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, filename, done, err := importBody(w, r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	defer done()
	result, err := s.services.Banking.Import(r.Context(), httpx.PathValue(r, "assoc"), r.URL.Query().Get("profile"), filename, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = apperrors.New(apperrors.CodeInvalid, "statement file is too large")
		}
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toImportResultView(result))
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := s.services.Banking.ListImports(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]importView, 0, len(imports))
	for _, imp := range imports {
		views = append(views, importView{
			ID:         imp.ID,
			Filename:   imp.Filename,
			Profile:    imp.Profile,
			Total:      imp.Total,
			Imported:   imp.Imported,
			Duplicates: imp.Duplicates,
			Failed:     imp.Failed,
			CreatedBy:  imp.CreatedBy,
			CreatedAt:  imp.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"imports": views})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.services.Banking.ReconcilePending(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reportView{
		Matched:      report.Matched,
		Categorized:  report.Categorized,
		Unmatched:    report.Unmatched,
		Failed:       report.Failed,
		Allocations:  report.Allocations,
		Overpayments: amount(report.Overpayments),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter banking.TransactionFilter
	if raw := query.Get("status"); raw != "" {
		status, ok := banking.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, r, apperrors.Newf(apperrors.CodeInvalid, "unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	filter.MemberID = strings.TrimSpace(query.Get("member"))
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 200); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	txs, err := s.services.Banking.ListTransactions(r.Context(), httpx.PathValue(r, "assoc"), filter)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toTransactionView(tx))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	associationID := httpx.PathValue(r, "assoc")
	tx, err := s.services.Banking.GetTransaction(ctx, associationID, httpx.PathValue(r, "tx"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	allocations, err := s.services.Banking.Allocations(ctx, associationID, tx.ID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"transaction": toTransactionView(tx),
		"allocations": toAllocationViews(allocations),
	})
}

type assignRequest struct {
	MemberID string   `json:"member_id"`
	Periods  []string `json:"periods"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	periods, err := parsePeriods(req.Periods)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	applied, err := s.services.Banking.AssignToMember(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "tx"), req.MemberID, periods)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"transaction": toTransactionView(applied.Transaction),
		"allocations": toAllocationViews(applied.Allocations),
		"entry":       toEntryView(applied.Entry),
	})
}

type categorizeRequest struct {
	AccountCode string `json:"account_code"`
	Note        string `json:"note"`
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	tx, err := s.services.Banking.Categorize(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "tx"), req.AccountCode, req.Note)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTransactionView(tx))
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	tx, err := s.services.Banking.Ignore(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "tx"), req.Note)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTransactionView(tx))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	tx, err := s.services.Banking.Undo(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "tx"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTransactionView(tx))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.services.Banking.ListRules(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, toRuleView(rule))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": views})
}

type ruleRequest struct {
	Name             string   `json:"name"`
	Priority         int      `json:"priority"`
	Keywords         []string `json:"keywords"`
	Direction        string   `json:"direction"`
	CounterpartyIBAN string   `json:"counterparty_iban"`
	AccountCode      string   `json:"account_code"`
}

func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	saved, err := s.services.Banking.SaveRule(r.Context(), httpx.PathValue(r, "assoc"), banking.Rule{
		ID:               httpx.PathValue(r, "rule"),
		Name:             req.Name,
		Priority:         req.Priority,
		Keywords:         req.Keywords,
		Direction:        banking.Direction(strings.ToLower(strings.TrimSpace(req.Direction))),
		CounterpartyIBAN: req.CounterpartyIBAN,
		AccountCode:      req.AccountCode,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleView(saved))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Banking.DeleteRule(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "rule")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scriptBody struct {
	Script string `json:"script"`
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	script, err := s.services.Banking.Script(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, scriptBody{Script: script})
}

func (s *Server) handlePutScript(w http.ResponseWriter, r *http.Request) {
	var req scriptBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := s.services.Banking.SetScript(r.Context(), httpx.PathValue(r, "assoc"), req.Script); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}
