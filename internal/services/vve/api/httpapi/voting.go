package httpapi

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

type createProposalRequest struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	Method        string `json:"method"`
	QuorumPercent int    `json:"quorum_percent"`
	Majority      string `json:"majority"`
	OpensAt       string `json:"opens_at"`
	ClosesAt      string `json:"closes_at"`
}

func parseInstant(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.Newf(apperrors.CodeInvalid, "%s must be an RFC 3339 timestamp", name)
	}
	return value.UTC(), nil
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.services.Voting.List(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, toProposalView(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	opensAt, err := parseInstant(req.OpensAt, "opens_at")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	closesAt, err := parseInstant(req.ClosesAt, "closes_at")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	created, err := s.services.Voting.Create(r.Context(), httpx.PathValue(r, "assoc"), voting.CreateInput{
		Title:         req.Title,
		Body:          req.Body,
		Method:        voting.Method(strings.TrimSpace(req.Method)),
		QuorumPercent: req.QuorumPercent,
		Majority:      voting.Majority(strings.TrimSpace(req.Majority)),
		OpensAt:       opensAt,
		ClosesAt:      closesAt,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toProposalView(created))
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.services.Voting.Get(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProposalView(p))
}

func (s *Server) handleOpenProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.services.Voting.Open(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProposalView(p))
}

func (s *Server) handleCloseProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.services.Voting.Close(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProposalView(p))
}

type voteRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	choice := voting.Choice(strings.ToLower(strings.TrimSpace(req.Choice)))
	votes, err := s.services.Voting.Cast(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"), choice)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]voteView, 0, len(votes))
	for _, vote := range votes {
		views = append(views, toVoteView(vote))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"votes": views})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := s.services.Voting.Votes(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]voteView, 0, len(votes))
	for _, v := range votes {
		views = append(views, toVoteView(v))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"votes": views})
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	tally, err := s.services.Voting.Tally(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "proposal"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTallyView(tally))
}
