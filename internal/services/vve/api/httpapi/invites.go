package httpapi

import (
	"net/http"
	"time"

	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
)

type createInviteRequest struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Locale string `json:"locale"`
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.services.Invites.List(r.Context(), httpx.PathValue(r, "assoc"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]inviteView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, toInviteView(inv))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"invites": views})
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	role := association.RoleMember
	if req.Role != "" {
		parsed, err := association.ParseRole(req.Role)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		role = parsed
	}
	created, err := s.services.Invites.Create(r.Context(), httpx.PathValue(r, "assoc"), invite.CreateInput{
		Email:  req.Email,
		Role:   role,
		Locale: req.Locale,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	// The token is only ever returned here; the store keeps its hash.
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"invite": toInviteView(created.Invite),
		"token":  created.Token,
	})
}

func (s *Server) handleRevokeInvite(w http.ResponseWriter, r *http.Request) {
	revoked, err := s.services.Invites.Revoke(r.Context(), httpx.PathValue(r, "assoc"), httpx.PathValue(r, "invite"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toInviteView(revoked))
}

type invitePreviewView struct {
	AssociationName string    `json:"association_name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Locale          string    `json:"locale"`
	ExpiresAt       time.Time `json:"expires_at"`
	HasAccount      bool      `json:"has_account"`
}

func (s *Server) handlePreviewInvite(w http.ResponseWriter, r *http.Request) {
	preview, err := s.services.Invites.Preview(r.Context(), httpx.PathValue(r, "token"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invitePreviewView{
		AssociationName: preview.AssociationName,
		Email:           preview.Invite.Email,
		Role:            string(preview.Invite.Role),
		Locale:          preview.Invite.Locale,
		ExpiresAt:       preview.Invite.ExpiresAt,
		HasAccount:      preview.HasAccount,
	})
}

type acceptInviteRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	accepted, err := s.services.Invites.Accept(r.Context(), invite.AcceptInput{
		Token:       req.Token,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	token, expiresAt, err := s.services.Tokens.Issue(accepted.User)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	linked := make([]memberView, 0, len(accepted.Linked))
	for _, m := range accepted.Linked {
		linked = append(linked, toMemberView(m))
	}
	status := http.StatusOK
	if accepted.NewUser {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, map[string]any{
		"invite":         toInviteView(accepted.Invite),
		"membership":     toMembershipView(accepted.Membership),
		"linked_members": linked,
		"new_user":       accepted.NewUser,
		"session":        tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: toUserView(accepted.User)},
	})
}
