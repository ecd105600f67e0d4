package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/httpx"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	pageSize, err := queryInt(r, "page_size", 0)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	query := r.URL.Query()
	page, err := s.services.Inbox.ListInbox(r.Context(), notifications.InboxQuery{
		RecipientUserID: requestctx.UserIDFromContext(r.Context()),
		AssociationID:   query.Get("association"),
		UnreadOnly:      query.Get("unread") == "true",
		PageSize:        pageSize,
		PageToken:       strings.TrimSpace(query.Get("page_token")),
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	locale := requestctx.LocaleFromContext(r.Context()).String()
	views := make([]notificationView, 0, len(page.Notifications))
	for _, n := range page.Notifications {
		views = append(views, toNotificationView(n, locale))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"notifications":   views,
		"next_page_token": page.NextPageToken,
	})
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Inbox.UnreadStatus(r.Context(), requestctx.UserIDFromContext(r.Context()), r.URL.Query().Get("association"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"has_unread":   status.HasUnread,
		"unread_count": status.UnreadCount,
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.services.Inbox.MarkRead(r.Context(), requestctx.UserIDFromContext(r.Context()), httpx.PathValue(r, "notification"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toNotificationView(n, requestctx.LocaleFromContext(r.Context()).String()))
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := s.services.Inbox.MarkAllRead(r.Context(), requestctx.UserIDFromContext(r.Context()), r.URL.Query().Get("association"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

// streamFrame is one message pushed over the notification websocket.
type streamFrame struct {
	Type         string            `json:"type"`
	Notification *notificationView `json:"notification,omitempty"`
	UnreadCount  *int              `json:"unread_count,omitempty"`
}

// handleStream upgrades to a websocket that pushes new inbox items. Browsers
// cannot set headers on websocket requests, so the access token may also be
// passed as the access_token query parameter.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.services.Hub == nil {
		httpx.WriteError(w, r, apperrors.New(apperrors.CodeNotFound, "notification stream is disabled"))
		return
	}
	principal, ok := requestctx.PrincipalFromContext(r.Context())
	if !ok {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		if token == "" {
			httpx.WriteError(w, r, association.ErrUnauthenticated)
			return
		}
		verified, err := s.services.Tokens.Verify(token)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		principal = verified
	}
	locale := requestctx.LocaleFromContext(r.Context()).String()
	log := logging.FromContext(r.Context())
	server := websocket.Server{Handler: func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()
		s.stream(conn, principal.UserID, locale)
		log.Debug().Str("user_id", principal.UserID).Msg("notification stream closed")
	}}
	server.ServeHTTP(w, r)
}

func (s *Server) stream(conn *websocket.Conn, userID, locale string) {
	sub := s.services.Hub.Subscribe(userID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Clients never send data; a read returning means the peer went away.
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		cancel()
	}()

	if s.services.Inbox != nil {
		status, err := s.services.Inbox.UnreadStatus(ctx, userID, "")
		if err == nil {
			count := status.UnreadCount
			if websocket.JSON.Send(conn, streamFrame{Type: "unread", UnreadCount: &count}) != nil {
				return
			}
		}
	}

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			view := toNotificationView(n, locale)
			if err := websocket.JSON.Send(conn, streamFrame{Type: "notification", Notification: &view}); err != nil {
				return
			}
		case <-ticker.C:
			if err := websocket.JSON.Send(conn, streamFrame{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleListMail(w http.ResponseWriter, r *http.Request) {
	if _, err := association.RequireSuperAdmin(r.Context()); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	messages, err := s.services.Outbox.List(r.Context(), mail.Status(strings.TrimSpace(r.URL.Query().Get("status"))), limit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	views := make([]mailView, 0, len(messages))
	for _, m := range messages {
		views = append(views, toMailView(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": views})
}
