package app

import (
	"context"
	"strings"
	"time"

	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/render"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

// Notification sources recorded on inbox items.
const (
	sourceBanking = "banking"
	sourceVoting  = "voting"
	sourceInvites = "invites"
)

// eventNotifier adapts one producer's event type to the dispatcher.
type eventNotifier[E any] struct {
	dispatcher *notifications.Dispatcher
	source     string
	toEvent    func(E) notifications.Event
}

func (n eventNotifier[E]) Notify(ctx context.Context, event E) error {
	if n.dispatcher == nil {
		return nil
	}
	converted := n.toEvent(event)
	converted.Source = n.source
	_, err := n.dispatcher.Dispatch(ctx, converted)
	return err
}

func newBankingNotifier(dispatcher *notifications.Dispatcher) banking.Notifier {
	return eventNotifier[banking.Event]{
		dispatcher: dispatcher,
		source:     sourceBanking,
		toEvent: func(e banking.Event) notifications.Event {
			return notifications.Event{Topic: e.Topic, AssociationID: e.AssociationID, UserID: e.UserID, DedupeKey: e.DedupeKey, Payload: e.Payload}
		},
	}
}

func newVotingNotifier(dispatcher *notifications.Dispatcher) voting.Notifier {
	return eventNotifier[voting.Event]{
		dispatcher: dispatcher,
		source:     sourceVoting,
		toEvent: func(e voting.Event) notifications.Event {
			return notifications.Event{Topic: e.Topic, AssociationID: e.AssociationID, UserID: e.UserID, DedupeKey: e.DedupeKey, Payload: e.Payload}
		},
	}
}

func newInviteNotifier(dispatcher *notifications.Dispatcher) invite.Notifier {
	return eventNotifier[invite.Event]{
		dispatcher: dispatcher,
		source:     sourceInvites,
		toEvent: func(e invite.Event) notifications.Event {
			return notifications.Event{Topic: e.Topic, AssociationID: e.AssociationID, UserID: e.UserID, DedupeKey: e.DedupeKey, Payload: e.Payload}
		},
	}
}

// inviteMailer renders invitations through the email templates and queues
// them in the outbox.
type inviteMailer struct {
	dispatcher *notifications.Dispatcher
	acceptURL  string
}

func (m inviteMailer) SendInvite(ctx context.Context, invitation invite.Invitation) error {
	inv := invitation.Invite
	inviter := strings.TrimSpace(invitation.InviterName)
	if inviter == "" {
		inviter = invitation.AssociationName
	}
	// A re-invite rotates the token, so the hash prefix keeps each send distinct.
	key := "invite:" + inv.ID
	if len(inv.TokenHash) >= 12 {
		key += ":" + inv.TokenHash[:12]
	}
	_, err := m.dispatcher.Email(ctx, inv.Email, inv.Locale, render.TopicInviteEmail, map[string]string{
		"inviter":     inviter,
		"association": invitation.AssociationName,
		"role":        string(inv.Role),
		"accept_url":  AcceptLink(m.acceptURL, invitation.Token),
		"expires_at":  inv.ExpiresAt.UTC().Format(time.DateOnly),
	}, key)
	return err
}

// AcceptLink appends the token to base, which may already carry a query.
func AcceptLink(base, token string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return token
	}
	if strings.HasSuffix(base, "=") {
		return base + token
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + "token=" + token
}

type boardLister interface {
	ListBoardUserIDs(ctx context.Context, associationID string) ([]string, error)
}

type userLookup interface {
	GetUser(ctx context.Context, userID string) (account.User, error)
}

// directory resolves notification recipients from accounts and memberships.
type directory struct {
	users userLookup
	board boardLister
}

func (d directory) Recipient(ctx context.Context, userID string) (notifications.Recipient, error) {
	user, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return notifications.Recipient{}, err
	}
	return notifications.Recipient{UserID: user.ID, Email: user.Email, Locale: user.Locale}, nil
}

func (d directory) BoardUserIDs(ctx context.Context, associationID string) ([]string, error) {
	return d.board.ListBoardUserIDs(ctx, associationID)
}
