package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/render"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
)

// Event is a producer notification request before recipient resolution.
type Event struct {
	Topic         string
	AssociationID string
	// UserID is the recipient; empty means every board member of the
	// association.
	UserID    string
	DedupeKey string
	Payload   map[string]string
	Source    string
}

// Recipient is what delivery needs to know about a user.
type Recipient struct {
	UserID string
	Email  string
	Locale string
}

// Directory resolves users for delivery.
type Directory interface {
	Recipient(ctx context.Context, userID string) (Recipient, error)
	BoardUserIDs(ctx context.Context, associationID string) ([]string, error)
}

// Mailer queues outgoing email.
type Mailer interface {
	Enqueue(ctx context.Context, input mail.EnqueueInput) (mail.Message, error)
}

// Publisher fans created notifications out to live subscribers.
type Publisher interface {
	Publish(userID string, notification Notification)
}

// DispatchResult counts what one event produced.
type DispatchResult struct {
	Recipients int
	InApp      int
	Emails     int
}

// Dispatcher turns producer events into inbox items and emails according to
// the topic's delivery policy.
type Dispatcher struct {
	inbox     *Service
	directory Directory
	mailer    Mailer
	publisher Publisher
}

// NewDispatcher wires delivery. mailer and publisher may be nil.
func NewDispatcher(inbox *Service, directory Directory, mailer Mailer, publisher Publisher) *Dispatcher {
	return &Dispatcher{inbox: inbox, directory: directory, mailer: mailer, publisher: publisher}
}

// Dispatch delivers event to each recipient. A failing recipient does not
// stop delivery to the others; the joined errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.inbox == nil || d.directory == nil {
		return result, ErrStoreNotConfigured
	}
	topic := NormalizeMessageType(event.Topic)
	if topic == "" {
		return result, ErrTopicRequired
	}
	recipients, err := d.recipients(ctx, event)
	if err != nil {
		return result, err
	}
	payloadJSON, err := encodePayload(event.Payload)
	if err != nil {
		return result, err
	}
	policy := ResolveDeliveryPolicy(topic)
	dedupeKey := strings.TrimSpace(event.DedupeKey)

	var errs []error
	for _, userID := range recipients {
		result.Recipients++
		if policy.InApp {
			notification, err := d.inbox.CreateIntent(ctx, CreateIntentInput{
				RecipientUserID: userID,
				AssociationID:   event.AssociationID,
				Topic:           topic,
				PayloadJSON:     payloadJSON,
				DedupeKey:       dedupeKey,
				Source:          event.Source,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("create notification for %s: %w", userID, err))
				continue
			}
			result.InApp++
			if d.publisher != nil {
				d.publisher.Publish(userID, notification)
			}
		}
		if policy.Email && d.mailer != nil {
			sent, err := d.email(ctx, userID, topic, payloadJSON, dedupeKey)
			if err != nil {
				errs = append(errs, fmt.Errorf("email %s: %w", userID, err))
				continue
			}
			if sent {
				result.Emails++
			}
		}
	}
	if len(errs) > 0 {
		logging.FromContext(ctx).Warn().Err(errors.Join(errs...)).Str("topic", topic).Msg("notification delivery incomplete")
	}
	return result, errors.Join(errs...)
}

// Email renders topic in locale and queues it for to, bypassing the inbox.
func (d *Dispatcher) Email(ctx context.Context, to, locale, topic string, payload map[string]string, dedupeKey string) (mail.Message, error) {
	if d == nil || d.mailer == nil {
		return mail.Message{}, errors.New("mailer is not configured")
	}
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return mail.Message{}, err
	}
	out := render.Render(render.Printer(locale), render.Input{
		Topic:       topic,
		PayloadJSON: payloadJSON,
		Channel:     render.ChannelEmail,
	})
	return d.mailer.Enqueue(ctx, mail.EnqueueInput{
		To:        to,
		Subject:   out.EmailSubject,
		Body:      out.BodyText,
		DedupeKey: dedupeKey,
	})
}

func (d *Dispatcher) email(ctx context.Context, userID, topic, payloadJSON, dedupeKey string) (bool, error) {
	recipient, err := d.directory.Recipient(ctx, userID)
	if err != nil {
		return false, err
	}
	if recipient.Email == "" {
		return false, nil
	}
	out := render.Render(render.Printer(recipient.Locale), render.Input{
		Topic:       topic,
		PayloadJSON: payloadJSON,
		Channel:     render.ChannelEmail,
	})
	key := ""
	if dedupeKey != "" {
		key = "notification:" + userID + ":" + dedupeKey
	}
	if _, err := d.mailer.Enqueue(ctx, mail.EnqueueInput{
		To:        recipient.Email,
		Subject:   out.EmailSubject,
		Body:      out.BodyText,
		DedupeKey: key,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) recipients(ctx context.Context, event Event) ([]string, error) {
	if userID := strings.TrimSpace(event.UserID); userID != "" {
		return []string{userID}, nil
	}
	if strings.TrimSpace(event.AssociationID) == "" {
		return nil, ErrRecipientUserIDRequired
	}
	userIDs, err := d.directory.BoardUserIDs(ctx, event.AssociationID)
	if err != nil {
		return nil, fmt.Errorf("resolve board: %w", err)
	}
	return userIDs, nil
}

func encodePayload(payload map[string]string) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode notification payload: %w", err)
	}
	return string(raw), nil
}
