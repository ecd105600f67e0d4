// Package mail implements the durable email outbox and its senders.
package mail

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
)

// ErrStoreNotConfigured indicates the outbox is missing persistence wiring.
var ErrStoreNotConfigured = errors.New("mail store is not configured")

// Status is the delivery state of an outbox message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusDead    Status = "dead"
)

// Message is one queued email.
type Message struct {
	ID             string
	To             string
	Subject        string
	Body           string
	DedupeKey      string
	Status         Status
	Attempts       int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt time.Time
	LastError      string
	SentAt         time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the persistence boundary for the outbox.
type Store interface {
	// InsertMessage fails with ErrConflict when the dedupe key exists.
	InsertMessage(ctx context.Context, msg Message) error
	GetMessageByDedupeKey(ctx context.Context, dedupeKey string) (Message, error)
	// LeaseMessages claims up to limit pending messages due at now, plus
	// sending messages whose lease expired, and counts one attempt each.
	LeaseMessages(ctx context.Context, owner string, limit int, now, leaseExpiresAt time.Time) ([]Message, error)
	MarkMessageSent(ctx context.Context, messageID, owner string, sentAt time.Time) error
	MarkMessageRetry(ctx context.Context, messageID, owner string, nextAttemptAt time.Time, lastError string) error
	MarkMessageDead(ctx context.Context, messageID, owner, lastError string, at time.Time) error
	ListMessages(ctx context.Context, status Status, limit int) ([]Message, error)
}

// Sender delivers one message. Errors marked Permanent are not retried.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EnqueueInput describes a message to queue.
type EnqueueInput struct {
	To        string
	Subject   string
	Body      string
	DedupeKey string
}

// Config controls retry behavior.
type Config struct {
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 30 * time.Second
	defaultRetryMaxDelay = time.Hour
)

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	return c
}

// Outbox queues messages and tracks their delivery.
type Outbox struct {
	store Store
	cfg   Config
	clock func() time.Time
	newID func() (string, error)
}

// NewOutbox constructs the outbox.
func NewOutbox(store Store, cfg Config, clock func() time.Time, newID func() (string, error)) *Outbox {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Outbox{store: store, cfg: cfg.normalized(), clock: clock, newID: newID}
}

// Enqueue queues a message. A message with the same dedupe key is returned
// unchanged instead of queueing a second copy.
func (o *Outbox) Enqueue(ctx context.Context, input EnqueueInput) (Message, error) {
	if o == nil || o.store == nil {
		return Message{}, ErrStoreNotConfigured
	}
	to, err := account.ValidateEmail(input.To)
	if err != nil {
		return Message{}, err
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return Message{}, apperrors.New(apperrors.CodeInvalid, "subject is required")
	}
	if strings.ContainsAny(subject, "\r\n") {
		return Message{}, apperrors.New(apperrors.CodeInvalid, "subject must be a single line")
	}
	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := o.store.GetMessageByDedupeKey(ctx, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return Message{}, err
		}
	}

	messageID, err := o.newID()
	if err != nil {
		return Message{}, err
	}
	if dedupeKey == "" {
		dedupeKey = "message:" + messageID
	}
	now := o.clock().UTC()
	msg := Message{
		ID:            messageID,
		To:            to,
		Subject:       subject,
		Body:          input.Body,
		DedupeKey:     dedupeKey,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return o.store.GetMessageByDedupeKey(ctx, dedupeKey)
		}
		return Message{}, err
	}
	return msg, nil
}

// Lease claims due messages for owner until now plus ttl.
func (o *Outbox) Lease(ctx context.Context, owner string, limit int, ttl time.Duration) ([]Message, error) {
	if o == nil || o.store == nil {
		return nil, ErrStoreNotConfigured
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, apperrors.New(apperrors.CodeInvalid, "lease owner is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	now := o.clock().UTC()
	return o.store.LeaseMessages(ctx, owner, limit, now, now.Add(ttl))
}

// MarkSent records a successful delivery.
func (o *Outbox) MarkSent(ctx context.Context, msg Message) error {
	if o == nil || o.store == nil {
		return ErrStoreNotConfigured
	}
	return o.store.MarkMessageSent(ctx, msg.ID, msg.LeaseOwner, o.clock().UTC())
}

// MarkFailed schedules a retry with exponential backoff, or marks the
// message dead when the error is permanent or attempts are exhausted. It
// returns the resulting status.
func (o *Outbox) MarkFailed(ctx context.Context, msg Message, cause error) (Status, error) {
	if o == nil || o.store == nil {
		return "", ErrStoreNotConfigured
	}
	now := o.clock().UTC()
	lastError := "unknown error"
	if cause != nil {
		lastError = cause.Error()
	}
	if IsPermanent(cause) || msg.Attempts >= o.cfg.MaxAttempts {
		if err := o.store.MarkMessageDead(ctx, msg.ID, msg.LeaseOwner, lastError, now); err != nil {
			return "", err
		}
		return StatusDead, nil
	}
	next := now.Add(RetryDelay(msg.Attempts, o.cfg.RetryBackoff, o.cfg.RetryMaxDelay))
	if err := o.store.MarkMessageRetry(ctx, msg.ID, msg.LeaseOwner, next, lastError); err != nil {
		return "", err
	}
	return StatusPending, nil
}

// RetryDelay doubles base per earlier attempt, capped at maxDelay.
func RetryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Attempt is the outcome of one delivery try.
type Attempt struct {
	MessageID string
	DedupeKey string
	Outcome   Status
	Attempts  int
	Error     string
	At        time.Time
}

// DeliveryReport summarizes one Deliver pass.
type DeliveryReport struct {
	Sent     int
	Retried  int
	Dead     int
	Attempts []Attempt
}

// Deliver leases due messages and sends them one by one.
func (o *Outbox) Deliver(ctx context.Context, sender Sender, owner string, limit int, ttl time.Duration) (DeliveryReport, error) {
	var report DeliveryReport
	if sender == nil {
		return report, errors.New("mail sender is not configured")
	}
	messages, err := o.Lease(ctx, owner, limit, ttl)
	if err != nil {
		return report, err
	}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		attempt := Attempt{MessageID: msg.ID, DedupeKey: msg.DedupeKey, Attempts: msg.Attempts}
		sendErr := sender.Send(ctx, msg)
		if sendErr == nil {
			if err := o.MarkSent(ctx, msg); err != nil {
				return report, err
			}
			report.Sent++
			attempt.Outcome = StatusSent
		} else {
			status, err := o.MarkFailed(ctx, msg, sendErr)
			if err != nil {
				return report, err
			}
			if status == StatusDead {
				report.Dead++
			} else {
				report.Retried++
			}
			attempt.Outcome = status
			attempt.Error = sendErr.Error()
		}
		attempt.At = o.clock().UTC()
		report.Attempts = append(report.Attempts, attempt)
	}
	return report, nil
}

// List returns messages in status, newest first.
func (o *Outbox) List(ctx context.Context, status Status, limit int) ([]Message, error) {
	if o == nil || o.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return o.store.ListMessages(ctx, status, limit)
}
