// Package domain owns the in-app notification inbox and topic delivery.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
)

var (
	ErrNotFound = apperrors.ErrNotFound
	ErrConflict = apperrors.ErrConflict

	ErrStoreNotConfigured       = errors.New("notification store is not configured")
	ErrRecipientUserIDRequired  = apperrors.New(apperrors.CodeInvalid, "recipient user id is required")
	ErrTopicRequired            = apperrors.New(apperrors.CodeInvalid, "notification topic is required")
	ErrNotificationIDRequired   = apperrors.New(apperrors.CodeInvalid, "notification id is required")
	ErrIDGeneratorNotConfigured = errors.New("notification id generator is not configured")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Notification is one inbox item for one user. AssociationID is empty for
// items that do not belong to an association.
type Notification struct {
	ID              string
	RecipientUserID string
	AssociationID   string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReadAt          *time.Time
}

// Unread reports whether the item still needs attention.
func (n Notification) Unread() bool {
	return n.ReadAt == nil
}

// NotificationPage is one page of an inbox, newest first.
type NotificationPage struct {
	Notifications []Notification
	NextPageToken string
}

// CreateIntentInput asks for one inbox item.
type CreateIntentInput struct {
	RecipientUserID string
	AssociationID   string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	Source          string
}

// InboxQuery selects part of one recipient's inbox.
type InboxQuery struct {
	RecipientUserID string
	// AssociationID limits the query to one association; empty means all.
	AssociationID string
	UnreadOnly    bool
	PageSize      int
	PageToken     string
}

// UnreadStatus summarizes unread items.
type UnreadStatus struct {
	HasUnread   bool
	UnreadCount int
}

// Store persists inbox items.
type Store interface {
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (Notification, error)
	PutNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, query InboxQuery) (NotificationPage, error)
	CountUnreadNotifications(ctx context.Context, recipientUserID, associationID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientUserID, associationID string, readAt time.Time) (int, error)
}

// Service manages recipient inboxes.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService builds the inbox service.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID}
}

// CreateIntent stores one inbox item. A repeated dedupe key for the same
// recipient returns the item stored first, also when two writers race.
func (s *Service) CreateIntent(ctx context.Context, input CreateIntentInput) (Notification, error) {
	if err := s.ready(); err != nil {
		return Notification{}, err
	}
	if s.newID == nil {
		return Notification{}, ErrIDGeneratorNotConfigured
	}
	recipient, err := recipientID(input.RecipientUserID)
	if err != nil {
		return Notification{}, err
	}
	topic := NormalizeMessageType(input.Topic)
	if topic == "" {
		return Notification{}, ErrTopicRequired
	}
	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if existing, found, err := s.deduplicated(ctx, recipient, dedupeKey); err != nil || found {
		return existing, err
	}

	notificationID, err := s.newID()
	if err != nil {
		return Notification{}, err
	}
	now := s.clock().UTC()
	notification := Notification{
		ID:              notificationID,
		RecipientUserID: recipient,
		AssociationID:   strings.TrimSpace(input.AssociationID),
		Topic:           topic,
		PayloadJSON:     strings.TrimSpace(input.PayloadJSON),
		DedupeKey:       dedupeKey,
		Source:          strings.TrimSpace(input.Source),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.PutNotification(ctx, notification)
	if err == nil {
		return notification, nil
	}
	if dedupeKey == "" || !errors.Is(err, ErrConflict) {
		return Notification{}, err
	}
	// Another writer stored the same key between the lookup and the insert.
	existing, found, lookupErr := s.deduplicated(ctx, recipient, dedupeKey)
	switch {
	case lookupErr != nil:
		return Notification{}, lookupErr
	case !found:
		return Notification{}, err
	}
	return existing, nil
}

func (s *Service) deduplicated(ctx context.Context, recipient, dedupeKey string) (Notification, bool, error) {
	if dedupeKey == "" {
		return Notification{}, false, nil
	}
	existing, err := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipient, dedupeKey)
	switch {
	case err == nil:
		return existing, true, nil
	case errors.Is(err, ErrNotFound):
		return Notification{}, false, nil
	default:
		return Notification{}, false, err
	}
}

// ListInbox returns one page of the recipient's inbox, newest first.
func (s *Service) ListInbox(ctx context.Context, query InboxQuery) (NotificationPage, error) {
	if err := s.ready(); err != nil {
		return NotificationPage{}, err
	}
	recipient, err := recipientID(query.RecipientUserID)
	if err != nil {
		return NotificationPage{}, err
	}
	query.RecipientUserID = recipient
	query.AssociationID = strings.TrimSpace(query.AssociationID)
	query.PageToken = strings.TrimSpace(query.PageToken)
	switch {
	case query.PageSize <= 0:
		query.PageSize = defaultPageSize
	case query.PageSize > maxPageSize:
		query.PageSize = maxPageSize
	}
	return s.store.ListNotifications(ctx, query)
}

// UnreadStatus counts unread items, optionally within one association.
func (s *Service) UnreadStatus(ctx context.Context, recipientUserID, associationID string) (UnreadStatus, error) {
	if err := s.ready(); err != nil {
		return UnreadStatus{}, err
	}
	recipient, err := recipientID(recipientUserID)
	if err != nil {
		return UnreadStatus{}, err
	}
	count, err := s.store.CountUnreadNotifications(ctx, recipient, strings.TrimSpace(associationID))
	if err != nil {
		return UnreadStatus{}, err
	}
	return UnreadStatus{HasUnread: count > 0, UnreadCount: count}, nil
}

// MarkRead acknowledges one item. Reading it again keeps the first read time.
func (s *Service) MarkRead(ctx context.Context, recipientUserID, notificationID string) (Notification, error) {
	if err := s.ready(); err != nil {
		return Notification{}, err
	}
	recipient, err := recipientID(recipientUserID)
	if err != nil {
		return Notification{}, err
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	return s.store.MarkNotificationRead(ctx, recipient, notificationID, s.clock().UTC())
}

// MarkAllRead acknowledges every unread item, optionally within one
// association, and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, recipientUserID, associationID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	recipient, err := recipientID(recipientUserID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkAllNotificationsRead(ctx, recipient, strings.TrimSpace(associationID), s.clock().UTC())
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func recipientID(raw string) (string, error) {
	recipient := strings.TrimSpace(raw)
	if recipient == "" {
		return "", ErrRecipientUserIDRequired
	}
	return recipient, nil
}
