package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
)

const notificationColumns = `id, recipient_user_id, association_id, topic, payload_json, dedupe_key, source,
    created_at, updated_at, read_at`

// PutNotification inserts one inbox item. A repeated recipient dedupe key
// fails with ErrConflict.
func (s *Store) PutNotification(ctx context.Context, n notifications.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification id is required")
	}
	if strings.TrimSpace(n.RecipientUserID) == "" {
		return fmt.Errorf("recipient user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, n.ID, strings.TrimSpace(n.RecipientUserID), n.AssociationID, n.Topic, n.PayloadJSON, strings.TrimSpace(n.DedupeKey),
		n.Source, toMillis(n.CreatedAt), toMillis(n.UpdatedAt), pointerMillis(n.ReadAt))
	return mapWriteError(err, "put notification")
}

// GetNotificationByRecipientAndDedupeKey loads one recipient notification by
// dedupe key. An empty key never matches.
func (s *Store) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (notifications.Notification, error) {
	if err := s.ready(ctx); err != nil {
		return notifications.Notification{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if recipientUserID == "" {
		return notifications.Notification{}, fmt.Errorf("recipient user id is required")
	}
	if dedupeKey == "" {
		return notifications.Notification{}, apperrors.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+notificationColumns+` FROM notifications
WHERE recipient_user_id = ? AND dedupe_key = ?
`, recipientUserID, dedupeKey)
	n, err := scanNotification(row.Scan)
	if err != nil {
		return notifications.Notification{}, mapReadError(err, "get notification by dedupe key")
	}
	return n, nil
}

// ListNotifications lists one recipient inbox newest first with cursor
// pagination. An unknown cursor yields an empty page.
func (s *Store) ListNotifications(ctx context.Context, query notifications.InboxQuery) (notifications.NotificationPage, error) {
	if err := s.ready(ctx); err != nil {
		return notifications.NotificationPage{}, err
	}
	where, args, err := inboxFilter(query.RecipientUserID, query.AssociationID)
	if err != nil {
		return notifications.NotificationPage{}, err
	}
	if query.PageSize <= 0 {
		return notifications.NotificationPage{}, fmt.Errorf("page size must be greater than zero")
	}
	if query.UnreadOnly {
		where += " AND read_at IS NULL"
	}

	if token := strings.TrimSpace(query.PageToken); token != "" {
		var cursorMillis int64
		err := s.sqlDB.QueryRowContext(ctx, `SELECT created_at FROM notifications WHERE recipient_user_id = ? AND id = ?`,
			args[0], token).Scan(&cursorMillis)
		if errors.Is(err, sql.ErrNoRows) {
			return notifications.NotificationPage{}, nil
		}
		if err != nil {
			return notifications.NotificationPage{}, fmt.Errorf("lookup notification cursor: %w", err)
		}
		where += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, cursorMillis, cursorMillis, token)
	}

	args = append(args, query.PageSize+1)
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+` FROM notifications
WHERE `+where+`
ORDER BY created_at DESC, id DESC
LIMIT ?
`, args...)
	if err != nil {
		return notifications.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	return collectNotificationPage(rows, query.PageSize)
}

// CountUnreadNotifications counts unread inbox items. An empty association
// counts across all of them.
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientUserID, associationID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	where, args, err := inboxFilter(recipientUserID, associationID)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM notifications WHERE `+where+` AND read_at IS NULL`, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAllNotificationsRead acknowledges every unread inbox item and returns
// how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientUserID, associationID string, readAt time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	where, args, err := inboxFilter(recipientUserID, associationID)
	if err != nil {
		return 0, err
	}
	now := toMillis(readAt)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications SET read_at = ?, updated_at = ?
WHERE `+where+` AND read_at IS NULL
`, append([]any{now, now}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(affected), nil
}

// inboxFilter scopes a query to one recipient and optionally one association.
func inboxFilter(recipientUserID, associationID string) (string, []any, error) {
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return "", nil, fmt.Errorf("recipient user id is required")
	}
	where := "recipient_user_id = ?"
	args := []any{recipientUserID}
	if associationID = strings.TrimSpace(associationID); associationID != "" {
		where += " AND association_id = ?"
		args = append(args, associationID)
	}
	return where, args, nil
}

// MarkNotificationRead acknowledges one inbox item. The first read time is
// kept when it was already read.
func (s *Store) MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (notifications.Notification, error) {
	if err := s.ready(ctx); err != nil {
		return notifications.Notification{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientUserID == "" {
		return notifications.Notification{}, fmt.Errorf("recipient user id is required")
	}
	if notificationID == "" {
		return notifications.Notification{}, fmt.Errorf("notification id is required")
	}
	now := toMillis(readAt)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET read_at = COALESCE(read_at, ?), updated_at = ?
WHERE recipient_user_id = ? AND id = ?
`, now, now, recipientUserID, notificationID)
	if err != nil {
		return notifications.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	if err := requireAffected(result, "mark notification read"); err != nil {
		return notifications.Notification{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE recipient_user_id = ? AND id = ?`,
		recipientUserID, notificationID)
	n, err := scanNotification(row.Scan)
	if err != nil {
		return notifications.Notification{}, mapReadError(err, "get notification")
	}
	return n, nil
}

func collectNotificationPage(rows *sql.Rows, pageSize int) (notifications.NotificationPage, error) {
	items, err := collect(rows, scanNotification, "notification")
	if err != nil {
		return notifications.NotificationPage{}, err
	}
	page := notifications.NotificationPage{}
	if len(items) > pageSize {
		page.NextPageToken = items[pageSize-1].ID
		items = items[:pageSize]
	}
	page.Notifications = items
	return page, nil
}

func scanNotification(scan func(dest ...any) error) (notifications.Notification, error) {
	var (
		n         notifications.Notification
		createdAt int64
		updatedAt int64
		readAt    sql.NullInt64
	)
	if err := scan(&n.ID, &n.RecipientUserID, &n.AssociationID, &n.Topic, &n.PayloadJSON, &n.DedupeKey, &n.Source,
		&createdAt, &updatedAt, &readAt); err != nil {
		return notifications.Notification{}, err
	}
	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)
	n.ReadAt = pointerFromNull(readAt)
	return n, nil
}
