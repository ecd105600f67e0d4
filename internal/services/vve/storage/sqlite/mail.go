package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
)

const messageColumns = `id, recipient, subject, body, dedupe_key, status, attempts, next_attempt_at, lease_owner,
    lease_expires_at, last_error, sent_at, created_at, updated_at`

// InsertMessage queues one email. A reused dedupe key fails with ErrConflict.
func (s *Store) InsertMessage(ctx context.Context, msg mail.Message) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO mail_messages (`+messageColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, msg.ID, msg.To, msg.Subject, msg.Body, msg.DedupeKey, msg.Status, msg.Attempts, toMillis(msg.NextAttemptAt),
		msg.LeaseOwner, optionalMillis(msg.LeaseExpiresAt), msg.LastError, optionalMillis(msg.SentAt),
		toMillis(msg.CreatedAt), toMillis(msg.UpdatedAt))
	return mapWriteError(err, "insert mail message")
}

// GetMessageByDedupeKey loads one queued email by dedupe key.
func (s *Store) GetMessageByDedupeKey(ctx context.Context, dedupeKey string) (mail.Message, error) {
	if err := s.ready(ctx); err != nil {
		return mail.Message{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM mail_messages WHERE dedupe_key = ?`, strings.TrimSpace(dedupeKey))
	msg, err := scanMessage(row.Scan)
	if err != nil {
		return mail.Message{}, mapReadError(err, "get mail message")
	}
	return msg, nil
}

// LeaseMessages claims due pending messages and sending messages whose
// lease expired, counting one attempt for each.
func (s *Store) LeaseMessages(ctx context.Context, owner string, limit int, now, leaseExpiresAt time.Time) ([]mail.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("lease owner is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	var leased []mail.Message
	err := s.inTx(ctx, "mail lease", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT id FROM mail_messages
WHERE (status = ? AND next_attempt_at <= ?)
   OR (status = ? AND lease_expires_at <= ?)
ORDER BY next_attempt_at, id
LIMIT ?
`, mail.StatusPending, toMillis(now), mail.StatusSending, toMillis(now), limit)
		if err != nil {
			return fmt.Errorf("select due mail: %w", err)
		}
		ids, err := collect(rows, func(scan func(dest ...any) error) (string, error) {
			var id string
			err := scan(&id)
			return id, err
		}, "mail id")
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
UPDATE mail_messages
SET status = ?, lease_owner = ?, lease_expires_at = ?, attempts = attempts + 1, updated_at = ?
WHERE id = ?
`, mail.StatusSending, owner, toMillis(leaseExpiresAt), toMillis(now), id); err != nil {
				return fmt.Errorf("lease mail: %w", err)
			}
			msg, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM mail_messages WHERE id = ?`, id).Scan)
			if err != nil {
				return fmt.Errorf("load leased mail: %w", err)
			}
			leased = append(leased, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// MarkMessageSent completes a leased message.
func (s *Store) MarkMessageSent(ctx context.Context, messageID, owner string, sentAt time.Time) error {
	return s.releaseMessage(ctx, messageID, owner, `status = ?, sent_at = ?, updated_at = ?`,
		mail.StatusSent, toMillis(sentAt), toMillis(sentAt))
}

// MarkMessageRetry returns a leased message to the queue.
func (s *Store) MarkMessageRetry(ctx context.Context, messageID, owner string, nextAttemptAt time.Time, lastError string) error {
	return s.releaseMessage(ctx, messageID, owner, `status = ?, next_attempt_at = ?, last_error = ?, updated_at = ?`,
		mail.StatusPending, toMillis(nextAttemptAt), lastError, toMillis(time.Now()))
}

// MarkMessageDead gives up on a leased message.
func (s *Store) MarkMessageDead(ctx context.Context, messageID, owner, lastError string, at time.Time) error {
	return s.releaseMessage(ctx, messageID, owner, `status = ?, last_error = ?, updated_at = ?`,
		mail.StatusDead, lastError, toMillis(at))
}

// releaseMessage updates a message still leased by owner and clears the
// lease. A lost lease is a conflict.
func (s *Store) releaseMessage(ctx context.Context, messageID, owner, set string, args ...any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	args = append(args, strings.TrimSpace(messageID), strings.TrimSpace(owner))
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE mail_messages
SET `+set+`, lease_owner = '', lease_expires_at = NULL
WHERE id = ? AND lease_owner = ?
`, args...)
	if err != nil {
		return fmt.Errorf("update mail message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mail message rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ListMessages lists queued email newest first, optionally by status.
func (s *Store) ListMessages(ctx context.Context, status mail.Status, limit int) ([]mail.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	query := `SELECT ` + messageColumns + ` FROM mail_messages`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mail messages: %w", err)
	}
	return collect(rows, scanMessage, "mail message")
}

func scanMessage(scan func(dest ...any) error) (mail.Message, error) {
	var (
		msg            mail.Message
		status         string
		nextAttemptAt  int64
		leaseExpiresAt sql.NullInt64
		sentAt         sql.NullInt64
		createdAt      int64
		updatedAt      int64
	)
	if err := scan(&msg.ID, &msg.To, &msg.Subject, &msg.Body, &msg.DedupeKey, &status, &msg.Attempts, &nextAttemptAt,
		&msg.LeaseOwner, &leaseExpiresAt, &msg.LastError, &sentAt, &createdAt, &updatedAt); err != nil {
		return mail.Message{}, err
	}
	msg.Status = mail.Status(status)
	msg.NextAttemptAt = fromMillis(nextAttemptAt)
	msg.LeaseExpiresAt = timeFromNull(leaseExpiresAt)
	msg.SentAt = timeFromNull(sentAt)
	msg.CreatedAt = fromMillis(createdAt)
	msg.UpdatedAt = fromMillis(updatedAt)
	return msg, nil
}
