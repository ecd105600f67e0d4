package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
)

func TestEnqueueIsIdempotentByDedupeKey(t *testing.T) {
	t.Parallel()
	outbox, store, _ := newOutbox(Config{})

	first, err := outbox.Enqueue(context.Background(), EnqueueInput{To: " Anna@Example.com ", Subject: "Welkom", Body: "Hallo", DedupeKey: "invite:1"})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", first.To)
	assert.Equal(t, StatusPending, first.Status)

	second, err := outbox.Enqueue(context.Background(), EnqueueInput{To: "anna@example.com", Subject: "Anders", Body: "Anders", DedupeKey: "invite:1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Welkom", second.Subject)
	assert.Len(t, store.messages, 1)

	third, err := outbox.Enqueue(context.Background(), EnqueueInput{To: "anna@example.com", Subject: "Los"})
	require.NoError(t, err)
	assert.Equal(t, "message:"+third.ID, third.DedupeKey)
}

func TestEnqueueValidates(t *testing.T) {
	t.Parallel()
	outbox, _, _ := newOutbox(Config{})

	tests := []struct {
		name  string
		input EnqueueInput
		code  apperrors.Code
	}{
		{name: "bad address", input: EnqueueInput{To: "not-an-address", Subject: "x"}, code: apperrors.CodeInvalidEmail},
		{name: "empty subject", input: EnqueueInput{To: "a@example.com", Subject: " "}, code: apperrors.CodeInvalid},
		{name: "header injection", input: EnqueueInput{To: "a@example.com", Subject: "x\r\nBcc: b@example.com"}, code: apperrors.CodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := outbox.Enqueue(context.Background(), tt.input)
			assert.True(t, apperrors.HasCode(err, tt.code), "err = %v", err)
		})
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 30 * time.Second},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: time.Minute},
		{attempt: 3, want: 2 * time.Minute},
		{attempt: 6, want: 10 * time.Minute},
		{attempt: 60, want: 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempt, 30*time.Second, 10*time.Minute), "attempt %d", tt.attempt)
	}
}

func TestDeliverSendsRetriesAndDies(t *testing.T) {
	t.Parallel()
	outbox, store, clock := newOutbox(Config{MaxAttempts: 2, RetryBackoff: time.Minute, RetryMaxDelay: time.Hour})
	ctx := context.Background()

	for _, to := range []string{"ok@example.com", "flaky@example.com", "gone@example.com"} {
		_, err := outbox.Enqueue(ctx, EnqueueInput{To: to, Subject: "Test", DedupeKey: to})
		require.NoError(t, err)
	}
	sender := &fakeSender{fail: map[string]error{
		"flaky@example.com": errors.New("connection reset"),
		"gone@example.com":  Permanent(errors.New("mailbox unavailable")),
	}}

	report, err := outbox.Deliver(ctx, sender, "worker-1", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 1, report.Dead)
	require.Len(t, report.Attempts, 3)

	flaky := store.byTo("flaky@example.com")
	assert.Equal(t, StatusPending, flaky.Status)
	assert.Equal(t, clock.Add(time.Minute), flaky.NextAttemptAt)
	assert.Equal(t, "connection reset", flaky.LastError)
	assert.Equal(t, StatusDead, store.byTo("gone@example.com").Status)
	assert.Equal(t, StatusSent, store.byTo("ok@example.com").Status)

	// Not due yet.
	report, err = outbox.Deliver(ctx, sender, "worker-1", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, report.Attempts)

	store.setNow(clock.Add(2 * time.Minute))
	report, err = outbox.Deliver(ctx, sender, "worker-1", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dead, "second failure exhausts attempts")
	assert.Equal(t, 2, store.byTo("flaky@example.com").Attempts)
}

func TestDeliverReclaimsExpiredLease(t *testing.T) {
	t.Parallel()
	outbox, store, clock := newOutbox(Config{})
	ctx := context.Background()
	_, err := outbox.Enqueue(ctx, EnqueueInput{To: "a@example.com", Subject: "Test"})
	require.NoError(t, err)

	leased, err := outbox.Lease(ctx, "worker-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	again, err := outbox.Lease(ctx, "worker-2", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "lease still held")

	store.setNow(clock.Add(2 * time.Minute))
	report, err := outbox.Deliver(ctx, &fakeSender{}, "worker-2", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	t.Parallel()
	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "VvE Beheer <noreply@example.com>"})
	require.NoError(t, err)
	sender.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	sender.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		return nil
	}

	err = sender.Send(context.Background(), Message{ID: "msg-1", To: "anna@example.com", Subject: "Uitnodiging für VvE", Body: "Hallo Anna,\nwelkom."})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"anna@example.com"}, gotTo)

	raw := string(gotBody)
	assert.Contains(t, raw, "Subject: =?utf-8?q?Uitnodiging_f=C3=BCr_VvE?=\r\n")
	assert.Contains(t, raw, "Message-ID: <msg-1@smtp.example.com>\r\n")
	assert.Contains(t, raw, "Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nHallo Anna,\r\nwelkom."), "body = %q", raw)
}

func TestSMTPSenderClassifiesReplies(t *testing.T) {
	t.Parallel()
	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@example.com"})
	require.NoError(t, err)

	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return &textproto.Error{Code: 550, Msg: "no such user"}
	}
	assert.True(t, IsPermanent(sender.Send(context.Background(), Message{ID: "1", To: "a@example.com", Subject: "x"})))

	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return &textproto.Error{Code: 421, Msg: "try later"}
	}
	err = sender.Send(context.Background(), Message{ID: "1", To: "a@example.com", Subject: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	_, err = NewSMTPSender(SMTPConfig{From: "noreply@example.com"})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sender := NewLogSender(zerolog.New(&buf))
	require.NoError(t, sender.Send(context.Background(), Message{ID: "msg-1", To: "a@example.com", Subject: "Hallo"}))
	assert.Contains(t, buf.String(), `"to":"a@example.com"`)
	assert.Contains(t, buf.String(), `"subject":"Hallo"`)
}

func newOutbox(cfg Config) (*Outbox, *fakeStore, time.Time) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: map[string]Message{}, now: now}
	var counter int
	newID := func() (string, error) {
		counter++
		return fmt.Sprintf("msg-%d", counter), nil
	}
	return NewOutbox(store, cfg, store.clock, newID), store, now
}

type fakeSender struct {
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	return s.fail[msg.To]
}

type fakeStore struct {
	mu       sync.Mutex
	messages map[string]Message
	now      time.Time
}

func (s *fakeStore) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeStore) setNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *fakeStore) byTo(to string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.To == to {
			return msg
		}
	}
	return Message{}
}

func (s *fakeStore) InsertMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.DedupeKey == msg.DedupeKey {
			return apperrors.ErrConflict
		}
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *fakeStore) GetMessageByDedupeKey(_ context.Context, dedupeKey string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.DedupeKey == dedupeKey {
			return msg, nil
		}
	}
	return Message{}, apperrors.ErrNotFound
}

func (s *fakeStore) LeaseMessages(_ context.Context, owner string, limit int, now, leaseExpiresAt time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.messages))
	for messageID := range s.messages {
		ids = append(ids, messageID)
	}
	sort.Strings(ids)
	var leased []Message
	for _, messageID := range ids {
		msg := s.messages[messageID]
		due := msg.Status == StatusPending && !msg.NextAttemptAt.After(now)
		expired := msg.Status == StatusSending && !msg.LeaseExpiresAt.After(now)
		if !due && !expired || len(leased) == limit {
			continue
		}
		msg.Status = StatusSending
		msg.LeaseOwner = owner
		msg.LeaseExpiresAt = leaseExpiresAt
		msg.Attempts++
		s.messages[messageID] = msg
		leased = append(leased, msg)
	}
	return leased, nil
}

func (s *fakeStore) update(messageID, owner string, apply func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.LeaseOwner != owner {
		return apperrors.ErrConflict
	}
	apply(&msg)
	msg.LeaseOwner = ""
	msg.LeaseExpiresAt = time.Time{}
	s.messages[messageID] = msg
	return nil
}

func (s *fakeStore) MarkMessageSent(_ context.Context, messageID, owner string, sentAt time.Time) error {
	return s.update(messageID, owner, func(msg *Message) {
		msg.Status = StatusSent
		msg.SentAt = sentAt
	})
}

func (s *fakeStore) MarkMessageRetry(_ context.Context, messageID, owner string, nextAttemptAt time.Time, lastError string) error {
	return s.update(messageID, owner, func(msg *Message) {
		msg.Status = StatusPending
		msg.NextAttemptAt = nextAttemptAt
		msg.LastError = lastError
	})
}

func (s *fakeStore) MarkMessageDead(_ context.Context, messageID, owner, lastError string, _ time.Time) error {
	return s.update(messageID, owner, func(msg *Message) {
		msg.Status = StatusDead
		msg.LastError = lastError
	})
}

func (s *fakeStore) ListMessages(_ context.Context, status Status, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, msg := range s.messages {
		if status == "" || msg.Status == status {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
