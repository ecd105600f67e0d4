package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
)

func TestDispatchToBoardCreatesInAppOnly(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("n-1", "n-2"))
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	dispatcher := NewDispatcher(svc, fakeDirectory{board: []string{"user-1", "user-2"}}, mailer, publisher)

	result, err := dispatcher.Dispatch(context.Background(), Event{
		Topic:         MessageTypeImportCompleted,
		AssociationID: "vve-1",
		DedupeKey:     "import:imp-1",
		Payload:       map[string]string{"filename": "ing.csv", "imported": "12"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Recipients != 2 || result.InApp != 2 || result.Emails != 0 {
		t.Fatalf("result = %+v, want 2 recipients in-app only", result)
	}
	if got := publisher.userIDs(); strings.Join(got, ",") != "user-1,user-2" {
		t.Fatalf("published to %v, want both board members", got)
	}
	if len(mailer.inputs) != 0 {
		t.Fatalf("emails = %d, want 0", len(mailer.inputs))
	}
	stored := store.notifications["n-1"]
	if stored.AssociationID != "vve-1" || stored.PayloadJSON != `{"filename":"ing.csv","imported":"12"}` {
		t.Fatalf("stored notification = %+v", stored)
	}
}

func TestDispatchProposalEmailsInRecipientLocale(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("n-1"))
	mailer := &fakeMailer{}
	directory := fakeDirectory{recipients: map[string]Recipient{
		"user-1": {UserID: "user-1", Email: "anna@example.com", Locale: "en"},
	}}
	dispatcher := NewDispatcher(svc, directory, mailer, nil)

	result, err := dispatcher.Dispatch(context.Background(), Event{
		Topic:         MessageTypeProposalOpened,
		AssociationID: "vve-1",
		UserID:        "user-1",
		DedupeKey:     "proposal.opened:prop-1",
		Payload:       map[string]string{"title": "New roof", "closes_at": "2026-03-08"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.InApp != 1 || result.Emails != 1 {
		t.Fatalf("result = %+v, want one in-app and one email", result)
	}
	if len(mailer.inputs) != 1 {
		t.Fatalf("emails = %d, want 1", len(mailer.inputs))
	}
	email := mailer.inputs[0]
	if email.To != "anna@example.com" {
		t.Fatalf("to = %q", email.To)
	}
	if email.Subject != "New vote: New roof" {
		t.Fatalf("subject = %q, want English copy", email.Subject)
	}
	if email.DedupeKey != "notification:user-1:proposal.opened:prop-1" {
		t.Fatalf("dedupe key = %q", email.DedupeKey)
	}
}

func TestDispatchContinuesAfterRecipientFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("n-1", "n-2"))
	directory := fakeDirectory{
		board: []string{"user-1", "user-2"},
		recipients: map[string]Recipient{
			"user-2": {UserID: "user-2", Email: "bram@example.com", Locale: "nl"},
		},
	}
	mailer := &fakeMailer{}
	dispatcher := NewDispatcher(svc, directory, mailer, nil)

	result, err := dispatcher.Dispatch(context.Background(), Event{
		Topic:         MessageTypeDuesReminder,
		AssociationID: "vve-1",
		DedupeKey:     "dues.reminder:2026-02",
		Payload:       map[string]string{"outstanding": "100.00", "periods": "2026-02", "association": "VvE Zonnehof"},
	})
	if err == nil {
		t.Fatal("expected joined error for unknown recipient")
	}
	if result.InApp != 2 || result.Emails != 1 {
		t.Fatalf("result = %+v, want two in-app and one email", result)
	}
	if got := mailer.inputs[0].Subject; got != "Betalingsherinnering" {
		t.Fatalf("subject = %q, want Dutch copy", got)
	}
}

func TestDispatchValidates(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), nil, nil)
	dispatcher := NewDispatcher(svc, fakeDirectory{}, nil, nil)

	if _, err := dispatcher.Dispatch(context.Background(), Event{}); !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("err = %v, want ErrTopicRequired", err)
	}
	if _, err := dispatcher.Dispatch(context.Background(), Event{Topic: MessageTypeImportCompleted}); !errors.Is(err, ErrRecipientUserIDRequired) {
		t.Fatalf("err = %v, want ErrRecipientUserIDRequired", err)
	}
}

func TestEmailRendersAndQueues(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	dispatcher := NewDispatcher(NewService(newFakeStore(), nil, nil), fakeDirectory{}, mailer, nil)

	_, err := dispatcher.Email(context.Background(), "new@example.com", "nl", "invite.email", map[string]string{
		"inviter":     "Bram",
		"association": "VvE Zonnehof",
		"role":        "member",
		"accept_url":  "https://vve.example/invite/abc",
		"expires_at":  "8 maart 2026",
	}, "invite:inv-1")
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	if got := mailer.inputs[0].Subject; got != "Uitnodiging voor VvE Zonnehof" {
		t.Fatalf("subject = %q", got)
	}
	if !strings.Contains(mailer.inputs[0].Body, "als lid") {
		t.Fatalf("body = %q, want localized role", mailer.inputs[0].Body)
	}
}

type fakeDirectory struct {
	board      []string
	recipients map[string]Recipient
}

func (d fakeDirectory) Recipient(_ context.Context, userID string) (Recipient, error) {
	recipient, ok := d.recipients[userID]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return recipient, nil
}

func (d fakeDirectory) BoardUserIDs(context.Context, string) ([]string, error) {
	return d.board, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	inputs []mail.EnqueueInput
}

func (m *fakeMailer) Enqueue(_ context.Context, input mail.EnqueueInput) (mail.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	return mail.Message{To: input.To, Subject: input.Subject, Body: input.Body, DedupeKey: input.DedupeKey}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]Notification
}

func (p *fakePublisher) Publish(userID string, notification Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = map[string][]Notification{}
	}
	p.published[userID] = append(p.published[userID], notification)
}

func (p *fakePublisher) userIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.published))
	for userID := range p.published {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}
