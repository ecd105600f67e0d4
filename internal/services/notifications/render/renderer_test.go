package render

import (
	"fmt"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func TestRenderPaymentReceivedInApp(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.payment_received.title": "Payment received",
		"notification.payment_received.body":  "We received your payment of €%.2f. Credit added: €%.2f.",
	}}

	out := Render(loc, Input{
		Topic:       TopicPaymentReceived,
		PayloadJSON: `{"amount":"250.5","credited":"50.00","strategy":"fifo"}`,
		Channel:     ChannelInApp,
	})

	if out.Title != "Payment received" {
		t.Fatalf("title = %q, want %q", out.Title, "Payment received")
	}
	if out.BodyText != "We received your payment of €250.50. Credit added: €50.00." {
		t.Fatalf("body = %q, want rendered payment body", out.BodyText)
	}
	if out.EmailSubject != out.Title {
		t.Fatalf("email subject = %q, want title fallback %q", out.EmailSubject, out.Title)
	}
}

func TestRenderProposalClosedLocalizesOutcome(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.outcome.accepted":      "aangenomen",
		"notification.proposal_closed.title": "Stemming gesloten: %s",
		"notification.proposal_closed.body":  "De stemming over \"%s\" is gesloten. Uitslag: %s (opkomst %s%%).",
	}}

	out := Render(loc, Input{
		Topic:       " Proposal.Closed ",
		PayloadJSON: `{"title":"Nieuw dak","outcome":"accepted","turnout":"75.00"}`,
		Channel:     ChannelInApp,
	})

	if out.Title != "Stemming gesloten: Nieuw dak" {
		t.Fatalf("title = %q", out.Title)
	}
	if out.BodyText != "De stemming over \"Nieuw dak\" is gesloten. Uitslag: aangenomen (opkomst 75.00%)." {
		t.Fatalf("body = %q", out.BodyText)
	}
}

func TestRenderUnknownEnumKeepsRawValue(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.proposal_closed.title": "Vote closed: %s",
		"notification.proposal_closed.body":  "%s: %s (%s%%)",
	}}

	out := Render(loc, Input{
		Topic:       TopicProposalClosed,
		PayloadJSON: `{"title":"Lift","outcome":"postponed","turnout":"10"}`,
	})

	if out.BodyText != "Lift: postponed (10%)" {
		t.Fatalf("body = %q", out.BodyText)
	}
}

func TestRenderEmailPrefersEmailBody(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.dues_reminder.title":         "Payment reminder",
		"notification.dues_reminder.body":          "Outstanding €%.2f for %s at %s.",
		"notification.dues_reminder.email_body":    "Dear owner,\nOutstanding €%.2f for %s at %s.",
		"notification.dues_reminder.email_subject": "Reminder",
	}}

	out := Render(loc, Input{
		Topic:       TopicDuesReminder,
		PayloadJSON: `{"outstanding":"120","periods":"2026-01, 2026-02","association":"VvE Zonnehof"}`,
		Channel:     ChannelEmail,
	})

	if out.BodyText != "Dear owner,\nOutstanding €120.00 for 2026-01, 2026-02 at VvE Zonnehof." {
		t.Fatalf("body = %q", out.BodyText)
	}
	if out.EmailSubject != "Reminder" {
		t.Fatalf("email subject = %q, want %q", out.EmailSubject, "Reminder")
	}
}

func TestRenderMalformedPayloadFallsBack(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.generic.title":          "Notification",
		"notification.generic.body":           "You have a new notification.",
		"notification.import_completed.title": "Bank import completed",
		"notification.import_completed.body":  "%s: %s new, %s duplicates, %s skipped.",
	}}

	out := Render(loc, Input{
		Topic:       TopicImportCompleted,
		PayloadJSON: `{"filename":`,
		Channel:     ChannelInApp,
	})

	if out.Title != "Notification" {
		t.Fatalf("title = %q, want %q", out.Title, "Notification")
	}
	if out.BodyText != "You have a new notification." {
		t.Fatalf("body = %q, want %q", out.BodyText, "You have a new notification.")
	}
}

func TestRenderWithNilLocalizerReturnsHumanReadableDefaults(t *testing.T) {
	t.Parallel()

	out := Render(nil, Input{
		Topic:       TopicInviteAccepted,
		PayloadJSON: `{"email":"anna@example.com"}`,
		Channel:     ChannelInApp,
	})

	if out.Title != "Notification" {
		t.Fatalf("title = %q, want %q", out.Title, "Notification")
	}
	if out.BodyText != "You have a new notification." {
		t.Fatalf("body = %q, want %q", out.BodyText, "You have a new notification.")
	}
	if out.EmailSubject != "VvE Beheer notification" {
		t.Fatalf("email subject = %q, want %q", out.EmailSubject, "VvE Beheer notification")
	}
}

func TestRenderUnknownTopicFallsBack(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.generic.title": "Melding",
		"notification.generic.body":  "Je hebt een nieuwe melding.",
	}}

	out := Render(loc, Input{
		Topic:       "unknown.topic",
		PayloadJSON: `{}`,
		Channel:     ChannelInApp,
	})

	if out.Title != "Melding" {
		t.Fatalf("title = %q, want %q", out.Title, "Melding")
	}
	if out.BodyText != "Je hebt een nieuwe melding." {
		t.Fatalf("body = %q, want %q", out.BodyText, "Je hebt een nieuwe melding.")
	}
}

func TestRenderWithRealPrinterUsesRegisteredCatalogs(t *testing.T) {
	t.Parallel()

	input := Input{
		Topic:       TopicInviteAccepted,
		PayloadJSON: `{"email":"anna@example.com","association":"VvE Zonnehof"}`,
		Channel:     ChannelInApp,
	}

	dutch := Render(Printer("nl-NL"), input)
	if dutch.Title != "Uitnodiging geaccepteerd" {
		t.Fatalf("nl title = %q", dutch.Title)
	}
	if dutch.BodyText != "anna@example.com heeft de uitnodiging voor VvE Zonnehof geaccepteerd." {
		t.Fatalf("nl body = %q", dutch.BodyText)
	}

	english := Render(message.NewPrinter(language.AmericanEnglish), input)
	if english.BodyText != "anna@example.com accepted the invitation to VvE Zonnehof." {
		t.Fatalf("en body = %q", english.BodyText)
	}
}

func TestRenderInviteEmailWithRealPrinter(t *testing.T) {
	t.Parallel()

	out := Render(Printer("en"), Input{
		Topic:       TopicInviteEmail,
		PayloadJSON: `{"inviter":"Bram","association":"VvE Zonnehof","role":"board","accept_url":"https://vve.example/invite/abc","expires_at":"2026-03-08"}`,
		Channel:     ChannelEmail,
	})

	if out.EmailSubject != "You are invited to VvE Zonnehof" {
		t.Fatalf("subject = %q", out.EmailSubject)
	}
	want := "Bram invited you to join VvE Zonnehof as board member.\n\nAccept the invitation here:\nhttps://vve.example/invite/abc\n\nThe link is valid until 2026-03-08."
	if out.BodyText != want {
		t.Fatalf("body = %q, want %q", out.BodyText, want)
	}
}

func TestPrinterFallsBackToDutch(t *testing.T) {
	t.Parallel()

	for _, locale := range []string{"", "fr", "nl", "nl-BE"} {
		out := Render(Printer(locale), Input{Topic: "unknown"})
		if out.Title != "Melding" {
			t.Fatalf("Printer(%q) title = %q, want Dutch fallback", locale, out.Title)
		}
	}
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	asString, ok := key.(string)
	if !ok {
		return ""
	}
	template := f.values[asString]
	if template == "" {
		return asString
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}
