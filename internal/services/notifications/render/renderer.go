package render

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	TopicInviteAccepted  = "invite.accepted"
	TopicInviteEmail     = "invite.email"
	TopicProposalOpened  = "proposal.opened"
	TopicProposalClosed  = "proposal.closed"
	TopicDuesReminder    = "dues.reminder"
	TopicPaymentReceived = "payment.received"
	TopicImportCompleted = "import.completed"

	defaultGenericTitle        = "Notification"
	defaultGenericBody         = "You have a new notification."
	defaultGenericEmailSubject = "VvE Beheer notification"
)

// Channel identifies where one notification artifact is rendered.
type Channel string

const (
	// ChannelInApp renders copy for the inbox.
	ChannelInApp Channel = "in_app"
	// ChannelEmail renders copy for email delivery.
	ChannelEmail Channel = "email"
)

// Input is one channel render request for a stored notification artifact.
type Input struct {
	Topic       string
	PayloadJSON string
	Channel     Channel
}

// Output is localized, channel-aware copy derived from one notification artifact.
type Output struct {
	Title        string
	BodyText     string
	EmailSubject string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

var supported = language.NewMatcher([]language.Tag{language.Dutch, language.English})

// Printer returns a localizer for locale, falling back to Dutch.
func Printer(locale string) *message.Printer {
	tag, _ := language.MatchStrings(supported, strings.TrimSpace(locale))
	base, _ := tag.Base()
	if base.String() == "en" {
		return message.NewPrinter(language.English)
	}
	return message.NewPrinter(language.Dutch)
}

type template struct {
	// titleArgs and bodyArgs name the payload fields passed to the copy, in order.
	titleArgs []string
	bodyArgs  []string
	// amounts are payload fields formatted as euro amounts.
	amounts []string
	// enums are payload fields whose value is itself a message key suffix.
	enums map[string]string
}

var templates = map[string]template{
	TopicInviteAccepted: {
		bodyArgs: []string{"email", "association"},
	},
	TopicInviteEmail: {
		titleArgs: []string{"association"},
		bodyArgs:  []string{"inviter", "association", "role", "accept_url", "expires_at"},
		enums:     map[string]string{"role": "notification.role."},
	},
	TopicProposalOpened: {
		titleArgs: []string{"title"},
		bodyArgs:  []string{"title", "closes_at"},
	},
	TopicProposalClosed: {
		titleArgs: []string{"title"},
		bodyArgs:  []string{"title", "outcome", "turnout"},
		enums:     map[string]string{"outcome": "notification.outcome."},
	},
	TopicDuesReminder: {
		bodyArgs: []string{"outstanding", "periods", "association"},
		amounts:  []string{"outstanding"},
	},
	TopicPaymentReceived: {
		bodyArgs: []string{"amount", "credited"},
		amounts:  []string{"amount", "credited"},
	},
	TopicImportCompleted: {
		bodyArgs: []string{"filename", "imported", "duplicates", "failed"},
	},
}

// Render returns localized copy for one notification artifact.
func Render(loc Localizer, input Input) Output {
	topic := normalizeToken(input.Topic)
	tmpl, ok := templates[topic]
	if !ok {
		return genericOutput(loc)
	}
	payload := map[string]string{}
	if raw := strings.TrimSpace(input.PayloadJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return genericOutput(loc)
		}
	}

	prefix := "notification." + strings.ReplaceAll(topic, ".", "_")
	titleKey := prefix + ".title"
	bodyKey := prefix + ".body"
	if input.Channel == ChannelEmail {
		bodyKey = prefix + ".email_body"
		if !has(loc, bodyKey) {
			bodyKey = prefix + ".body"
		}
	}
	if !has(loc, titleKey) || !has(loc, bodyKey) {
		return genericOutput(loc)
	}

	titleArgs := tmpl.args(loc, payload, tmpl.titleArgs)
	title := localize(loc, titleKey, titleArgs...)
	body := localize(loc, bodyKey, tmpl.args(loc, payload, tmpl.bodyArgs)...)
	subject := title
	if subjectKey := prefix + ".email_subject"; has(loc, subjectKey) {
		subject = localize(loc, subjectKey, titleArgs...)
	}
	return Output{
		Title:        title,
		BodyText:     body,
		EmailSubject: subject,
	}
}

func (t template) args(loc Localizer, payload map[string]string, names []string) []any {
	args := make([]any, 0, len(names))
	for _, name := range names {
		value := strings.TrimSpace(payload[name])
		switch {
		case contains(t.amounts, name):
			amount, err := decimal.NewFromString(value)
			if err != nil {
				amount = decimal.Zero
			}
			args = append(args, amount.InexactFloat64())
		case t.enums[name] != "":
			key := t.enums[name] + normalizeToken(value)
			args = append(args, localizeWithFallback(loc, key, value))
		default:
			args = append(args, value)
		}
	}
	return args
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func genericOutput(loc Localizer) Output {
	title := localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle)
	body := localizeWithFallback(loc, "notification.generic.body", defaultGenericBody)
	subject := localizeWithFallback(loc, "notification.generic.email_subject", defaultGenericEmailSubject)
	return Output{
		Title:        title,
		BodyText:     body,
		EmailSubject: subject,
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

// has reports whether the catalog knows key. Unknown keys print as themselves.
func has(loc Localizer, key string) bool {
	return localize(loc, key) != key
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
