package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.generic.email_subject", defaultGenericEmailSubject)

	message.SetString(lang, "notification.role.member", "member")
	message.SetString(lang, "notification.role.board", "board member")
	message.SetString(lang, "notification.role.admin", "administrator")
	message.SetString(lang, "notification.outcome.accepted", "accepted")
	message.SetString(lang, "notification.outcome.rejected", "rejected")
	message.SetString(lang, "notification.outcome.no_quorum", "no quorum")

	message.SetString(lang, "notification.invite_accepted.title", "Invitation accepted")
	message.SetString(lang, "notification.invite_accepted.body", "%s accepted the invitation to %s.")

	message.SetString(lang, "notification.invite_email.title", "You are invited to %s")
	message.SetString(lang, "notification.invite_email.body", "%s invited you to join %s as %s.\n\nAccept the invitation here:\n%s\n\nThe link is valid until %s.")

	message.SetString(lang, "notification.proposal_opened.title", "New vote: %s")
	message.SetString(lang, "notification.proposal_opened.body", "Voting on \"%s\" is open until %s.")

	message.SetString(lang, "notification.proposal_closed.title", "Vote closed: %s")
	message.SetString(lang, "notification.proposal_closed.body", "Voting on \"%s\" has closed. Result: %s (turnout %s%%).")

	message.SetString(lang, "notification.dues_reminder.title", "Payment reminder")
	message.SetString(lang, "notification.dues_reminder.body", "You have an outstanding balance of €%.2f for %s at %s.")

	message.SetString(lang, "notification.payment_received.title", "Payment received")
	message.SetString(lang, "notification.payment_received.body", "We received your payment of €%.2f. Credit added: €%.2f.")

	message.SetString(lang, "notification.import_completed.title", "Bank import completed")
	message.SetString(lang, "notification.import_completed.body", "%s: %s new transactions, %s duplicates, %s rows skipped.")
}
