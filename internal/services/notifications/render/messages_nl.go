package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Dutch

	message.SetString(lang, "notification.generic.title", "Melding")
	message.SetString(lang, "notification.generic.body", "Je hebt een nieuwe melding.")
	message.SetString(lang, "notification.generic.email_subject", "Melding van VvE Beheer")

	message.SetString(lang, "notification.role.member", "lid")
	message.SetString(lang, "notification.role.board", "bestuurslid")
	message.SetString(lang, "notification.role.admin", "beheerder")
	message.SetString(lang, "notification.outcome.accepted", "aangenomen")
	message.SetString(lang, "notification.outcome.rejected", "verworpen")
	message.SetString(lang, "notification.outcome.no_quorum", "geen quorum")

	message.SetString(lang, "notification.invite_accepted.title", "Uitnodiging geaccepteerd")
	message.SetString(lang, "notification.invite_accepted.body", "%s heeft de uitnodiging voor %s geaccepteerd.")

	message.SetString(lang, "notification.invite_email.title", "Uitnodiging voor %s")
	message.SetString(lang, "notification.invite_email.body", "%s nodigt je uit voor %s als %s.\n\nAccepteer de uitnodiging via:\n%s\n\nDe link is geldig tot %s.")

	message.SetString(lang, "notification.proposal_opened.title", "Nieuwe stemming: %s")
	message.SetString(lang, "notification.proposal_opened.body", "Stemmen over \"%s\" kan tot %s.")

	message.SetString(lang, "notification.proposal_closed.title", "Stemming gesloten: %s")
	message.SetString(lang, "notification.proposal_closed.body", "De stemming over \"%s\" is gesloten. Uitslag: %s (opkomst %s%%).")

	message.SetString(lang, "notification.dues_reminder.title", "Betalingsherinnering")
	message.SetString(lang, "notification.dues_reminder.body", "Je hebt een openstaand bedrag van €%.2f voor %s bij %s.")

	message.SetString(lang, "notification.payment_received.title", "Betaling ontvangen")
	message.SetString(lang, "notification.payment_received.body", "We hebben je betaling van €%.2f ontvangen. Bijgeschreven tegoed: €%.2f.")

	message.SetString(lang, "notification.import_completed.title", "Bankimport voltooid")
	message.SetString(lang, "notification.import_completed.body", "%s: %s nieuwe transacties, %s dubbel, %s regels overgeslagen.")
}
