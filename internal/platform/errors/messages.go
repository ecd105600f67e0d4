package errors

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported locales for user-facing error copy.
var (
	LocaleEnglish = language.English
	LocaleDutch   = language.Dutch
)

var localeMatcher = language.NewMatcher([]language.Tag{LocaleEnglish, LocaleDutch})

var userMessages = map[Code][2]string{
	CodeUnknown:               {"Something went wrong.", "Er is iets misgegaan."},
	CodeUnauthenticated:       {"Please sign in.", "Log in om verder te gaan."},
	CodeInvalidCredentials:    {"Email or password is incorrect.", "E-mailadres of wachtwoord is onjuist."},
	CodeTokenExpired:          {"Your session has expired.", "Je sessie is verlopen."},
	CodePermissionDenied:      {"You do not have access to this association.", "Je hebt geen toegang tot deze VvE."},
	CodeWeakPassword:          {"Password must be at least 10 characters.", "Wachtwoord moet minstens 10 tekens hebben."},
	CodeInvalidEmail:          {"Email address is invalid.", "E-mailadres is ongeldig."},
	CodeInvalidIBAN:           {"IBAN is invalid.", "IBAN is ongeldig."},
	CodeIBANTaken:             {"IBAN already belongs to another member.", "IBAN hoort al bij een ander lid."},
	CodeMemberUnitTaken:       {"Unit already has an active member.", "Dit appartement heeft al een actief lid."},
	CodeLedgerUnbalanced:      {"Journal entry does not balance.", "Journaalpost is niet in balans."},
	CodeProposalNotOpen:       {"Voting is not open.", "Stemmen is niet geopend."},
	CodeInviteExpired:         {"This invitation has expired.", "Deze uitnodiging is verlopen."},
	CodeInviteUsed:            {"This invitation was already used.", "Deze uitnodiging is al gebruikt."},
	CodeInviteRevoked:         {"This invitation was revoked.", "Deze uitnodiging is ingetrokken."},
	CodeNotFound:              {"Not found.", "Niet gevonden."},
	CodeTransactionState:      {"Transaction cannot be changed in its current state.", "Transactie kan in de huidige status niet worden gewijzigd."},
	CodeImportProfileUnknown:  {"Unknown import profile.", "Onbekend importprofiel."},
	CodeCategorizationInvalid: {"Unknown ledger account.", "Onbekende grootboekrekening."},
}

func init() {
	for code, texts := range userMessages {
		key := messageKey(code)
		_ = message.SetString(LocaleEnglish, key, texts[0])
		_ = message.SetString(LocaleDutch, key, texts[1])
	}
}

func messageKey(code Code) string {
	return "error." + string(code)
}

// ResolveLocale picks the supported locale closest to an Accept-Language value.
func ResolveLocale(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return LocaleEnglish
	}
	_, index, _ := localeMatcher.Match(tags...)
	if index == 1 {
		return LocaleDutch
	}
	return LocaleEnglish
}

// UserMessage returns the localized user-facing message for code.
func UserMessage(tag language.Tag, code Code) string {
	if _, ok := userMessages[code]; !ok {
		code = CodeUnknown
	}
	return message.NewPrinter(tag).Sprintf(messageKey(code))
}
