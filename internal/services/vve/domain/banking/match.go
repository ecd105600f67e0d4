package banking

import (
	"regexp"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

// MatchMethod records how a transaction was linked to a member.
type MatchMethod string

const (
	MatchNone MatchMethod = ""
	MatchIBAN MatchMethod = "iban"
	MatchName MatchMethod = "name"
	MatchUnit MatchMethod = "unit"
)

var unitPattern = regexp.MustCompile(`\b(?:unit|appartement|app|huisnummer|nr|no)\b[.:\s]*([0-9]+\s?[a-z]?)\b`)

// MatchMember finds the member who made tx. It tries the counterparty IBAN,
// then the counterparty name, then a unit reference in the description.
// Only members active on the booking date are candidates and ambiguous
// matches yield nothing.
func MatchMember(tx Transaction, members []member.Member) (member.Member, MatchMethod, bool) {
	candidates := make([]member.Member, 0, len(members))
	for _, m := range members {
		if m.ActiveOn(tx.BookingDate) {
			candidates = append(candidates, m)
		}
	}

	if iban := NormalizeIBAN(tx.CounterpartyIBAN); iban != "" {
		if m, ok := unique(candidates, func(m member.Member) bool { return m.HasIBAN(iban) }); ok {
			return m, MatchIBAN, true
		}
	}

	if name := NormalizeName(tx.CounterpartyName); name != "" {
		if m, ok := unique(candidates, func(m member.Member) bool {
			memberName := NormalizeName(m.Name)
			return memberName != "" && (memberName == name || reverseWords(memberName) == name)
		}); ok {
			return m, MatchName, true
		}
	}

	for _, match := range unitPattern.FindAllStringSubmatch(NormalizeText(tx.Description), -1) {
		unit := normalizeUnit(match[1])
		if m, ok := unique(candidates, func(m member.Member) bool { return normalizeUnit(m.Unit) == unit }); ok {
			return m, MatchUnit, true
		}
	}
	return member.Member{}, MatchNone, false
}

func unique(members []member.Member, match func(member.Member) bool) (member.Member, bool) {
	var (
		found member.Member
		count int
	)
	for _, m := range members {
		if match(m) {
			found = m
			count++
		}
	}
	return found, count == 1
}

func reverseWords(s string) string {
	words := strings.Fields(s)
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return strings.Join(words, " ")
}

func normalizeUnit(unit string) string {
	return strings.ReplaceAll(NormalizeText(strings.TrimSpace(unit)), " ", "")
}
