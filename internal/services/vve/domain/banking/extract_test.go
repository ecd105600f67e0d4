package banking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

func day(year int, month time.Month, dom int) time.Time {
	return time.Date(year, month, dom, 0, 0, 0, 0, time.UTC)
}

func periods(raw ...string) []contribution.Period {
	out := make([]contribution.Period, 0, len(raw))
	for _, r := range raw {
		p, err := contribution.ParsePeriod(r)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

func TestExtractPeriods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		description string
		booked      time.Time
		want        []contribution.Period
		year        int
		annual      bool
	}{
		{name: "month and year", description: "Bijdrage januari 2024", booked: day(2024, 1, 5), want: periods("2024-01"), year: 2024},
		{name: "abbreviated range", description: "VvE bijdrage jan t/m mrt 2024", booked: day(2024, 1, 5), want: periods("2024-01", "2024-02", "2024-03"), year: 2024},
		{name: "dotted range", description: "januari t.m. maart 2026", booked: day(2026, 1, 2), want: periods("2026-01", "2026-02", "2026-03"), year: 2026},
		{name: "range over new year", description: "nov-jan", booked: day(2024, 1, 10), want: periods("2023-11", "2023-12", "2024-01")},
		{name: "range with years", description: "nov 2023 - jan 2024", booked: day(2024, 1, 10), want: periods("2023-11", "2023-12", "2024-01"), year: 2023},
		{name: "list", description: "januari, februari en maart", booked: day(2024, 2, 1), want: periods("2024-01", "2024-02", "2024-03")},
		{name: "list with shared year", description: "Servicekosten maart en april 2025", booked: day(2025, 3, 2), want: periods("2025-03", "2025-04"), year: 2025},
		{name: "two digit years", description: "dec 23 / jan 24", booked: day(2024, 1, 3), want: periods("2023-12", "2024-01"), year: 2023},
		{name: "numeric month year", description: "03-2024", booked: day(2024, 3, 1), want: periods("2024-03"), year: 2024},
		{name: "numeric year month", description: "bijdrage 2024-03", booked: day(2024, 3, 1), want: periods("2024-03"), year: 2024},
		{name: "numeric list", description: "03/2024 en 04/2024", booked: day(2024, 3, 1), want: periods("2024-03", "2024-04"), year: 2024},
		{name: "standalone year applies", description: "bijdrage 2024 mei", booked: day(2025, 1, 2), want: periods("2024-05"), year: 2024},
		{name: "glued quarter", description: "Q2 2024", booked: day(2024, 4, 1), want: periods("2024-04", "2024-05", "2024-06"), year: 2024},
		{name: "ordinal quarter", description: "2e kwartaal 2023", booked: day(2023, 4, 1), want: periods("2023-04", "2023-05", "2023-06"), year: 2023},
		{name: "quarter without year", description: "Huur 1e kwartaal", booked: day(2024, 2, 1), want: periods("2024-01", "2024-02", "2024-03")},
		{name: "month number", description: "maand 3", booked: day(2024, 5, 1), want: periods("2024-03")},
		{name: "prepayment crosses year", description: "januari", booked: day(2024, 12, 28), want: periods("2025-01")},
		{name: "tie prefers past", description: "augustus", booked: day(2024, 2, 15), want: periods("2023-08")},
		{name: "diacritics and case", description: "BIJDRAGE FÉBRUARI 2026", booked: day(2026, 2, 1), want: periods("2026-02"), year: 2026},
		{name: "loose word is a name", description: "Jan de Vries", booked: day(2024, 3, 1)},
		{name: "full date ignored", description: "factuur 15-03-2024", booked: day(2024, 3, 20)},
		{name: "nothing", description: "overboeking", booked: day(2024, 3, 20)},
		{name: "annual keyword", description: "jaarbijdrage 2024", booked: day(2024, 1, 5), year: 2024, annual: true},
		{name: "annual english", description: "annual fee 2025", booked: day(2025, 1, 5), year: 2025, annual: true},
		{name: "slash list okt mrt", description: "bijdrage okt/mrt 2024", booked: day(2024, 3, 1), want: periods("2024-03", "2024-10"), year: 2024},
		{name: "slash list sept mei", description: "bijdrage sept/mei 2024", booked: day(2024, 5, 1), want: periods("2024-05", "2024-09"), year: 2024},
		{name: "slash list without year", description: "oktober/maart", booked: day(2024, 1, 15), want: periods("2023-10", "2024-03")},
		{name: "list over new year", description: "bijdrage december en januari", booked: day(2025, 1, 10), want: periods("2024-12", "2025-01")},
		{name: "slash list over new year", description: "dec/jan", booked: day(2025, 1, 10), want: periods("2024-12", "2025-01")},
		{name: "range then list", description: "nov t/m dec en feb", booked: day(2025, 1, 10), want: periods("2024-11", "2024-12", "2025-02")},
		{name: "english full name", description: "bijdrage august", booked: day(2025, 8, 3), want: periods("2025-08")},
		{name: "english may", description: "contribution may", booked: day(2025, 5, 20), want: periods("2025-05")},
		{name: "english march", description: "march fee", booked: day(2025, 2, 20), want: periods("2025-03")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractPeriods(tc.description, tc.booked)
			if diff := cmp.Diff(tc.want, got.Periods, equalPeriods); diff != "" {
				t.Fatalf("periods (-want +got):\n%s", diff)
			}
			if got.Year != tc.year {
				t.Fatalf("year = %d, want %d", got.Year, tc.year)
			}
			if got.Annual != tc.annual {
				t.Fatalf("annual = %v, want %v", got.Annual, tc.annual)
			}
		})
	}
}

var equalPeriods = cmp.Comparer(func(a, b []contribution.Period) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
})

func TestTokenizeCollapsesTotMet(t *testing.T) {
	t.Parallel()

	var texts []string
	for _, tok := range tokenize("jan t/m mrt") {
		texts = append(texts, tok.text)
	}
	if diff := cmp.Diff([]string{"jan", "tm", "mrt"}, texts); diff != "" {
		t.Fatalf("tokens (-want +got):\n%s", diff)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Dhr. J. de Vries":    "j de vries",
		"MEVR A.  BAKKER":     "a bakker",
		"Fam. Özdemir-Jansen": "ozdemir jansen",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
