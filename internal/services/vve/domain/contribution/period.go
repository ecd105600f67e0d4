package contribution

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
)

// Period is one calendar month.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ParsePeriod reads "YYYY-MM".
func ParsePeriod(raw string) (Period, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Period{}, apperrors.Newf(apperrors.CodeInvalidPeriod, "period %q must be YYYY-MM", raw)
	}
	y, yErr := strconv.Atoi(year)
	m, mErr := strconv.Atoi(month)
	p := Period{Year: y, Month: m}
	if yErr != nil || mErr != nil || !p.Valid() {
		return Period{}, apperrors.Newf(apperrors.CodeInvalidPeriod, "period %q must be YYYY-MM", raw)
	}
	return p, nil
}

// Valid reports whether p is a real month in a plausible year.
func (p Period) Valid() bool {
	return p.Year >= 1900 && p.Year <= 9999 && p.Month >= 1 && p.Month <= 12
}

// String renders p as "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Index is a monotonic month counter used for ordering and distance.
func (p Period) Index() int {
	return p.Year*12 + p.Month - 1
}

// Before reports whether p is earlier than other.
func (p Period) Before(other Period) bool {
	return p.Index() < other.Index()
}

// Add shifts p by n months.
func (p Period) Add(n int) Period {
	index := p.Index() + n
	return Period{Year: index / 12, Month: index%12 + 1}
}

// Start is the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// YearPeriods returns January through December of year.
func YearPeriods(year int) []Period {
	periods := make([]Period, 0, 12)
	for month := 1; month <= 12; month++ {
		periods = append(periods, Period{Year: year, Month: month})
	}
	return periods
}
