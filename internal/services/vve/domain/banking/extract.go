package banking

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
)

// PeriodHint is what a transaction description says about the months paid.
type PeriodHint struct {
	Periods []contribution.Period
	Annual  bool
	// Year is the explicit year in the description, 0 when none.
	Year int
}

type monthWord struct {
	month int
	// loose words only count as a month next to a year or another month.
	loose bool
}

var monthWords = map[string]monthWord{
	"januari": {1, false}, "january": {1, false}, "jan": {1, true},
	"februari": {2, false}, "february": {2, false}, "feb": {2, true}, "febr": {2, true},
	"maart": {3, false}, "march": {3, false}, "mrt": {3, true}, "mar": {3, true}, "maa": {3, true},
	"april": {4, false}, "apr": {4, true},
	"mei": {5, false}, "may": {5, false},
	"juni": {6, false}, "june": {6, false}, "jun": {6, true},
	"juli": {7, false}, "july": {7, false}, "jul": {7, true},
	"augustus": {8, false}, "august": {8, false}, "aug": {8, true},
	"september": {9, false}, "sep": {9, true}, "sept": {9, true},
	"oktober": {10, false}, "october": {10, false}, "okt": {10, true}, "oct": {10, true},
	"november": {11, false}, "nov": {11, true},
	"december": {12, false}, "dec": {12, true},
}

type connector int

const (
	connectorNone connector = iota
	connectorRange
	connectorList
)

type monthItem struct {
	month int
	// offset counts the year boundaries crossed inside a range.
	offset int
	// year is an explicit year written right after this month.
	year int
	// anchor starts a run of months whose year is resolved together: the
	// first month of a group and every month added by a list.
	anchor bool
}

type monthGroup struct {
	items []monthItem
	words int
	loose bool
}

func (g monthGroup) explicitYear() (int, int, bool) {
	for _, item := range g.items {
		if item.year != 0 {
			return item.year, item.offset, true
		}
	}
	return 0, 0, false
}

// ExtractPeriods reads month references out of a free-text description.
// Months without a year take the year that puts them closest to
// bookingDate.
func ExtractPeriods(description string, bookingDate time.Time) PeriodHint {
	p := extractor{tokens: tokenize(NormalizeText(description))}
	p.run()

	hint := PeriodHint{Annual: p.annual, Year: p.globalYear}
	if hint.Year == 0 {
		for _, group := range p.groups {
			if year, _, ok := group.explicitYear(); ok {
				hint.Year = year
				break
			}
		}
	}

	booking := contribution.PeriodOf(bookingDate)
	seen := map[contribution.Period]struct{}{}
	for _, group := range p.groups {
		base := p.globalYear
		if year, offset, ok := group.explicitYear(); ok {
			base = year - offset
		}
		anchorBase := 0
		for _, item := range group.items {
			year := base
			if base == 0 {
				// Without a year every listed month lands nearest the booking date;
				// months filled in by a range follow the month that opened it.
				if item.anchor || anchorBase == 0 {
					anchorBase = closestBaseYear(item, booking)
				}
				year = anchorBase
			}
			period := contribution.Period{Year: year + item.offset, Month: item.month}
			if item.year != 0 {
				period.Year = item.year
			}
			if _, dup := seen[period]; dup {
				continue
			}
			seen[period] = struct{}{}
			hint.Periods = append(hint.Periods, period)
		}
	}
	sort.Slice(hint.Periods, func(i, j int) bool { return hint.Periods[i].Before(hint.Periods[j]) })
	return hint
}

// closestBaseYear picks the year in booking year -1..+1 that puts month
// nearest the booking month. Ties prefer the past.
func closestBaseYear(first monthItem, booking contribution.Period) int {
	best, bestDistance := booking.Year, -1
	for _, candidate := range []int{booking.Year - 1, booking.Year, booking.Year + 1} {
		period := contribution.Period{Year: candidate + first.offset, Month: first.month}
		distance := period.Index() - booking.Index()
		if distance < 0 {
			distance = -distance
		}
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

type extractor struct {
	tokens     []token
	groups     []monthGroup
	annual     bool
	globalYear int
}

func (p *extractor) run() {
	for i := 0; i < len(p.tokens); {
		tok := p.tokens[i]
		switch tok.kind {
		case tokenWord:
			i = p.word(i)
		case tokenNumber:
			i = p.number(i)
		default:
			i++
		}
	}
}

func (p *extractor) word(i int) int {
	text := p.tokens[i].text
	switch {
	case isAnnualWord(text):
		p.annual = true
		return i + 1
	case text == "q":
		if n, ok := p.numberAt(i+1, 1, 4); ok && !p.tokens[i+1].spaced {
			return p.quarter(n, i+2)
		}
	case text == "kwartaal" || text == "quarter":
		if n, ok := p.numberAt(i+1, 1, 4); ok {
			return p.quarter(n, i+2)
		}
	case text == "maand" || text == "month":
		if n, ok := p.numberAt(i+1, 1, 12); ok {
			group := monthGroup{items: []monthItem{{month: n}}}
			next := p.yearAfter(&group.items[0], i+2, false)
			p.groups = append(p.groups, group)
			return next
		}
	}
	if _, ok := monthWords[text]; ok {
		group, next := p.monthGroup(i)
		if group.valid() {
			p.groups = append(p.groups, group)
			return next
		}
	}
	return i + 1
}

func (g monthGroup) valid() bool {
	if !g.loose || g.words > 1 {
		return true
	}
	_, _, hasYear := g.explicitYear()
	return hasYear
}

func (p *extractor) monthGroup(i int) (monthGroup, int) {
	first := monthWords[p.tokens[i].text]
	group := monthGroup{items: []monthItem{{month: first.month, anchor: true}}, words: 1, loose: first.loose}
	pos := p.yearAfter(&group.items[0], i+1, true)
	for {
		kind, width := p.connectorAt(pos)
		if kind == connectorNone {
			break
		}
		next, ok := p.monthAt(pos + width)
		if !ok {
			break
		}
		last := group.items[len(group.items)-1]
		switch kind {
		case connectorRange:
			month, offset := last.month, last.offset
			for month != next.month {
				month++
				if month > 12 {
					month = 1
					offset++
				}
				group.items = append(group.items, monthItem{month: month, offset: offset})
			}
		case connectorList:
			group.items = append(group.items, monthItem{month: next.month, offset: last.offset, anchor: true})
		}
		group.words++
		group.loose = group.loose && next.loose
		pos = p.yearAfter(&group.items[len(group.items)-1], pos+width+1, true)
	}
	return group, pos
}

// yearAfter reads an explicit year at pos into item and returns the
// position after it. Two-digit years are accepted after month names only.
func (p *extractor) yearAfter(item *monthItem, pos int, allowShort bool) int {
	at := pos
	if at < len(p.tokens) && p.tokens[at].kind == tokenSep {
		switch p.tokens[at].text {
		case ".", "'", "-", "/":
			at++
		default:
			return pos
		}
	}
	if at >= len(p.tokens) || p.tokens[at].kind != tokenNumber {
		return pos
	}
	if p.partOfDate(at) {
		return pos
	}
	text := p.tokens[at].text
	if year, ok := fullYear(text); ok {
		item.year = year
		return at + 1
	}
	if allowShort && len(text) == 2 {
		if _, followedByMonth := p.monthAt(at + 1); followedByMonth {
			return pos
		}
		n, _ := strconv.Atoi(text)
		item.year = 2000 + n
		return at + 1
	}
	return pos
}

func (p *extractor) connectorAt(pos int) (connector, int) {
	if pos < len(p.tokens) && p.tokens[pos].text == "." {
		if kind, width := p.connectorAt(pos + 1); kind != connectorNone {
			return kind, width + 1
		}
		return connectorNone, 0
	}
	if pos >= len(p.tokens) {
		return connectorNone, 0
	}
	switch p.tokens[pos].text {
	case "-", "tm", "to", "through", "thru", "until", "till":
		return connectorRange, 1
	case "tot":
		if pos+2 < len(p.tokens) && p.tokens[pos+1].text == "en" && p.tokens[pos+2].text == "met" {
			return connectorRange, 3
		}
		return connectorRange, 1
	case "/", ",", "&", "+", "en", "and":
		return connectorList, 1
	}
	return connectorNone, 0
}

func (p *extractor) monthAt(pos int) (monthWord, bool) {
	if pos >= len(p.tokens) || p.tokens[pos].kind != tokenWord {
		return monthWord{}, false
	}
	word, ok := monthWords[p.tokens[pos].text]
	return word, ok
}

func (p *extractor) quarter(n, pos int) int {
	group := monthGroup{words: 3}
	for m := (n-1)*3 + 1; m <= n*3; m++ {
		group.items = append(group.items, monthItem{month: m})
	}
	year := monthItem{}
	next := p.yearAfter(&year, pos, false)
	group.items[0].year = year.year
	p.groups = append(p.groups, group)
	return next
}

func (p *extractor) number(i int) int {
	if p.partOfDate(i) {
		return p.skipDate(i)
	}
	text := p.tokens[i].text
	// MM-YYYY and MM/YYYY
	if len(text) <= 2 && p.glued(i+1) && isPeriodSep(p.tokens[i+1].text) && p.glued(i+2) {
		month, _ := strconv.Atoi(text)
		if year, ok := fullYear(p.tokens[i+2].text); ok && month >= 1 && month <= 12 {
			p.groups = append(p.groups, monthGroup{items: []monthItem{{month: month, year: year}}, words: 1})
			return i + 3
		}
	}
	if year, ok := fullYear(text); ok {
		// YYYY-MM
		if p.glued(i+1) && isPeriodSep(p.tokens[i+1].text) && p.glued(i+2) && len(p.tokens[i+2].text) <= 2 {
			if month, err := strconv.Atoi(p.tokens[i+2].text); err == nil && month >= 1 && month <= 12 {
				p.groups = append(p.groups, monthGroup{items: []monthItem{{month: month, year: year}}, words: 1})
				return i + 3
			}
		}
		if p.globalYear == 0 {
			p.globalYear = year
		}
		return i + 1
	}
	// "1e kwartaal", "2de kwartaal"
	if n, ok := p.numberAt(i, 1, 4); ok {
		pos := i + 1
		if pos < len(p.tokens) && p.tokens[pos].kind == tokenWord {
			switch p.tokens[pos].text {
			case "e", "ste", "de":
				pos++
			}
		}
		if pos < len(p.tokens) && (p.tokens[pos].text == "kwartaal" || p.tokens[pos].text == "quarter") {
			return p.quarter(n, pos+1)
		}
	}
	return i + 1
}

// partOfDate reports whether the number at i belongs to a full date such
// as 12-03-2024 or 2024-03-12.
func (p *extractor) partOfDate(i int) bool {
	start := i
	for start >= 2 && p.tokens[start-1].kind == tokenSep && isDateSep(p.tokens[start-1].text) &&
		!p.tokens[start-1].spaced && !p.tokens[start].spaced && p.tokens[start-2].kind == tokenNumber {
		start -= 2
	}
	end := i
	for end+2 < len(p.tokens) && p.tokens[end+1].kind == tokenSep && isDateSep(p.tokens[end+1].text) &&
		!p.tokens[end+1].spaced && !p.tokens[end+2].spaced && p.tokens[end+2].kind == tokenNumber {
		end += 2
	}
	return (end-start)/2 >= 2
}

func (p *extractor) skipDate(i int) int {
	end := i
	for end+2 < len(p.tokens) && p.tokens[end+1].kind == tokenSep && isDateSep(p.tokens[end+1].text) &&
		!p.tokens[end+1].spaced && !p.tokens[end+2].spaced && p.tokens[end+2].kind == tokenNumber {
		end += 2
	}
	return end + 1
}

func (p *extractor) glued(pos int) bool {
	return pos < len(p.tokens) && !p.tokens[pos].spaced
}

func (p *extractor) numberAt(pos, lo, hi int) (int, bool) {
	if pos >= len(p.tokens) || p.tokens[pos].kind != tokenNumber || len(p.tokens[pos].text) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(p.tokens[pos].text)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func fullYear(text string) (int, bool) {
	if len(text) != 4 || !strings.HasPrefix(text, "20") {
		return 0, false
	}
	year, err := strconv.Atoi(text)
	return year, err == nil
}

func isPeriodSep(text string) bool {
	return text == "-" || text == "/"
}

func isDateSep(text string) bool {
	return text == "-" || text == "/" || text == "."
}

func isAnnualWord(text string) bool {
	if strings.HasPrefix(text, "jaar") {
		return true
	}
	switch text {
	case "annual", "annually", "yearly", "year":
		return true
	}
	return false
}
