package banking

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText lowercases s and strips diacritics, so "Één" becomes "een".
func NormalizeText(s string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, s)
	if err != nil {
		stripped = s
	}
	return cases.Lower(language.Dutch).String(stripped)
}

// NormalizeName reduces a person name to lowercase words without titles
// or punctuation.
func NormalizeName(s string) string {
	var words []string
	for _, tok := range tokenize(NormalizeText(s)) {
		if tok.kind != tokenWord && tok.kind != tokenNumber {
			continue
		}
		if _, title := nameTitles[tok.text]; title {
			continue
		}
		words = append(words, tok.text)
	}
	return strings.Join(words, " ")
}

var nameTitles = map[string]struct{}{
	"dhr": {}, "hr": {}, "mw": {}, "mevr": {}, "mevrouw": {}, "mr": {}, "mrs": {}, "ms": {}, "fam": {}, "familie": {}, "eo": {},
}

// NormalizeIBAN strips whitespace and uppercases without validating.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

type tokenKind int

const (
	tokenWord tokenKind = iota + 1
	tokenNumber
	tokenSep
)

type token struct {
	text string
	kind tokenKind
	// spaced is set when whitespace precedes the token.
	spaced bool
}

// tokenize splits normalized text into words, numbers and single-rune
// separators. A standalone "t/m" or "t.m." collapses into the word "tm".
func tokenize(s string) []token {
	return collapseTotMet(scan(s))
}

// collapseTotMet joins the tokens of "t/m" and "t.m." into "tm". The t and
// the m must be whole words, so "okt/mrt" stays a list of two months.
func collapseTotMet(tokens []token) []token {
	out := tokens[:0]
	for i := 0; i < len(tokens); i++ {
		if n := totMetWidth(tokens, i); n > 0 {
			out = append(out, token{text: "tm", kind: tokenWord, spaced: tokens[i].spaced})
			i += n - 1
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

func totMetWidth(tokens []token, i int) int {
	if i+2 >= len(tokens) || tokens[i].text != "t" {
		return 0
	}
	sep, m := tokens[i+1], tokens[i+2]
	if sep.spaced || (sep.text != "/" && sep.text != ".") || m.spaced || m.text != "m" {
		return 0
	}
	width := 3
	if sep.text == "." && i+3 < len(tokens) && tokens[i+3].text == "." && !tokens[i+3].spaced {
		width++
	}
	if i+width < len(tokens) {
		if next := tokens[i+width]; !next.spaced && next.kind != tokenSep {
			return 0
		}
	}
	return width
}

func scan(s string) []token {
	var (
		tokens []token
		buf    strings.Builder
		kind   tokenKind
		spaced = true
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		tokens = append(tokens, token{text: buf.String(), kind: kind, spaced: spaced})
		buf.Reset()
		spaced = false
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
			spaced = true
		case unicode.IsLetter(r):
			if kind != tokenWord {
				flush()
			}
			kind = tokenWord
			buf.WriteRune(r)
		case unicode.IsDigit(r):
			if kind != tokenNumber {
				flush()
			}
			kind = tokenNumber
			buf.WriteRune(r)
		default:
			flush()
			tokens = append(tokens, token{text: string(r), kind: tokenSep, spaced: spaced})
			spaced = false
			kind = tokenSep
		}
	}
	flush()
	return tokens
}
