// Package query implements the pure Query Parser (C10): raw user text in,
// a ParsedQuery out. It never inspects language or touches the database.
package query

import (
	"strings"
	"unicode"
)

// ParsedQuery is the parser's output (§4.8).
type ParsedQuery struct {
	PositiveText    string
	NegativeTerms   []string
	HasQuotedPhrase bool
	RawQuery        string
}

// Parse splits raw into positive/negative terms, preserving quoted phrases
// in PositiveText and collecting every "-term" into NegativeTerms.
func Parse(raw string) ParsedQuery {
	pq := ParsedQuery{RawQuery: raw}
	if strings.Contains(raw, `"`) {
		pq.HasQuotedPhrase = true
	}

	tokens := tokenize(raw)
	var positive []string
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			pq.NegativeTerms = append(pq.NegativeTerms, strings.TrimPrefix(tok, "-"))
			continue
		}
		positive = append(positive, tok)
	}
	pq.PositiveText = strings.TrimSpace(strings.Join(positive, " "))
	return pq
}

// tokenize splits on whitespace but keeps double-quoted substrings intact
// as single tokens (including their quotes), so PositiveText preserves
// phrase quoting for the FTS query string.
func tokenize(raw string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			cur.WriteRune(r)
			inQuotes = !inQuotes
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// isCJKRune reports whether r falls in a CJK Unicode block, used to apply
// the shorter "is_long" threshold for CJK queries (§4.8).
func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// IsLong reports the query-length predicate used by weight selection:
// length > 10 runes for Latin text, > 5 runes for CJK text (§4.8).
func IsLong(text string) bool {
	runes := []rune(text)
	cjk := false
	for _, r := range runes {
		if isCJKRune(r) {
			cjk = true
			break
		}
	}
	if cjk {
		return len(runes) > 5
	}
	return len(runes) > 10
}
