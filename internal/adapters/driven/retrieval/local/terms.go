package local

import (
	"strings"
	"unicode"
)

// minTermLength drops short tokens that carry no meaning on their own.
const minTermLength = 3

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "with": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "how": {}, "when": {}, "where": {},
	"why": {}, "does": {}, "did": {}, "has": {}, "have": {}, "had": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "there": {}, "their": {}, "from": {},
	"into": {}, "any": {}, "all": {}, "our": {}, "you": {}, "your": {}, "can": {},
	"will": {}, "would": {}, "should": {}, "could": {}, "must": {}, "shall": {},
	"not": {}, "but": {}, "its": {}, "been": {}, "being": {}, "such": {}, "per": {},
	"please": {}, "provide": {}, "required": {}, "require": {},
}

// tokenize splits text into normalised terms. Short tokens and stopwords
// are dropped; a trailing plural "s" is removed.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTermLength {
			// Short alphanumerics like "p1" or "24" are kept.
			if !hasDigit(f) {
				continue
			}
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, normalise(f))
	}
	return out
}

// queryTerms returns the distinct terms of a question in first-seen order.
func queryTerms(question string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range tokenize(question) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// termSet returns the set of terms in text.
func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

func normalise(term string) string {
	if len(term) > 4 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
		return term[:len(term)-1]
	}
	return term
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
