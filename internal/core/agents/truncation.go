package agents

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTruncationLimit is the per-document character ceiling on the fallback path.
const DefaultTruncationLimit = 8000

// TruncationMarker is appended when content had to be cut mid-section.
const TruncationMarker = "\n\n[Content truncated...]"

// domainBonus is added per occurrence of a domain signal term.
const domainBonus = 5

// minParagraph is the shortest paragraph kept by the paragraph split.
const minParagraph = 50

var domainTerms = []string{
	"requirements", "specifications", "criteria", "evaluation",
	"timeline", "deadline", "budget", "cost",
}

// Section heading patterns, tried in order.
var (
	numberedHeading = regexp.MustCompile(`(?mi)^[ \t]*(?:section[ \t]+)?\d+(?:\.\d+)*\.?[ \t]+\S.*$`)
	capsHeading     = regexp.MustCompile(`(?m)^[ \t]*[A-Z][A-Z0-9 &/,()'-]{3,}[ \t]*$`)
	titleHeading    = regexp.MustCompile(`(?m)^[ \t]*[A-Z][A-Za-z0-9 /&'-]{1,60}:`)
	separatorRule   = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|={3,}|\*{3,}|_{3,})[ \t]*$`)
	blankLines      = regexp.MustCompile(`\n[ \t]*\n`)
	wordSplit       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Truncate fits content under limit characters, keeping the sections most
// relevant to questions. Content already under the limit is returned unchanged.
func Truncate(content string, questions []string, limit int) string {
	if limit <= 0 {
		limit = DefaultTruncationLimit
	}
	if len(content) <= limit {
		return content
	}

	sections := splitSections(content)
	keywords := questionKeywords(questions)

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(sections))
	for i, s := range sections {
		ranked[i] = scored{index: i, score: scoreSection(s, keywords)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	selected := make([]bool, len(sections))
	total := 0
	picked := false
	for _, r := range ranked {
		cost := len(sections[r.index])
		if picked {
			cost += len("\n\n")
		}
		if total+cost > limit {
			continue
		}
		selected[r.index] = true
		total += cost
		picked = true
	}

	if !picked {
		return hardTruncate(content, limit)
	}

	kept := make([]string, 0, len(sections))
	for i, s := range sections {
		if selected[i] {
			kept = append(kept, s)
		}
	}
	out := strings.Join(kept, "\n\n")
	if len(out) > limit {
		return hardTruncate(out, limit)
	}
	return out
}

// splitSections cuts text at headings, falling back to paragraphs.
func splitSections(text string) []string {
	for _, heading := range []*regexp.Regexp{numberedHeading, capsHeading, titleHeading} {
		if parts := splitAt(text, heading); len(parts) > 1 {
			return parts
		}
	}
	if parts := splitOn(text, separatorRule); len(parts) > 1 {
		return parts
	}

	var paragraphs []string
	for _, p := range blankLines.Split(text, -1) {
		if p = strings.TrimSpace(p); len(p) >= minParagraph {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitAt starts a new section at every heading match.
func splitAt(text string, heading *regexp.Regexp) []string {
	locs := heading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	var parts []string
	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		parts = append(parts, pre)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if part := strings.TrimSpace(text[loc[0]:end]); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// splitOn cuts text at separator lines, dropping the separators.
func splitOn(text string, sep *regexp.Regexp) []string {
	var parts []string
	for _, p := range sep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// questionKeywords returns the distinct lowercased question words longer than three characters.
func questionKeywords(questions []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range questions {
		for _, w := range wordSplit.Split(strings.ToLower(q), -1) {
			if utf8.RuneCountInString(w) > 3 && !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

func scoreSection(section string, keywords []string) int {
	lower := strings.ToLower(section)
	score := 0
	for _, kw := range keywords {
		score += strings.Count(lower, kw)
	}
	for _, term := range domainTerms {
		score += domainBonus * strings.Count(lower, term)
	}
	return score
}

// hardTruncate cuts text so that text plus the marker fits in limit,
// preferring a word boundary and never splitting a UTF-8 sequence.
func hardTruncate(text string, limit int) string {
	if limit <= len(TruncationMarker) {
		return validPrefix(text, limit)
	}
	cut := validPrefix(text, limit-len(TruncationMarker))
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + TruncationMarker
}

func validPrefix(text string, n int) string {
	if n >= len(text) {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
