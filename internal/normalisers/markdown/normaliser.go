// Package markdown extracts readable text from Markdown uploads.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/title"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles Markdown uploads.
type Extractor struct{}

// New creates a new Markdown extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

var (
	fencedCode  = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")
	inlineCode  = regexp.MustCompile("`([^`]+)`")
	images      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingLine = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.*?)[ \t]*#*[ \t]*$`)
	emphasis    = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	blockquote  = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	rule        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	bullet      = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	tableRule   = regexp.MustCompile(`^\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?$`)
	tablePipes  = regexp.MustCompile(`[ \t]*\|[ \t]*`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// Extract strips Markdown syntax, keeping code, link text and table cells.
// Headings are listed in metadata in document order.
func (e *Extractor) Extract(_ context.Context, upload domain.Upload) (*domain.Extraction, error) {
	if len(upload.Content) == 0 {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "file is empty"}
	}
	source := strings.ReplaceAll(string(upload.Content), "\r\n", "\n")

	var headings []string
	firstH1 := ""
	for _, m := range headingLine.FindAllStringSubmatch(source, -1) {
		headings = append(headings, m[1])
		if firstH1 == "" && strings.HasPrefix(strings.TrimSpace(m[0]), "# ") {
			firstH1 = m[1]
		}
	}

	metadata := map[string]any{
		"mime_type": upload.MIMEType,
		"format":    "markdown",
	}
	if len(headings) > 0 {
		metadata["headings"] = headings
	}

	return &domain.Extraction{
		Title:    title.Or(firstH1, upload.Filename),
		Content:  Strip(source),
		Metadata: metadata,
	}, nil
}

// Strip converts Markdown to plain text.
func Strip(source string) string {
	text := fencedCode.ReplaceAllString(source, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = images.ReplaceAllString(text, "$1")
	text = links.ReplaceAllString(text, "$1")
	text = headingLine.ReplaceAllString(text, "$1")
	text = emphasis.ReplaceAllString(text, "$2")
	text = blockquote.ReplaceAllString(text, "")
	text = rule.ReplaceAllString(text, "")
	text = bullet.ReplaceAllString(text, "$1")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if tableRule.MatchString(trimmed) {
			continue
		}
		if strings.HasPrefix(trimmed, "|") {
			cells := tablePipes.Split(strings.TrimSpace(strings.Trim(trimmed, "|")), -1)
			line = strings.Join(cells, "  ")
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	text = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
