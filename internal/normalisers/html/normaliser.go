// Package html extracts readable text from HTML uploads. Scripts, styles
// and other non-content elements are dropped; block elements become line
// breaks and entities are decoded.
package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/title"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles HTML uploads.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract converts the upload to text. The <title> element, falling back
// to the first h1, names the document.
func (e *Extractor) Extract(_ context.Context, upload domain.Upload) (*domain.Extraction, error) {
	if len(upload.Content) == 0 {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "file is empty"}
	}

	page, err := Parse(bytes.NewReader(upload.Content))
	if err != nil {
		return nil, fmt.Errorf("html: %s: %w", upload.Filename, err)
	}

	metadata := map[string]any{
		"mime_type": upload.MIMEType,
		"format":    "html",
	}
	if len(page.Headings) > 0 {
		metadata["headings"] = page.Headings
	}
	if page.Description != "" {
		metadata["description"] = page.Description
	}

	name := page.Title
	if name == "" && len(page.Headings) > 0 {
		name = page.Headings[0]
	}
	return &domain.Extraction{
		Title:    title.Or(name, upload.Filename),
		Content:  page.Text,
		Metadata: metadata,
	}, nil
}

// Page is the readable content of an HTML document.
type Page struct {
	Title       string
	Description string

	// Headings lists h1 to h3 text in document order.
	Headings []string

	Text string
}

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
}

// blocks start and end on their own line.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
	atom.Form: true, atom.Fieldset: true, atom.Figure: true, atom.Figcaption: true,
}

var headingLevels = map[atom.Atom]bool{atom.H1: true, atom.H2: true, atom.H3: true}

// Parse tokenizes r into a Page.
func Parse(r io.Reader) (*Page, error) {
	var (
		page     Page
		text     strings.Builder
		skip     int
		inTitle  bool
		heading  *strings.Builder
		newCells bool
		midLine  bool
		pre      int
	)
	write := func(s string) {
		if s != "" {
			text.WriteString(s)
			midLine = !strings.HasSuffix(s, "\n")
		}
	}
	lineBreak := func() {
		if midLine {
			write("\n")
		}
		newCells = false
	}

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			page.Text = tidy(text.String())
			return &page, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			selfClosing := tok.Type == html.SelfClosingTagToken
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = !selfClosing
			case tok.DataAtom == atom.Meta:
				if attr(tok, "name") == "description" {
					page.Description = strings.TrimSpace(attr(tok, "content"))
				}
			case skipped[tok.DataAtom]:
				if !selfClosing {
					skip++
				}
			case tok.DataAtom == atom.Br:
				lineBreak()
			case tok.DataAtom == atom.Td || tok.DataAtom == atom.Th:
				if newCells {
					write(" | ")
				}
				newCells = true
			case blocks[tok.DataAtom]:
				lineBreak()
				if tok.DataAtom == atom.Pre && !selfClosing {
					pre++
				}
				if headingLevels[tok.DataAtom] && skip == 0 {
					heading = &strings.Builder{}
				}
			}

		case html.EndTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = false
			case skipped[tok.DataAtom]:
				if skip > 0 {
					skip--
				}
			case blocks[tok.DataAtom]:
				if tok.DataAtom == atom.Pre && pre > 0 {
					pre--
				}
				if headingLevels[tok.DataAtom] && heading != nil {
					if h := collapse(heading.String()); h != "" {
						page.Headings = append(page.Headings, h)
					}
					heading = nil
				}
				lineBreak()
			}

		case html.TextToken:
			data := string(z.Text())
			if inTitle {
				page.Title += collapse(data)
				continue
			}
			if skip > 0 {
				continue
			}
			if pre == 0 {
				data = flow(data)
			}
			write(data)
			if heading != nil {
				heading.WriteString(data)
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// collapse joins runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// flow collapses a text node the way a browser lays it out: whitespace
// runs become one space, kept at either end only if the node had one.
func flow(s string) string {
	out := collapse(s)
	if out == "" {
		if s != "" {
			return " "
		}
		return ""
	}
	if strings.TrimLeftFunc(s, unicode.IsSpace) != s {
		out = " " + out
	}
	if strings.TrimRightFunc(s, unicode.IsSpace) != s {
		out += " "
	}
	return out
}

// tidy collapses whitespace per line and drops empty lines.
func tidy(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapse(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
