// Package docx extracts text from Word (OOXML) uploads.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/title"
)

// MIMEType is the Word document content type.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	documentPart = "word/document.xml"
	corePart     = "docProps/core.xml"

	// maxPartSize caps how much of a single archive entry is read.
	maxPartSize = 64 << 20
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles DOCX uploads.
type Extractor struct{}

// New creates a new DOCX extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract reads the document body, one paragraph per line. Table cells
// are joined with " | ".
func (e *Extractor) Extract(_ context.Context, upload domain.Upload) (*domain.Extraction, error) {
	archive, err := zip.NewReader(bytes.NewReader(upload.Content), int64(len(upload.Content)))
	if err != nil {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "not a DOCX archive"}
	}

	body, err := readPart(archive, documentPart)
	if err != nil {
		return nil, fmt.Errorf("docx: %s: %w", upload.Filename, err)
	}
	if body == nil {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "archive has no " + documentPart}
	}
	content, err := bodyText(body)
	if err != nil {
		return nil, fmt.Errorf("docx: %s: %w", upload.Filename, err)
	}

	metadata := map[string]any{
		"mime_type": upload.MIMEType,
		"format":    "docx",
	}
	var props coreProperties
	if raw, err := readPart(archive, corePart); err == nil && raw != nil {
		// Document properties are optional; a malformed part leaves them empty.
		_ = xml.Unmarshal(raw, &props)
	}
	if props.Creator != "" {
		metadata["author"] = strings.TrimSpace(props.Creator)
	}
	if props.Subject != "" {
		metadata["subject"] = strings.TrimSpace(props.Subject)
	}

	return &domain.Extraction{
		Title:    title.Or(props.Title, upload.Filename),
		Content:  content,
		Metadata: metadata,
	}, nil
}

// coreProperties is the subset of docProps/core.xml that is kept.
type coreProperties struct {
	Title   string `xml:"title"`
	Subject string `xml:"subject"`
	Creator string `xml:"creator"`
}

// readPart returns the named archive entry, or nil when it is absent.
func readPart(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// bodyText walks word/document.xml. Elements are matched by local name so
// any namespace prefix works.
func bodyText(data []byte) (string, error) {
	var (
		out    strings.Builder
		line   strings.Builder
		inText bool
		cells  []string
		inCell bool
	)
	endParagraph := func() {
		text := strings.TrimSpace(line.String())
		line.Reset()
		if inCell {
			if text != "" {
				cells = append(cells, text)
			}
			return
		}
		if text != "" {
			out.WriteString(text)
			out.WriteByte('\n')
		}
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				line.WriteByte(' ')
			case "tr":
				cells = cells[:0]
			case "tc":
				inCell = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				endParagraph()
			case "tc":
				inCell = false
			case "tr":
				if len(cells) > 0 {
					out.WriteString(strings.Join(cells, " | "))
					out.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
