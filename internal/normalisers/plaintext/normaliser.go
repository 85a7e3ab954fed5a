// Package plaintext extracts text files as they are. It is the fallback
// extractor for unknown MIME types.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/title"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles plain text uploads.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/yaml",
		"text/toml",
		"text/xml",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 5 // Fallback extractor
}

// Extract returns the upload as UTF-8 text with normalised line endings.
func (e *Extractor) Extract(_ context.Context, upload domain.Upload) (*domain.Extraction, error) {
	if len(upload.Content) == 0 {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "file is empty"}
	}

	content := strings.ToValidUTF8(string(upload.Content), "\uFFFD")
	content = strings.TrimPrefix(content, "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	return &domain.Extraction{
		Title:   title.FromFilename(upload.Filename),
		Content: strings.TrimSpace(content),
		Metadata: map[string]any{
			"mime_type": upload.MIMEType,
			"format":    "text",
		},
	}, nil
}
