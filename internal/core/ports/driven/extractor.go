package driven

import (
	"context"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// TextExtractor turns an uploaded file into plain text.
// Each extractor handles specific MIME types (e.g., HTML, DOCX).
type TextExtractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific extractors should return 50-89.
	// Fallback extractors should return 1-9.
	Priority() int

	// Extract recovers the text of an upload.
	Extract(ctx context.Context, upload domain.Upload) (*domain.Extraction, error)
}

// ExtractorRegistry selects an extractor for a MIME type.
type ExtractorRegistry interface {
	// Register adds an extractor.
	Register(e TextExtractor)

	// Get returns the highest-priority extractor for mimeType.
	Get(mimeType string) (TextExtractor, error)

	// DetectMIME guesses the MIME type of an upload from its name and content.
	DetectMIME(filename string, content []byte) string
}
