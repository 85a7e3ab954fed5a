package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/normalisers/docx"
	"github.com/custodia-labs/autorfp/internal/normalisers/eml"
	"github.com/custodia-labs/autorfp/internal/normalisers/html"
	"github.com/custodia-labs/autorfp/internal/normalisers/markdown"
	"github.com/custodia-labs/autorfp/internal/normalisers/plaintext"
)

type stubExtractor struct {
	types    []string
	priority int
}

func (s *stubExtractor) SupportedMIMETypes() []string { return s.types }
func (s *stubExtractor) Priority() int                { return s.priority }

func (s *stubExtractor) Extract(_ context.Context, u domain.Upload) (*domain.Extraction, error) {
	return &domain.Extraction{Content: string(u.Content)}, nil
}

func TestDefault_Get(t *testing.T) {
	r := Default()

	tests := []struct {
		mimeType string
		want     any
	}{
		{"text/plain", &plaintext.Extractor{}},
		{"text/markdown", &markdown.Extractor{}},
		{"text/html; charset=UTF-8", &html.Extractor{}},
		{"TEXT/HTML", &html.Extractor{}},
		{docx.MIMEType, &docx.Extractor{}},
		{"message/rfc822", &eml.Extractor{}},
		{"text/x-unknown", &plaintext.Extractor{}},
		{"", &plaintext.Extractor{}},
		{"application/rtf", &plaintext.Extractor{}},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			got, err := r.Get(tt.mimeType)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestDefault_GetBinaryUnsupported(t *testing.T) {
	r := Default()

	for _, mimeType := range []string{"application/pdf", "image/png", "application/octet-stream", "application/vnd.ms-excel"} {
		_, err := r.Get(mimeType)
		assert.ErrorIs(t, err, domain.ErrUnsupportedType, mimeType)
	}
}

func TestRegistry_PriorityWins(t *testing.T) {
	r := NewRegistry()
	low := &stubExtractor{types: []string{"text/csv"}, priority: 20}
	high := &stubExtractor{types: []string{"text/csv"}, priority: 80}

	r.Register(low)
	r.Register(high)

	got, err := r.Get("text/csv")
	require.NoError(t, err)
	assert.Same(t, high, got)
	assert.Equal(t, []string{"text/csv"}, r.Types())
}

func TestRegistry_NoFallback(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExtractor{types: []string{"text/markdown"}, priority: 50})

	_, err := r.Get("text/plain")

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDetectMIME(t *testing.T) {
	r := Default()

	tests := []struct {
		filename string
		content  string
		want     string
	}{
		{"rfp.md", "", "text/markdown"},
		{"RFP.DOCX", "", docx.MIMEType},
		{"thread.eml", "", "message/rfc822"},
		{"pricing.csv", "", "text/csv"},
		{"annex.htm", "", "text/html"},
		{"scan.pdf", "", "application/pdf"},
		{"notes", "", "text/plain"},
		{"notes", "<!DOCTYPE html><html><body>x</body></html>", "text/html"},
		{"blob", "%PDF-1.4\n", "application/pdf"},
		{"readme", "plain words", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, r.DetectMIME(tt.filename, []byte(tt.content)))
		})
	}
}

func TestDefault_ExtractsThroughRegistry(t *testing.T) {
	r := Default()
	upload := domain.Upload{Filename: "brief.md", Content: []byte("# Brief\n\nThe supplier **shall** comply.")}
	upload.MIMEType = r.DetectMIME(upload.Filename, upload.Content)

	extractor, err := r.Get(upload.MIMEType)
	require.NoError(t, err)
	got, err := extractor.Extract(context.Background(), upload)
	require.NoError(t, err)

	assert.Equal(t, "Brief", got.Title)
	assert.Equal(t, "Brief\n\nThe supplier shall comply.", got.Content)
}
