// Package chunker splits document text into overlapping passages for retrieval.
package chunker

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per passage.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Passage is one retrievable slice of a document.
type Passage struct {
	ID           string
	DocumentID   string
	DocumentName string
	Content      string

	// Position is the ordinal position within the document.
	Position int
}

// Processor splits document content into fixed-size passages.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Split cuts the document into passages. Cuts are moved back to the nearest
// whitespace so words are not split, unless a single word fills a whole chunk.
func (p *Processor) Split(doc *domain.Document) []Passage {
	runes := []rune(doc.Content)
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	step := p.chunkSize - p.overlap
	passages := make([]Passage, 0, len(runes)/step+1)

	start := 0
	for start < len(runes) {
		end := start + p.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start:end]); cut > p.chunkSize/2 {
			end = start + cut
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			passages = append(passages, Passage{
				ID:           uuid.New().String(),
				DocumentID:   doc.ID,
				DocumentName: doc.Filename,
				Content:      text,
				Position:     len(passages),
			})
		}

		if end == len(runes) {
			break
		}
		next := end - p.overlap
		if next <= start {
			next = min(start+step, end)
		}
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}

	return passages
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}
