package normalisers

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/docx"
	"github.com/custodia-labs/autorfp/internal/normalisers/eml"
	"github.com/custodia-labs/autorfp/internal/normalisers/html"
	"github.com/custodia-labs/autorfp/internal/normalisers/markdown"
	"github.com/custodia-labs/autorfp/internal/normalisers/plaintext"
)

// fallbackPriority is the ceiling for extractors used on unknown types.
const fallbackPriority = 9

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps MIME types to extractors.
type Registry struct {
	mu        sync.RWMutex
	byType    map[string][]driven.TextExtractor
	fallbacks []driven.TextExtractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]driven.TextExtractor)}
}

// Default returns a registry with every built-in extractor.
func Default() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	r.Register(eml.New())
	return r
}

// Register adds an extractor for each of its MIME types. Extractors with a
// fallback priority also serve unknown text types.
func (r *Registry) Register(e driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range e.SupportedMIMETypes() {
		t = normaliseType(t)
		r.byType[t] = append(r.byType[t], e)
		sortByPriority(r.byType[t])
	}
	if e.Priority() <= fallbackPriority {
		r.fallbacks = append(r.fallbacks, e)
		sortByPriority(r.fallbacks)
	}
}

// Get returns the highest-priority extractor for mimeType. Unknown text
// types and empty types get the fallback extractor; unknown binary types
// are unsupported.
func (r *Registry) Get(mimeType string) (driven.TextExtractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := normaliseType(mimeType)
	if list := r.byType[t]; len(list) > 0 {
		return list[0], nil
	}
	if isBinary(t) || len(r.fallbacks) == 0 {
		return nil, fmt.Errorf("%w: no extractor for %q", domain.ErrUnsupportedType, mimeType)
	}
	return r.fallbacks[0], nil
}

// Types returns every registered MIME type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// extMIMETypes maps extensions missing from, or mapped differently by, Go's registry.
var extMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".htm":      "text/html",
	".html":     "text/html",
	".xhtml":    "application/xhtml+xml",
	".eml":      "message/rfc822",
	".docx":     docx.MIMEType,
}

// DetectMIME guesses the type from the extension, then from the content.
func (r *Registry) DetectMIME(filename string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extMIMETypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return normaliseType(t)
		}
	}
	if len(content) == 0 {
		return "text/plain"
	}
	return normaliseType(http.DetectContentType(content))
}

// normaliseType lowercases t and strips parameters such as charset.
func normaliseType(t string) string {
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// isBinary reports types whose bytes are not readable as text.
func isBinary(t string) bool {
	if t == "" || strings.HasPrefix(t, "text/") {
		return false
	}
	for _, prefix := range []string{"image/", "audio/", "video/", "font/"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	switch {
	case strings.HasSuffix(t, "+xml"), strings.HasSuffix(t, "+json"):
		return false
	case t == "application/octet-stream", t == "application/pdf", t == "application/zip",
		t == "application/msword", t == "application/x-gzip", t == "application/gzip",
		strings.HasPrefix(t, "application/vnd."):
		return true
	}
	return false
}

func sortByPriority(list []driven.TextExtractor) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() > list[j].Priority()
	})
}
