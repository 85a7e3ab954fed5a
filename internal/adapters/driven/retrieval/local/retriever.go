// Package local answers questions from a workflow's own documents.
//
// Documents are split into passages with the chunker and scored by
// query-term overlap. When an embedder is configured the score is blended
// with cosine similarity; when a model is configured the answer is
// synthesized from the top passages, otherwise the best matching sentence
// is returned.
package local

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
	"github.com/custodia-labs/autorfp/internal/postprocessors/chunker"
)

// DefaultTopK is the number of sources returned when the scope sets none.
const DefaultTopK = 5

// synthesisPrompt grounds the model in the retrieved excerpts.
const synthesisPrompt = `Answer the question using only the excerpts below.
If the excerpts do not contain the answer, reply with exactly: NOT FOUND.
Keep the answer to a few sentences.

Question: %s

Excerpts:
%s`

// notFound is the model's reply when the excerpts do not answer the question.
const notFound = "NOT FOUND"

// Ensure Retriever implements the interface.
var _ driven.RetrievalService = (*Retriever)(nil)

// Retriever is an in-process retrieval service over stored documents.
type Retriever struct {
	docs     driven.DocumentStore
	chunker  *chunker.Processor
	embedder driven.Embedder
	model    driven.ModelClient
	topK     int

	mu    sync.Mutex
	index map[string]*docIndex
}

// docIndex holds the passages of one document and, once computed, their vectors.
type docIndex struct {
	version  time.Time
	passages []chunker.Passage
	terms    []map[string]struct{}
	vectors  [][]float32
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithEmbedder blends cosine similarity into passage scores.
func WithEmbedder(e driven.Embedder) Option {
	return func(r *Retriever) { r.embedder = e }
}

// WithModel synthesizes answers from the top passages.
func WithModel(m driven.ModelClient) Option {
	return func(r *Retriever) { r.model = m }
}

// WithTopK sets the default number of sources.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithChunker overrides the passage splitter.
func WithChunker(c *chunker.Processor) Option {
	return func(r *Retriever) { r.chunker = c }
}

// New creates a retriever reading documents from docs.
func New(docs driven.DocumentStore, opts ...Option) *Retriever {
	r := &Retriever{
		docs:    docs,
		chunker: chunker.New(),
		topK:    DefaultTopK,
		index:   make(map[string]*docIndex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scored is a passage with its similarity to the question.
type scored struct {
	passage chunker.Passage
	terms   map[string]struct{}
	score   float64
}

// Answer retrieves the passages most similar to question within scope.
// Nothing relevant yields a zero-confidence answer with no sources.
func (r *Retriever) Answer(
	ctx context.Context, question string, scope domain.RetrievalScope,
) (*domain.RetrievalAnswer, error) {
	terms := queryTerms(question)
	if len(terms) == 0 {
		return &domain.RetrievalAnswer{}, nil
	}

	docs, err := r.docs.ListDocuments(ctx, scope.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing documents: %w", domain.ErrRetrievalUnavailable, err)
	}
	docs = inScope(docs, scope.DocumentIDs)

	candidates := r.keywordScores(docs, terms)
	semantic := false
	if r.embedder != nil {
		if err := r.blendSemantic(ctx, question, docs, candidates); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("local retrieval: semantic scoring failed, using keyword scores only: %v", err)
		} else {
			semantic = true
		}
	}

	ranked := topPassages(candidates, r.limit(scope.TopK))
	if len(ranked) == 0 {
		logger.Debug("local retrieval: no passage matched %q", question)
		return &domain.RetrievalAnswer{}, nil
	}

	// Semantic matches may paraphrase the question, so coverage only
	// halves their confidence at worst.
	cov := coverage(terms, ranked)
	if semantic {
		cov = (1 + cov) / 2
	}
	answer := &domain.RetrievalAnswer{
		Confidence: clamp(ranked[0].score * cov),
		Sources:    make([]domain.RetrievalSource, len(ranked)),
	}
	for i, s := range ranked {
		answer.Sources[i] = domain.RetrievalSource{
			DocumentID:   s.passage.DocumentID,
			DocumentName: s.passage.DocumentName,
			Content:      s.passage.Content,
			Similarity:   clamp(s.score),
		}
	}

	answer.Answer = r.compose(ctx, question, terms, ranked)
	if answer.Answer == "" {
		return &domain.RetrievalAnswer{}, nil
	}
	return answer, nil
}

func (r *Retriever) limit(k int) int {
	if k > 0 {
		return k
	}
	return r.topK
}

// inScope keeps documents with text, restricted to ids when given.
func inScope(docs []domain.Document, ids []string) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.Status == domain.ProcessingFailed || strings.TrimSpace(d.Content) == "" {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, d.ID) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// indexFor returns the cached passages of doc, rebuilding them when the
// document changed since it was indexed.
func (r *Retriever) indexFor(doc *domain.Document) *docIndex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.index[doc.ID]; ok && idx.version.Equal(doc.UpdatedAt) {
		return idx
	}
	passages := r.chunker.Split(doc)
	idx := &docIndex{
		version:  doc.UpdatedAt,
		passages: passages,
		terms:    make([]map[string]struct{}, len(passages)),
	}
	for i, p := range passages {
		idx.terms[i] = termSet(p.Content)
	}
	r.index[doc.ID] = idx
	return idx
}

// keywordScores scores every passage by the fraction of query terms it contains.
func (r *Retriever) keywordScores(docs []domain.Document, terms []string) []scored {
	var out []scored
	for i := range docs {
		idx := r.indexFor(&docs[i])
		for j, p := range idx.passages {
			out = append(out, scored{
				passage: p,
				terms:   idx.terms[j],
				score:   overlap(terms, idx.terms[j]),
			})
		}
	}
	return out
}

// blendSemantic averages keyword scores with cosine similarity. Passage
// vectors are computed once per document version.
func (r *Retriever) blendSemantic(ctx context.Context, question string, docs []domain.Document, candidates []scored) error {
	query, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}
	if len(query) != 1 {
		return fmt.Errorf("embedding question: got %d vectors", len(query))
	}

	vectors := make(map[string][]float32)
	for i := range docs {
		idx := r.indexFor(&docs[i])
		docVectors, err := r.ensureVectors(ctx, idx)
		if err != nil {
			return err
		}
		for j, p := range idx.passages {
			vectors[p.ID] = docVectors[j]
		}
	}

	for i := range candidates {
		v, ok := vectors[candidates[i].passage.ID]
		if !ok {
			continue
		}
		candidates[i].score = (candidates[i].score + clamp(cosine(query[0], v))) / 2
	}
	return nil
}

func (r *Retriever) ensureVectors(ctx context.Context, idx *docIndex) ([][]float32, error) {
	r.mu.Lock()
	ready := idx.vectors
	r.mu.Unlock()
	if ready != nil || len(idx.passages) == 0 {
		return ready, nil
	}

	texts := make([]string, len(idx.passages))
	for i, p := range idx.passages {
		texts[i] = p.Content
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding passages: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding passages: got %d vectors for %d passages", len(vectors), len(texts))
	}

	r.mu.Lock()
	idx.vectors = vectors
	r.mu.Unlock()
	return vectors, nil
}

// topPassages drops unmatched passages and returns the k best.
func topPassages(candidates []scored, k int) []scored {
	matched := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.score > 0 {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})
	if len(matched) > k {
		matched = matched[:k]
	}
	return matched
}

// compose returns the synthesized answer, or the best sentence when no
// model is configured or synthesis fails.
func (r *Retriever) compose(ctx context.Context, question string, terms []string, ranked []scored) string {
	if r.model != nil {
		var excerpts strings.Builder
		for i, s := range ranked {
			fmt.Fprintf(&excerpts, "[%d] %s: %s\n", i+1, s.passage.DocumentName, s.passage.Content)
		}
		reply, err := r.model.Invoke(ctx, fmt.Sprintf(synthesisPrompt, question, excerpts.String()))
		reply = strings.TrimSpace(reply)
		switch {
		case err != nil:
			logger.Warn("local retrieval: synthesis failed, using extracted sentence: %v", err)
		case strings.EqualFold(strings.TrimRight(reply, "."), notFound):
			return ""
		case reply != "":
			return reply
		}
	}
	return bestSentence(terms, ranked[0].passage.Content)
}

// bestSentence returns the sentence of content containing the most query terms.
func bestSentence(terms []string, content string) string {
	best, bestScore := "", -1.0
	for _, sentence := range splitSentences(content) {
		if score := overlap(terms, termSet(sentence)); score > bestScore {
			best, bestScore = sentence, score
		}
	}
	return best
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '?' || r == '!' || r == '\n' {
			if s := strings.TrimSpace(text[start : i+1]); len(s) > 1 {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// overlap is the fraction of terms present in set.
func overlap(terms []string, set map[string]struct{}) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, t := range terms {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// coverage is the fraction of terms found in any ranked passage.
func coverage(terms []string, ranked []scored) float64 {
	hits := 0
	for _, t := range terms {
		for _, s := range ranked {
			if _, ok := s.terms[t]; ok {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(terms))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
