package local

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

type fakeDocs struct {
	docs  []domain.Document
	err   error
	calls int
}

func (f *fakeDocs) SaveDocuments(context.Context, []domain.Document) error { return nil }
func (f *fakeDocs) UpdateDocument(context.Context, *domain.Document) error { return nil }

func (f *fakeDocs) ListDocuments(_ context.Context, workflowID string) ([]domain.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Document
	for _, d := range f.docs {
		if d.WorkflowID == workflowID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) Invoke(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func (m *fakeModel) Stream(ctx context.Context, prompt string, _ func(string)) (string, error) {
	return m.Invoke(ctx, prompt)
}

func (m *fakeModel) ModelName() string            { return "fake" }
func (m *fakeModel) Ping(_ context.Context) error { return nil }
func (m *fakeModel) Close() error                 { return nil }

// topicEmbedder maps text mentioning any of its words to one axis and
// everything else to the other.
type topicEmbedder struct {
	mu    sync.Mutex
	words []string
	err   error
	texts int
}

func (e *topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{0, 1}
		for _, w := range e.words {
			if strings.Contains(strings.ToLower(t), w) {
				out[i] = []float32{1, 0}
			}
		}
	}
	return out, nil
}

func (e *topicEmbedder) ModelName() string            { return "topic" }
func (e *topicEmbedder) Ping(_ context.Context) error { return nil }
func (e *topicEmbedder) Close() error                 { return nil }

var updated = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func rfpDocs() *fakeDocs {
	return &fakeDocs{docs: []domain.Document{
		{
			ID: "doc-1", WorkflowID: "wf-1", Filename: "rfp.txt", Status: domain.ProcessingCompleted, UpdatedAt: updated,
			Content: "The supplier shall provide 24/7 support. P1 incidents require a response within 15 minutes.",
		},
		{
			ID: "doc-2", WorkflowID: "wf-1", Filename: "pricing.txt", Status: domain.ProcessingCompleted, UpdatedAt: updated,
			Content: "Pricing must be a fixed monthly fee with no indexation.",
		},
		{
			ID: "doc-3", WorkflowID: "wf-1", Filename: "broken.pdf", Status: domain.ProcessingFailed, UpdatedAt: updated,
			Content: "P1 incidents response garbage",
		},
		{
			ID: "doc-4", WorkflowID: "wf-2", Filename: "other.txt", Status: domain.ProcessingCompleted, UpdatedAt: updated,
			Content: "P1 incidents are answered next week.",
		},
	}}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"response", "time", "p1", "incident"},
		queryTerms("What response time is required for P1 incidents? Response!"))
	assert.Empty(t, queryTerms("What is it?"))
	assert.Equal(t, []string{"24", "incident", "process"}, tokenize("24 incidents process"))
}

func TestAnswer_KeywordMatch(t *testing.T) {
	docs := rfpDocs()
	r := New(docs)

	got, err := r.Answer(context.Background(), "What response time is required for P1 incidents?",
		domain.RetrievalScope{WorkflowID: "wf-1"})
	require.NoError(t, err)

	require.Len(t, got.Sources, 1)
	assert.Equal(t, "doc-1", got.Sources[0].DocumentID)
	assert.Equal(t, "rfp.txt", got.Sources[0].DocumentName)
	assert.InDelta(t, 0.75, got.Sources[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5625, got.Confidence, 1e-9)
	assert.Equal(t, "P1 incidents require a response within 15 minutes.", got.Answer)
}

func TestAnswer_NothingRelevant(t *testing.T) {
	r := New(rfpDocs())

	got, err := r.Answer(context.Background(), "Which cloud regions host the data?",
		domain.RetrievalScope{WorkflowID: "wf-1"})
	require.NoError(t, err)

	assert.Zero(t, got.Confidence)
	assert.Empty(t, got.Sources)
	assert.Empty(t, got.Answer)
}

func TestAnswer_NoTermsSkipsStore(t *testing.T) {
	docs := rfpDocs()
	r := New(docs)

	got, err := r.Answer(context.Background(), "What is it?", domain.RetrievalScope{WorkflowID: "wf-1"})
	require.NoError(t, err)

	assert.Zero(t, got.Confidence)
	assert.Zero(t, docs.calls)
}

func TestAnswer_ScopeAndTopK(t *testing.T) {
	r := New(rfpDocs())
	ctx := context.Background()

	scoped, err := r.Answer(ctx, "fixed monthly pricing with P1 support",
		domain.RetrievalScope{WorkflowID: "wf-1", DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)
	require.Len(t, scoped.Sources, 1)
	assert.Equal(t, "doc-2", scoped.Sources[0].DocumentID)

	both, err := r.Answer(ctx, "fixed monthly pricing with P1 support", domain.RetrievalScope{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, both.Sources, 2)
	assert.GreaterOrEqual(t, both.Sources[0].Similarity, both.Sources[1].Similarity)

	one, err := r.Answer(ctx, "fixed monthly pricing with P1 support", domain.RetrievalScope{WorkflowID: "wf-1", TopK: 1})
	require.NoError(t, err)
	assert.Len(t, one.Sources, 1)
}

func TestAnswer_StoreError(t *testing.T) {
	docs := rfpDocs()
	docs.err = errors.New("disk gone")
	r := New(docs)

	_, err := r.Answer(context.Background(), "P1 response", domain.RetrievalScope{WorkflowID: "wf-1"})

	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
}

func TestAnswer_ModelSynthesis(t *testing.T) {
	question := "What response time is required for P1 incidents?"
	scope := domain.RetrievalScope{WorkflowID: "wf-1"}

	t.Run("uses model reply", func(t *testing.T) {
		model := &fakeModel{reply: "  Within 15 minutes.  "}
		got, err := New(rfpDocs(), WithModel(model)).Answer(context.Background(), question, scope)
		require.NoError(t, err)
		assert.Equal(t, "Within 15 minutes.", got.Answer)
		require.Len(t, model.prompts, 1)
		assert.Contains(t, model.prompts[0], "[1] rfp.txt: The supplier shall provide")
	})

	t.Run("not found clears the answer", func(t *testing.T) {
		got, err := New(rfpDocs(), WithModel(&fakeModel{reply: "NOT FOUND."})).Answer(context.Background(), question, scope)
		require.NoError(t, err)
		assert.Zero(t, got.Confidence)
		assert.Empty(t, got.Sources)
	})

	t.Run("model error falls back to sentence", func(t *testing.T) {
		got, err := New(rfpDocs(), WithModel(&fakeModel{err: errors.New("503")})).Answer(context.Background(), question, scope)
		require.NoError(t, err)
		assert.Equal(t, "P1 incidents require a response within 15 minutes.", got.Answer)
	})
}

func TestAnswer_SemanticBlend(t *testing.T) {
	embedder := &topicEmbedder{words: []string{"indexation", "inflation"}}
	r := New(rfpDocs(), WithEmbedder(embedder))
	scope := domain.RetrievalScope{WorkflowID: "wf-1"}

	got, err := r.Answer(context.Background(), "Can prices rise with inflation?", scope)
	require.NoError(t, err)

	require.NotEmpty(t, got.Sources)
	assert.Equal(t, "doc-2", got.Sources[0].DocumentID)
	assert.InDelta(t, 0.5, got.Sources[0].Similarity, 1e-9)
	assert.InDelta(t, 0.25, got.Confidence, 1e-9)

	embedded := embedder.texts
	_, err = r.Answer(context.Background(), "Is inflation indexation allowed?", scope)
	require.NoError(t, err)
	assert.Equal(t, embedded+1, embedder.texts, "passage vectors are reused")
}

func TestAnswer_SemanticFailureDegrades(t *testing.T) {
	r := New(rfpDocs(), WithEmbedder(&topicEmbedder{err: errors.New("embedder down")}))

	got, err := r.Answer(context.Background(), "What response time is required for P1 incidents?",
		domain.RetrievalScope{WorkflowID: "wf-1"})
	require.NoError(t, err)

	assert.InDelta(t, 0.5625, got.Confidence, 1e-9)
}

func TestAnswer_ReindexesChangedDocument(t *testing.T) {
	docs := rfpDocs()
	r := New(docs)
	scope := domain.RetrievalScope{WorkflowID: "wf-1", DocumentIDs: []string{"doc-2"}}

	before, err := r.Answer(context.Background(), "escrow deposit", scope)
	require.NoError(t, err)
	assert.Empty(t, before.Sources)

	docs.docs[1].Content = "An escrow deposit is required before signature."
	docs.docs[1].UpdatedAt = updated.Add(time.Minute)

	after, err := r.Answer(context.Background(), "escrow deposit", scope)
	require.NoError(t, err)
	require.Len(t, after.Sources, 1)
	assert.InDelta(t, 1.0, after.Confidence, 1e-9)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 2}))
}
