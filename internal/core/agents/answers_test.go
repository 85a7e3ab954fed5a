package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func fiveQuestions() []domain.Question {
	return []domain.Question{
		q("Q-001", domain.CategoryTechnical, domain.PriorityHigh, "Which cloud regions are allowed?"),
		q("Q-002", domain.CategoryTechnical, domain.PriorityMedium, "What uptime is required?"),
		q("Q-003", domain.CategoryBusiness, domain.PriorityHigh, "What is the budget?"),
		q("Q-004", domain.CategoryCompliance, domain.PriorityLow, "Is ISO 27001 needed?"),
		q("Q-005", domain.CategoryBusiness, domain.PriorityMedium, "When is the deadline?"),
	}
}

func retrieved(text string, c float64, docs ...string) *domain.RetrievalAnswer {
	a := &domain.RetrievalAnswer{Answer: text, Confidence: c}
	for _, d := range docs {
		a.Sources = append(a.Sources, domain.RetrievalSource{DocumentID: "id-" + d, DocumentName: d, Content: "excerpt from " + d, Similarity: c})
	}
	return a
}

func testDocs() []domain.Document {
	return []domain.Document{
		{ID: "doc-1", Filename: "rfp.pdf", Content: "The service must run in EU regions. Deadline is 31 March."},
		{ID: "doc-2", Filename: "sla.docx", Content: "Uptime of 99.9 percent is expected."},
	}
}

func TestExtract_ClassifiesRetrievalResults(t *testing.T) {
	questions := fiveQuestions()
	retrieval := &fakeRetrieval{answers: map[string]*domain.RetrievalAnswer{
		questions[0].Text: retrieved("EU regions only", 0.9, "rfp.pdf"),
		questions[1].Text: retrieved("99.9 percent", 0.5, "sla.docx"),
		questions[2].Text: retrieved("Possibly 100k", 0.2, "rfp.pdf"),
		questions[3].Text: retrieved("", 0.0),
		questions[4].Text: retrieved("31 March", 0.85, "rfp.pdf"),
	}}
	model := &fakeModel{}

	x := NewAnswerExtractor(retrieval, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", questions, testDocs(), Context{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodRetrieval, set.Method)
	assert.Zero(t, model.calls(), "no model call when retrieval answers")

	require.Len(t, set.Answers, 3)
	assert.Equal(t, "Q-001", set.Answers[0].QuestionID)
	assert.Equal(t, domain.AnswerDirect, set.Answers[0].Type)
	assert.Equal(t, domain.Complete, set.Answers[0].Completeness)
	assert.Equal(t, "Q-002", set.Answers[1].QuestionID)
	assert.Equal(t, domain.AnswerInferred, set.Answers[1].Type)
	assert.Equal(t, domain.Partial, set.Answers[1].Completeness)
	assert.Equal(t, "Q-005", set.Answers[2].QuestionID)
	assert.Equal(t, domain.AnswerDirect, set.Answers[2].Type)

	first := set.Answers[0]
	assert.Equal(t, "wf-1", first.WorkflowID)
	assert.Equal(t, fixedNow, first.CreatedAt)
	require.Len(t, first.Sources, 1)
	assert.Equal(t, "rfp.pdf", first.Sources[0].DocumentName)
	assert.Equal(t, "excerpt from rfp.pdf", first.Sources[0].Excerpt)

	require.Len(t, set.Unanswered, 2)
	assert.Equal(t, "Q-003", set.Unanswered[0].QuestionID)
	assert.Equal(t, domain.ReasonLowConfidence, set.Unanswered[0].Reason)
	assert.Equal(t, "Q-004", set.Unanswered[1].QuestionID)
	assert.Equal(t, domain.ReasonNoInformation, set.Unanswered[1].Reason)

	assert.InDelta(t, 60.0, set.Gaps.Coverage, 1e-9)
	assert.Equal(t, 5, set.Gaps.TotalQuestions)
	assert.InDelta(t, (0.9+0.5+0.85)/3, set.Provenance.Confidence, 1e-9)

	require.Len(t, retrieval.scopes, 5)
	assert.Equal(t, "wf-1", retrieval.scopes[0].WorkflowID)
	assert.Equal(t, []string{"doc-1", "doc-2"}, retrieval.scopes[0].DocumentIDs)
	assert.Equal(t, DefaultTopK, retrieval.scopes[0].TopK)
}

func TestExtract_AllZeroConfidenceFallsBackOnce(t *testing.T) {
	questions := fiveQuestions()
	retrieval := &fakeRetrieval{}
	model := &fakeModel{replies: []string{`{
		"answers": [
			{"question_id": "Q-005", "answer": "31 March", "confidence": 0.9, "sources": [{"document": "rfp.pdf", "excerpt": "Deadline is 31 March.", "relevance": 0.9}]},
			{"question_id": "Q1", "answer": "EU regions", "confidence": 0.75},
			{"question_id": "Q-099", "answer": "stray", "confidence": 0.9}
		],
		"unanswered": [{"question_id": "Q-003", "reason": "Budget not stated"}]
	}`}}

	x := NewAnswerExtractor(retrieval, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", questions, testDocs(), Context{})
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls(), "exactly one fallback call")
	assert.Len(t, retrieval.asked, 5)
	assert.Equal(t, domain.MethodModelFallback, set.Method)

	require.Len(t, set.Answers, 2)
	assert.Equal(t, "Q-001", set.Answers[0].QuestionID, "answers follow question order")
	assert.Equal(t, domain.AnswerInferred, set.Answers[0].Type)
	assert.Equal(t, "Q-005", set.Answers[1].QuestionID)
	assert.Equal(t, domain.AnswerDirect, set.Answers[1].Type)
	assert.Equal(t, "wf-1", set.Answers[1].WorkflowID)
	require.Len(t, set.Answers[1].Sources, 1)
	assert.Equal(t, "rfp.pdf", set.Answers[1].Sources[0].DocumentName)

	require.Len(t, set.Unanswered, 3)
	assert.Equal(t, "Q-002", set.Unanswered[0].QuestionID)
	assert.Equal(t, domain.ReasonNoInformation, set.Unanswered[0].Reason)
	assert.Equal(t, "Q-003", set.Unanswered[1].QuestionID)
	assert.Equal(t, "Budget not stated", set.Unanswered[1].Reason)

	assert.InDelta(t, 40.0, set.Gaps.Coverage, 1e-9)
	assert.Contains(t, set.Provenance.Warnings, `answer for unknown question "Q-099" dropped`)

	prompt := model.prompts[0]
	assert.Contains(t, prompt, "[Q-001]")
	assert.Contains(t, prompt, "=== Document: rfp.pdf ===")
	assert.Contains(t, prompt, "Uptime of 99.9 percent")
}

func TestExtract_NilRetrievalUsesModel(t *testing.T) {
	model := &fakeModel{replies: []string{`{"answers": [{"question_id": "Q-001", "answer": "EU", "confidence": 0.8}]}`}}

	x := NewAnswerExtractor(nil, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", fiveQuestions()[:2], testDocs(), Context{})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodModelFallback, set.Method)
	assert.Equal(t, 1, model.calls())
	require.Len(t, set.Answers, 1)
	require.Len(t, set.Unanswered, 1)
	assert.Equal(t, "Q-002", set.Unanswered[0].QuestionID)
}

func TestExtract_RetrievalErrorIsANonAnswer(t *testing.T) {
	questions := fiveQuestions()[:2]
	retrieval := &fakeRetrieval{
		answers: map[string]*domain.RetrievalAnswer{questions[0].Text: retrieved("EU regions only", 0.9, "rfp.pdf")},
		errs:    map[string]error{questions[1].Text: errors.New("index offline")},
	}
	model := &fakeModel{}

	x := NewAnswerExtractor(retrieval, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", questions, testDocs(), Context{})
	require.NoError(t, err)

	assert.Zero(t, model.calls())
	require.Len(t, set.Answers, 1)
	require.Len(t, set.Unanswered, 1)
	assert.Equal(t, domain.ReasonNoInformation, set.Unanswered[0].Reason)
}

func TestExtract_ParallelWorkersKeepOrder(t *testing.T) {
	var questions []domain.Question
	answers := make(map[string]*domain.RetrievalAnswer)
	for i := 1; i <= 12; i++ {
		text := fmt.Sprintf("Question number %d?", i)
		questions = append(questions, q(fmt.Sprintf("Q-%03d", i), domain.CategoryTechnical, domain.PriorityMedium, text))
		answers[text] = retrieved(fmt.Sprintf("answer %d", i), 0.9, "rfp.pdf")
	}
	retrieval := &fakeRetrieval{answers: answers, delay: time.Millisecond}

	opts := append(testOptions(nil), WithWorkers(4), WithRateLimiter(rate.NewLimiter(rate.Inf, 1)))
	x := NewAnswerExtractor(retrieval, &fakeModel{}, opts...)
	set, err := x.Extract(context.Background(), "wf-1", questions, nil, Context{})
	require.NoError(t, err)

	require.Len(t, set.Answers, 12)
	for i, a := range set.Answers {
		assert.Equal(t, questions[i].QuestionID, a.QuestionID)
		assert.Equal(t, fmt.Sprintf("answer %d", i+1), a.Text)
	}
	assert.Len(t, retrieval.asked, 12)
}

func TestExtract_NoQuestions(t *testing.T) {
	retrieval := &fakeRetrieval{}
	model := &fakeModel{}

	x := NewAnswerExtractor(retrieval, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", nil, testDocs(), Context{})
	require.NoError(t, err)

	assert.Empty(t, set.Answers)
	assert.Empty(t, set.Unanswered)
	assert.Zero(t, model.calls())
	assert.Empty(t, retrieval.asked)
}

func TestExtract_FallbackFailure(t *testing.T) {
	rec := &sleepRecorder{}
	x := NewAnswerExtractor(&fakeRetrieval{}, failingModel(3), testOptions(rec)...)

	_, err := x.Extract(context.Background(), "wf-1", fiveQuestions(), testDocs(), Context{})

	var inv *domain.InvocationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, AgentAnswerFallback, inv.Agent)
	assert.Equal(t, 3, inv.Attempts)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := append(testOptions(nil), WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)), WithWorkers(2))
	x := NewAnswerExtractor(&fakeRetrieval{}, &fakeModel{}, opts...)
	_, err := x.Extract(ctx, "wf-1", fiveQuestions(), nil, Context{})

	assert.Error(t, err)
}

func TestExtract_PatternFallback(t *testing.T) {
	model := &fakeModel{replies: []string{"Here is what I found:\nQ1: EU regions only\n- [Q-005]: 31 March\nNothing else."}}

	x := NewAnswerExtractor(nil, model, testOptions(nil)...)
	set, err := x.Extract(context.Background(), "wf-1", fiveQuestions(), testDocs(), Context{})
	require.NoError(t, err)

	require.Len(t, set.Answers, 2)
	assert.Equal(t, "Q-001", set.Answers[0].QuestionID)
	assert.Equal(t, "EU regions only", set.Answers[0].Text)
	assert.Equal(t, domain.Partial, set.Answers[0].Completeness)
	assert.Equal(t, "Q-005", set.Answers[1].QuestionID)
	assert.True(t, set.Provenance.Fallback)
	assert.Equal(t, domain.SourcePattern, set.Provenance.Source)
	assert.Len(t, set.Unanswered, 3)
}

func TestNormaliseQuestionID(t *testing.T) {
	for in, want := range map[string]string{
		"Q1":    "Q-001",
		"q-001": "Q-001",
		"Q-12":  "Q-012",
		"Q-100": "Q-100",
		"other": "other",
	} {
		assert.Equal(t, want, normaliseQuestionID(in), in)
	}
}
