package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
)

// DefaultTopK is the number of sources requested per question.
const DefaultTopK = 5

// fallbackConfidence is assumed for model answers that state none.
const fallbackConfidence = 0.5

// AnswerExtractor answers every question of a workflow, through retrieval
// when it can and through a single model call when retrieval yields nothing.
type AnswerExtractor struct {
	retrieval driven.RetrievalService
	fallback  *Executor[domain.AnswerSet]
	settings
}

// NewAnswerExtractor creates an answer extractor. retrieval may be nil, in
// which case every run takes the model fallback path.
func NewAnswerExtractor(retrieval driven.RetrievalService, model driven.ModelClient, opts ...Option) *AnswerExtractor {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &AnswerExtractor{
		retrieval: retrieval,
		fallback:  NewExecutor(AgentAnswerFallback, driven.PromptAnswerFallback, answerFallbackInstruction, model, answerFallbackProcessor(s), opts...),
		settings:  s,
	}
}

// Extract produces an answer or a documented non-answer for each question.
func (x *AnswerExtractor) Extract(ctx context.Context, workflowID string, questions []domain.Question, docs []domain.Document, actx Context) (domain.AnswerSet, error) {
	set := domain.AnswerSet{
		Method:     domain.MethodRetrieval,
		Provenance: domain.Provenance{Agent: AgentAnswers, Source: domain.SourceParsed, Timestamp: x.now()},
	}
	if len(questions) == 0 {
		AnalyzeAnswers(nil, nil, nil).Apply(&set)
		return set, nil
	}

	if x.retrieval != nil {
		results, err := x.retrieve(ctx, workflowID, questions, docs)
		if err != nil {
			return domain.AnswerSet{}, err
		}
		set.Answers, set.Unanswered = x.classify(workflowID, questions, results)
	}

	if len(set.Answers) == 0 {
		logger.Warn("answers: no accepted retrieval answers for %d questions, using model fallback", len(questions))
		fb, err := x.modelFallback(ctx, workflowID, questions, docs, actx)
		if err != nil {
			return domain.AnswerSet{}, err
		}
		set = fb
	} else {
		set.Provenance.Confidence = meanConfidence(set.Answers)
	}

	AnalyzeAnswers(questions, set.Answers, set.Unanswered).Apply(&set)
	x.metrics.Coverage(ctx, set.Gaps.Coverage)
	logger.Info("answers: %d answered, %d unanswered via %s (coverage %.0f%%)",
		len(set.Answers), len(set.Unanswered), set.Method, set.Gaps.Coverage)
	return set, nil
}

// retrieve queries the retrieval service once per question with at most
// x.workers calls in flight. Results keep question order.
func (x *AnswerExtractor) retrieve(ctx context.Context, workflowID string, questions []domain.Question, docs []domain.Document) ([]*domain.RetrievalAnswer, error) {
	scope := domain.RetrievalScope{WorkflowID: workflowID, TopK: x.topK}
	for _, d := range docs {
		scope.DocumentIDs = append(scope.DocumentIDs, d.ID)
	}

	results := make([]*domain.RetrievalAnswer, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)

	for i, q := range questions {
		g.Go(func() error {
			if x.limiter != nil {
				if err := x.limiter.Wait(gctx); err != nil {
					return fmt.Errorf("rate limit: %w", err)
				}
			}
			res, err := x.retrieval.Answer(gctx, q.Text, scope)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("answers: retrieval failed for %s: %v", q.QuestionID, err)
				res = &domain.RetrievalAnswer{}
			}
			if res == nil {
				res = &domain.RetrievalAnswer{}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// classify applies the confidence thresholds to retrieval results.
func (x *AnswerExtractor) classify(workflowID string, questions []domain.Question, results []*domain.RetrievalAnswer) ([]domain.Answer, []domain.UnansweredQuestion) {
	var answers []domain.Answer
	var unanswered []domain.UnansweredQuestion
	now := x.now()

	for i, q := range questions {
		r := results[i]
		c := clamp01(r.Confidence)
		if domain.AcceptConfidence(c) {
			answers = append(answers, domain.Answer{
				WorkflowID:   workflowID,
				QuestionID:   q.QuestionID,
				Text:         r.Answer,
				Confidence:   c,
				Type:         domain.ClassifyAnswerType(c),
				Completeness: domain.ClassifyCompleteness(c),
				Sources:      citations(r.Sources),
				CreatedAt:    now,
			})
			continue
		}

		reason := domain.ReasonLowConfidence
		if c == 0 || len(r.Sources) == 0 {
			reason = domain.ReasonNoInformation
		}
		unanswered = append(unanswered, unansweredFor(q, reason))
	}
	return answers, unanswered
}

func citations(sources []domain.RetrievalSource) []domain.Citation {
	out := make([]domain.Citation, 0, len(sources))
	for _, s := range sources {
		name := s.DocumentName
		if name == "" {
			name = s.DocumentID
		}
		out = append(out, domain.Citation{
			DocumentName: name,
			Excerpt:      s.Content,
			Relevance:    clamp01(s.Similarity),
		})
	}
	return out
}

func unansweredFor(q domain.Question, reason string) domain.UnansweredQuestion {
	return domain.UnansweredQuestion{
		QuestionID: q.QuestionID,
		Question:   q.Text,
		Category:   q.Category,
		Priority:   q.Priority,
		Reason:     reason,
	}
}

// modelFallback answers every question in one model call over the
// truncated document content.
func (x *AnswerExtractor) modelFallback(ctx context.Context, workflowID string, questions []domain.Question, docs []domain.Document, actx Context) (domain.AnswerSet, error) {
	set, err := x.fallback.Execute(ctx, x.fallbackInput(questions, docs), actx)
	if err != nil {
		return domain.AnswerSet{}, err
	}
	x.reconcile(&set, workflowID, questions)
	set.Method = domain.MethodModelFallback
	return set, nil
}

func (x *AnswerExtractor) fallbackInput(questions []domain.Question, docs []domain.Document) string {
	texts := make([]string, len(questions))
	var b strings.Builder
	b.WriteString("Questions:\n")
	for i, q := range questions {
		texts[i] = q.Text
		fmt.Fprintf(&b, "[%s] (%s, %s priority) %s\n", q.QuestionID, q.Category, q.Priority, q.Text)
	}

	b.WriteString("\nDocuments:\n")
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "=== Document: %s ===\n%s\n\n", d.Filename, Truncate(d.Content, texts, x.truncationLimit))
	}
	return b.String()
}

// reconcile ties model answers back to the question set: unknown IDs are
// dropped, unlabelled answers take the question at their position, answers
// are put in question order and every remaining question becomes unanswered.
func (x *AnswerExtractor) reconcile(set *domain.AnswerSet, workflowID string, questions []domain.Question) {
	now := x.now()
	byID := make(map[string]int, 2*len(questions))
	for i, q := range questions {
		byID[normaliseQuestionID(q.QuestionID)] = i
		byID[q.QuestionID] = i
	}

	slots := make([]*domain.Answer, len(questions))
	for i := range set.Answers {
		a := set.Answers[i]
		idx, ok := byID[a.QuestionID]
		if !ok && a.QuestionID != "" {
			idx, ok = byID[normaliseQuestionID(a.QuestionID)]
		}
		if !ok && a.QuestionID == "" && i < len(questions) && slots[i] == nil {
			idx, ok = i, true
		}
		if !ok {
			set.Provenance.Warnings = append(set.Provenance.Warnings, fmt.Sprintf("answer for unknown question %q dropped", a.QuestionID))
			logger.Warn("answers: fallback returned unknown question %q", a.QuestionID)
			continue
		}
		if slots[idx] != nil {
			continue
		}
		a.QuestionID = questions[idx].QuestionID
		a.WorkflowID = workflowID
		a.CreatedAt = now
		slots[idx] = &a
	}

	reasons := make(map[string]string, len(set.Unanswered))
	for _, u := range set.Unanswered {
		reasons[u.QuestionID] = u.Reason
	}

	set.Answers = set.Answers[:0]
	set.Unanswered = nil
	for i, q := range questions {
		if slots[i] != nil {
			set.Answers = append(set.Answers, *slots[i])
			continue
		}
		reason := reasons[q.QuestionID]
		if reason == "" {
			reason = domain.ReasonNoInformation
		}
		set.Unanswered = append(set.Unanswered, unansweredFor(q, reason))
	}
}

func answerFallbackProcessor(s settings) Processor[domain.AnswerSet] {
	return func(raw string) (domain.AnswerSet, domain.Provenance) {
		fields, prov, ok := decodeReply(AgentAnswerFallback, raw, s.now)
		if !ok {
			set := domain.AnswerSet{Answers: answerPatterns(raw)}
			set.Provenance = patternProvenance(AgentAnswerFallback, s.now())
			return set, set.Provenance
		}

		ensureLists(fields, "answers", "unanswered")
		var set domain.AnswerSet
		for _, item := range listOf(fields, "answers") {
			text := str(item, "answer", "text")
			if text == "" {
				prov.Warnings = append(prov.Warnings, warnMissing(AgentAnswerFallback, item, "answer")...)
				continue
			}
			c, stated := number(item, "confidence")
			if !stated {
				prov.Warnings = append(prov.Warnings, warnMissing(AgentAnswerFallback, item, "confidence")...)
				c = fallbackConfidence
			}
			c = clamp01(c)
			ensureLists(item, "sources")
			set.Answers = append(set.Answers, domain.Answer{
				QuestionID:   str(item, "question_id", "id"),
				Text:         text,
				Confidence:   c,
				Type:         answerType(str(item, "answer_type", "type"), c),
				Completeness: completeness(str(item, "completeness"), c),
				Sources:      sourceList(item),
			})
		}
		for _, item := range listOf(fields, "unanswered") {
			set.Unanswered = append(set.Unanswered, domain.UnansweredQuestion{
				QuestionID: str(item, "question_id", "id"),
				Reason:     str(item, "reason"),
			})
		}

		prov.Confidence = meanConfidence(set.Answers)
		set.Provenance = prov
		return set, prov
	}
}

func answerType(s string, c float64) domain.AnswerType {
	switch t := domain.AnswerType(strings.ToLower(s)); t {
	case domain.AnswerDirect, domain.AnswerInferred:
		return t
	default:
		return domain.ClassifyAnswerType(c)
	}
}

func completeness(s string, c float64) domain.Completeness {
	switch v := domain.Completeness(strings.ToLower(s)); v {
	case domain.Complete, domain.Partial:
		return v
	default:
		return domain.ClassifyCompleteness(c)
	}
}

func sourceList(item map[string]any) []domain.Citation {
	var out []domain.Citation
	for _, src := range listOf(item, "sources") {
		rel, _ := number(src, "relevance")
		out = append(out, domain.Citation{
			DocumentName: str(src, "document", "document_name"),
			Excerpt:      str(src, "excerpt", "content"),
			Relevance:    clamp01(rel),
		})
	}
	return out
}

func meanConfidence(answers []domain.Answer) float64 {
	if len(answers) == 0 {
		return 0
	}
	var sum float64
	for _, a := range answers {
		sum += a.Confidence
	}
	return sum / float64(len(answers))
}

var labelledAnswer = regexp.MustCompile(`^\s*[-*]?\s*\[?(Q-?\d+)\]?\s*[:.)-]\s*(.+)$`)

// answerPatterns recovers "Q-001: answer" lines from an unstructured reply.
func answerPatterns(raw string) []domain.Answer {
	var answers []domain.Answer
	for _, line := range strings.Split(raw, "\n") {
		m := labelledAnswer.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		answers = append(answers, domain.Answer{
			QuestionID:   normaliseQuestionID(m[1]),
			Text:         strings.TrimSpace(m[2]),
			Confidence:   PatternConfidence,
			Type:         domain.AnswerInferred,
			Completeness: domain.Partial,
		})
	}
	return answers
}

// normaliseQuestionID turns "Q1" or "q-001" into "Q-001".
func normaliseQuestionID(id string) string {
	digits := strings.TrimLeft(strings.ToUpper(id), "Q-")
	var n int
	if _, err := fmt.Sscanf(digits, "%d", &n); err != nil {
		return id
	}
	return fmt.Sprintf("Q-%03d", n)
}
