package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/autorfp/internal/core/agents"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

const (
	ingestionReply = `{"document_type": "RFP", "summary": "Managed IT services tender for a council.",
"key_points": ["24/7 support"], "deadlines": ["31 March: proposals due"], "contacts": ["Jane Buyer"], "confidence": 0.9}`

	requirementsReply = "```json\n" + `{"requirements": [
  {"id": "REQ-001", "category": "technical", "description": "Provide 24/7 service desk support",
   "priority": "high", "complexity": "medium", "mandatory": true, "source_document": "rfp.txt"},
  {"id": "REQ-002", "category": "business", "description": "Fixed monthly pricing",
   "priority": "medium", "complexity": "low", "mandatory": false, "source_document": "rfp.txt"}
]}` + "\n```"

	questionsReply = `{"questions": [
  {"id": "Q-001", "category": "technical", "question": "What response time is required for P1 incidents?",
   "rationale": "Drives staffing", "priority": "high", "impact": "Pricing", "related_requirements": ["REQ-001"]},
  {"id": "Q-002", "category": "business", "question": "Is indexation allowed on the monthly price?",
   "rationale": "Margin", "priority": "medium", "impact": "Margin", "related_requirements": ["REQ-002"]}
]}`

	compilationReply = `{"title": "Response to the Managed IT Services RFP", "executive_summary": "We meet every mandatory requirement.",
"requirement_responses": [{"requirement_id": "REQ-001", "response": "24/7 desk", "compliance": "full"}],
"risks": ["Indexation unclear"], "assumptions": [], "open_questions": ["Is indexation allowed on the monthly price?"], "next_steps": ["Submit"]}`
)

// stageModel answers each agent with its own reply, chosen by the role
// instruction the prompt starts with.
type stageModel struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	gates   map[string]chan struct{}
	entered map[string]chan struct{}
	calls   map[string]int
	streams int
}

func newStageModel() *stageModel {
	return &stageModel{
		replies: map[string]string{
			driven.PromptIngestion:    ingestionReply,
			driven.PromptRequirements: requirementsReply,
			driven.PromptQuestions:    questionsReply,
			driven.PromptCompilation:  compilationReply,
		},
		fail:    map[string]error{},
		gates:   map[string]chan struct{}{},
		entered: map[string]chan struct{}{},
		calls:   map[string]int{},
	}
}

// stageOf maps a prompt back to the prompt name of its agent.
func stageOf(prompt string) string {
	for name, instruction := range agents.DefaultPrompts() {
		if strings.HasPrefix(prompt, instruction) {
			return name
		}
	}
	return "unknown"
}

// block makes calls for stage wait until the returned release func runs.
// The returned channel is closed when the first call arrives.
func (m *stageModel) block(stage string) (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{})
	m.gates[stage] = gate
	m.entered[stage] = in
	var once sync.Once
	return in, func() { once.Do(func() { close(gate) }) }
}

func (m *stageModel) failStage(stage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, stage)
		return
	}
	m.fail[stage] = err
}

func (m *stageModel) callsFor(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

func (m *stageModel) Invoke(ctx context.Context, prompt string) (string, error) {
	stage := stageOf(prompt)

	m.mu.Lock()
	m.calls[stage]++
	gate := m.gates[stage]
	if in, ok := m.entered[stage]; ok {
		close(in)
		delete(m.entered, stage)
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[stage]; err != nil {
		return "", err
	}
	reply, ok := m.replies[stage]
	if !ok {
		return "", fmt.Errorf("no reply scripted for %s", stage)
	}
	return reply, nil
}

func (m *stageModel) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	m.mu.Lock()
	m.streams++
	m.mu.Unlock()
	reply, err := m.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	for _, part := range strings.SplitAfter(reply, "\n") {
		onChunk(part)
	}
	return reply, nil
}

func (m *stageModel) ModelName() string            { return "stage-model" }
func (m *stageModel) Ping(_ context.Context) error { return nil }
func (m *stageModel) Close() error                 { return nil }

// keywordRetrieval answers questions containing a known keyword.
type keywordRetrieval struct {
	mu      sync.Mutex
	answers map[string]domain.RetrievalAnswer
	calls   int
}

func newKeywordRetrieval() *keywordRetrieval {
	return &keywordRetrieval{answers: map[string]domain.RetrievalAnswer{
		"response time": {
			Answer:     "P1 incidents require a response within 15 minutes.",
			Confidence: 0.9,
			Sources: []domain.RetrievalSource{
				{DocumentName: "rfp.txt", Content: "P1: 15 minute response", Similarity: 0.92},
			},
		},
	}}
}

func (r *keywordRetrieval) Answer(_ context.Context, question string, _ domain.RetrievalScope) (*domain.RetrievalAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for kw, a := range r.answers {
		if strings.Contains(strings.ToLower(question), kw) {
			out := a
			return &out, nil
		}
	}
	return &domain.RetrievalAnswer{Confidence: 0}, nil
}

// stepClock advances one second per call so durations are deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	svc       *WorkflowService
	repo      *memory.Repository
	model     *stageModel
	retrieval *keywordRetrieval
}

func newHarness(t *testing.T, opts ...WorkflowOption) *harness {
	t.Helper()
	h := &harness{
		repo:      memory.NewRepository(),
		model:     newStageModel(),
		retrieval: newKeywordRetrieval(),
	}
	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	set := agents.NewSet(h.model, h.retrieval,
		agents.WithRetry(agents.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}),
		agents.WithSleep(noSleep),
	)
	var n int
	var idMu sync.Mutex
	ids := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	all := append([]WorkflowOption{WithClock(clock.Now), WithIDGenerator(ids)}, opts...)
	h.svc = NewWorkflowService(h.repo, set, nil, all...)
	t.Cleanup(func() { _ = h.svc.Close() })
	return h
}

func rfpUploads() []domain.Upload {
	return []domain.Upload{
		{Filename: "rfp.txt", MIMEType: "text/plain", Content: []byte("The supplier shall provide 24/7 support. P1: 15 minute response.")},
		{Filename: "pricing.txt", MIMEType: "text/plain", Content: []byte("Pricing must be a fixed monthly fee.")},
	}
}

func (h *harness) wait(t *testing.T, id string) *domain.Workflow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wf, err := h.svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait for %s: %v", id, err)
	}
	return wf
}

var errModelDown = errors.New("model unavailable")
