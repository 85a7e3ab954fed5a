package agents

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
	"github.com/custodia-labs/autorfp/internal/telemetry"
)

// Default retry policy.
const (
	DefaultRetryAttempts = 3
	DefaultBaseDelay     = time.Second
)

// Context carries accumulated pipeline state into a prompt.
type Context struct {
	// PreviousResults holds earlier stage outputs keyed by step or agent name.
	PreviousResults map[string]any

	// Project holds caller-supplied project context.
	Project map[string]any
}

// Processor turns a raw model reply into a typed output and reports how it
// was recovered. It never fails: unparseable replies become flagged fallback values.
type Processor[T any] func(raw string) (T, domain.Provenance)

// RetryPolicy bounds model invocation attempts.
type RetryPolicy struct {
	// Attempts is the total number of invocations, including the first.
	Attempts int

	// BaseDelay is multiplied by the attempt number before each retry.
	BaseDelay time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// settings are shared by every agent constructor.
type settings struct {
	retry   RetryPolicy
	sleep   SleepFunc
	prompts driven.PromptStore
	metrics *telemetry.Metrics
	now     func() time.Time

	// Answer extraction only.
	workers         int
	limiter         *rate.Limiter
	truncationLimit int
	topK            int
}

func defaultSettings() settings {
	return settings{
		retry:           RetryPolicy{Attempts: DefaultRetryAttempts, BaseDelay: DefaultBaseDelay},
		sleep:           Sleep,
		now:             time.Now,
		workers:         1,
		truncationLimit: DefaultTruncationLimit,
		topK:            DefaultTopK,
	}
}

// Option configures an agent.
type Option func(*settings)

// WithRetry sets the retry policy. Non-positive attempts are ignored.
func WithRetry(p RetryPolicy) Option {
	return func(s *settings) {
		if p.Attempts > 0 {
			s.retry.Attempts = p.Attempts
		}
		if p.BaseDelay >= 0 {
			s.retry.BaseDelay = p.BaseDelay
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *settings) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithPromptStore loads role instructions from store, falling back to the
// compiled-in defaults.
func WithPromptStore(store driven.PromptStore) Option {
	return func(s *settings) {
		s.prompts = store
	}
}

// WithMetrics records invocations, retries and fallbacks.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithClock sets the time source used for provenance timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkers bounds concurrent retrieval calls during answer extraction.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRateLimiter paces retrieval calls during answer extraction.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *settings) {
		s.limiter = l
	}
}

// WithTruncationLimit sets the per-document ceiling on the fallback path.
func WithTruncationLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.truncationLimit = n
		}
	}
}

// WithTopK caps the sources requested per question.
func WithTopK(k int) Option {
	return func(s *settings) {
		if k > 0 {
			s.topK = k
		}
	}
}

// Executor runs one named unit of AI-assisted work.
type Executor[T any] struct {
	name        string
	promptName  string
	instruction string
	model       driven.ModelClient
	process     Processor[T]
	settings
}

// NewExecutor creates an executor. promptName selects an override from the
// prompt store; instruction is used when there is none.
func NewExecutor[T any](name, promptName, instruction string, model driven.ModelClient, process Processor[T], opts ...Option) *Executor[T] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Executor[T]{
		name:        name,
		promptName:  promptName,
		instruction: instruction,
		model:       model,
		process:     process,
		settings:    s,
	}
}

// Name returns the agent name.
func (e *Executor[T]) Name() string {
	return e.name
}

// Instruction returns the current role instruction.
func (e *Executor[T]) Instruction() string {
	if e.prompts == nil || e.promptName == "" {
		return e.instruction
	}
	p, err := e.prompts.Load(e.promptName)
	if err != nil || strings.TrimSpace(p) == "" {
		return e.instruction
	}
	return p
}

// BuildPrompt concatenates the role instruction, the rendered context and the input.
func (e *Executor[T]) BuildPrompt(input string, actx Context) string {
	var b strings.Builder
	b.WriteString(e.Instruction())

	if len(actx.Project) > 0 {
		b.WriteString("\n\nProject context:\n")
		b.WriteString(render(actx.Project))
	}
	if len(actx.PreviousResults) > 0 {
		b.WriteString("\n\nPrevious results:\n")
		b.WriteString(render(actx.PreviousResults))
	}

	b.WriteString("\n\nInput:\n")
	b.WriteString(input)
	return b.String()
}

// render marshals v as indented JSON; map keys come out sorted.
func render(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// Execute invokes the model with retry and processes the reply.
// After the last failed attempt it returns a *domain.InvocationError.
func (e *Executor[T]) Execute(ctx context.Context, input string, actx Context) (T, error) {
	var zero T
	if strings.TrimSpace(input) == "" {
		return zero, &domain.InvalidInputError{Field: "input", Reason: "must be a non-empty string"}
	}

	prompt := e.BuildPrompt(input, actx)
	attempts := e.retry.Attempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		e.metrics.Invocation(ctx, e.name)
		raw, err := e.model.Invoke(ctx, prompt)
		if err == nil {
			logger.Debug("%s: reply received (%d chars, attempt %d)", e.name, len(raw), attempt)
			return e.finish(ctx, raw), nil
		}
		lastErr = err
		logger.Warn("%s: invocation attempt %d/%d failed: %v", e.name, attempt, attempts, err)

		if attempt == attempts {
			break
		}
		e.metrics.Retry(ctx, e.name)
		if err := e.sleep(ctx, e.retry.BaseDelay*time.Duration(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, &domain.InvocationError{Agent: e.name, Attempts: attempts, Err: lastErr}
}

// ExecuteStreaming is Execute with incremental delivery and no retry.
func (e *Executor[T]) ExecuteStreaming(ctx context.Context, input string, actx Context, onChunk func(string)) (T, error) {
	var zero T
	if strings.TrimSpace(input) == "" {
		return zero, &domain.InvalidInputError{Field: "input", Reason: "must be a non-empty string"}
	}
	if onChunk == nil {
		onChunk = func(string) {}
	}

	e.metrics.Invocation(ctx, e.name)
	raw, err := e.model.Stream(ctx, e.BuildPrompt(input, actx), onChunk)
	if err != nil {
		return zero, &domain.InvocationError{Agent: e.name, Attempts: 1, Err: err}
	}
	return e.finish(ctx, raw), nil
}

func (e *Executor[T]) finish(ctx context.Context, raw string) T {
	out, prov := e.process(raw)
	if prov.Fallback {
		e.metrics.Fallback(ctx, e.name)
		logger.Warn("%s: structured parse failed, recovered via %s fallback (confidence %.2f)", e.name, prov.Source, prov.Confidence)
	}
	return out
}
