package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// fakeModel replays scripted replies and errors, one per call.
type fakeModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
	streams int
}

func (f *fakeModel) Invoke(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func (f *fakeModel) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	reply, err := f.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	for _, w := range strings.SplitAfter(reply, " ") {
		onChunk(w)
	}
	return reply, nil
}

func (f *fakeModel) ModelName() string            { return "fake" }
func (f *fakeModel) Ping(_ context.Context) error { return nil }
func (f *fakeModel) Close() error                 { return nil }

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func failingModel(n int) *fakeModel {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = errors.New("service unavailable")
	}
	return &fakeModel{errs: errs}
}

// sleepRecorder records backoff delays without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// fakeRetrieval returns scripted answers keyed by question text.
type fakeRetrieval struct {
	mu      sync.Mutex
	answers map[string]*domain.RetrievalAnswer
	errs    map[string]error
	asked   []string
	scopes  []domain.RetrievalScope
	delay   time.Duration
}

func (f *fakeRetrieval) Answer(ctx context.Context, question string, scope domain.RetrievalScope) (*domain.RetrievalAnswer, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, question)
	f.scopes = append(f.scopes, scope)
	if err := f.errs[question]; err != nil {
		return nil, err
	}
	if a, ok := f.answers[question]; ok {
		return a, nil
	}
	return &domain.RetrievalAnswer{}, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions(rec *sleepRecorder) []Option {
	if rec == nil {
		rec = &sleepRecorder{}
	}
	return []Option{
		WithSleep(rec.sleep),
		WithClock(func() time.Time { return fixedNow }),
	}
}

// stubPrompts is an in-memory prompt store.
type stubPrompts map[string]string

func (s stubPrompts) Load(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (s stubPrompts) Reload() {}
