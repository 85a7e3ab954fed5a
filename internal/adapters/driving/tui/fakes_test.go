package tui

import (
	"context"
	"sync"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// fakeWorkflows is an in-memory driving.WorkflowService.
type fakeWorkflows struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow
	order     []string
	documents map[string][]domain.Document
	answers   map[string]*domain.AnswerSet
	subs      map[string]chan domain.ProgressEvent

	listErr   error
	getErr    error
	cancelErr error
	cancelled []string
}

func newFakeWorkflows(wfs ...domain.Workflow) *fakeWorkflows {
	f := &fakeWorkflows{
		workflows: make(map[string]*domain.Workflow),
		documents: make(map[string][]domain.Document),
		answers:   make(map[string]*domain.AnswerSet),
		subs:      make(map[string]chan domain.ProgressEvent),
	}
	for i := range wfs {
		wf := wfs[i]
		f.workflows[wf.ID] = &wf
		f.order = append(f.order, wf.ID)
	}
	return f
}

func (f *fakeWorkflows) Submit(_ context.Context, _ []domain.Upload, _ map[string]any) (*domain.Workflow, error) {
	return nil, domain.ErrInvalidInput
}

func (f *fakeWorkflows) Retry(_ context.Context, id string, _ domain.Step) (*domain.Workflow, error) {
	return f.Get(context.Background(), id)
}

func (f *fakeWorkflows) Cancel(_ context.Context, id string) (*domain.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	wf, ok := f.workflows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	f.cancelled = append(f.cancelled, id)
	cp := *wf
	return &cp, nil
}

func (f *fakeWorkflows) Get(_ context.Context, id string) (*domain.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	wf, ok := f.workflows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (f *fakeWorkflows) List(_ context.Context, _ domain.ListOptions) ([]domain.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Workflow, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.workflows[id])
	}
	return out, nil
}

func (f *fakeWorkflows) Documents(_ context.Context, id string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents[id], nil
}

func (f *fakeWorkflows) Results(_ context.Context, _ string) ([]domain.WorkflowResult, error) {
	return nil, nil
}

func (f *fakeWorkflows) Answers(_ context.Context, id string) (*domain.AnswerSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.answers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return set, nil
}

func (f *fakeWorkflows) Proposal(_ context.Context, _ string) (*domain.Proposal, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeWorkflows) Stats(_ context.Context) (*domain.WorkflowStats, error) {
	return &domain.WorkflowStats{}, nil
}

func (f *fakeWorkflows) Subscribe(id string) (<-chan domain.ProgressEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.ProgressEvent, 16)
	wf, ok := f.workflows[id]
	if !ok || wf.Status.IsTerminal() {
		close(ch)
		return ch, func() {}
	}
	f.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.subs[id] == ch {
				delete(f.subs, id)
				close(ch)
			}
		})
	}
}

func (f *fakeWorkflows) Wait(ctx context.Context, id string) (*domain.Workflow, error) {
	return f.Get(ctx, id)
}

// publish sends one event to the live subscriber of id.
func (f *fakeWorkflows) publish(ev domain.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[ev.WorkflowID]; ok {
		ch <- ev
	}
}

// finish moves id to status and closes its subscription.
func (f *fakeWorkflows) finish(id string, status domain.WorkflowStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[id].Status = status
	f.workflows[id].Progress = 100
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

func (f *fakeWorkflows) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
