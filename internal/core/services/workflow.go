package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/autorfp/internal/core/agents"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
	"github.com/custodia-labs/autorfp/internal/logger"
	"github.com/custodia-labs/autorfp/internal/telemetry"
)

// Ensure WorkflowService implements the interface.
var _ driving.WorkflowService = (*WorkflowService)(nil)

// WorkflowService is the workflow orchestrator. Steps of one workflow run
// strictly in order; independent workflows run concurrently.
type WorkflowService struct {
	repo       driven.Repository
	agents     *agents.Set
	extractors driven.ExtractorRegistry
	events     *Broadcaster
	metrics    *telemetry.Metrics
	now        func() time.Time
	newID      func() string
	stream     bool

	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup
}

// run tracks one executing pipeline.
type run struct {
	cancel atomic.Bool
	done   chan struct{}
}

// WorkflowOption configures a WorkflowService.
type WorkflowOption func(*WorkflowService)

// WithClock sets the time source.
func WithClock(now func() time.Time) WorkflowOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the identifier source for workflows and documents.
func WithIDGenerator(fn func() string) WorkflowOption {
	return func(s *WorkflowService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithStreaming makes ingestion and compilation stream model text as progress events.
func WithStreaming(enabled bool) WorkflowOption {
	return func(s *WorkflowService) {
		s.stream = enabled
	}
}

// WithWorkflowMetrics records step durations.
func WithWorkflowMetrics(m *telemetry.Metrics) WorkflowOption {
	return func(s *WorkflowService) {
		s.metrics = m
	}
}

// WithBroadcaster shares a progress broadcaster.
func WithBroadcaster(b *Broadcaster) WorkflowOption {
	return func(s *WorkflowService) {
		if b != nil {
			s.events = b
		}
	}
}

// NewWorkflowService creates a workflow orchestrator.
func NewWorkflowService(
	repo driven.Repository,
	set *agents.Set,
	extractors driven.ExtractorRegistry,
	opts ...WorkflowOption,
) *WorkflowService {
	s := &WorkflowService{
		repo:       repo,
		agents:     set,
		extractors: extractors,
		events:     NewBroadcaster(),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		active:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the uploads, creates the workflow and its documents,
// then starts the pipeline in the background.
func (s *WorkflowService) Submit(ctx context.Context, uploads []domain.Upload, projectContext map[string]any) (*domain.Workflow, error) {
	if len(uploads) == 0 {
		return nil, &domain.InvalidInputError{Field: "uploads", Reason: "at least one document is required"}
	}
	for _, u := range uploads {
		if err := u.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.now()
	wf := &domain.Workflow{
		ID:             s.newID(),
		Status:         domain.WorkflowPending,
		CurrentStep:    domain.StepIngest,
		ProjectContext: projectContext,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Claim the run before the workflow is visible so a Cancel that
	// finds it pending is observed by the step loop.
	r, err := s.claim(wf.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateWorkflow(ctx, wf); err != nil {
		s.release(wf.ID, r)
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	docs := make([]domain.Document, 0, len(uploads))
	for _, u := range uploads {
		docs = append(docs, s.newDocument(ctx, wf.ID, u, now))
	}
	if err := s.repo.SaveDocuments(ctx, docs); err != nil {
		s.release(wf.ID, r)
		return nil, fmt.Errorf("save documents: %w", err)
	}

	logger.Workflow(wf.ID).Info("submitted with %d documents", len(docs))
	return s.start(ctx, wf, domain.StepIngest, &pipelineState{}, r)
}

// newDocument extracts the text of an upload into a pending document.
// Extraction failures leave the document empty; ingestion marks it failed.
func (s *WorkflowService) newDocument(ctx context.Context, workflowID string, u domain.Upload, now time.Time) domain.Document {
	if u.MIMEType == "" && s.extractors != nil {
		u.MIMEType = s.extractors.DetectMIME(u.Filename, u.Content)
	}
	doc := domain.Document{
		ID:           s.newID(),
		WorkflowID:   workflowID,
		Filename:     u.Filename,
		StoragePath:  u.Path,
		Size:         int64(len(u.Content)),
		MIMEType:     u.MIMEType,
		Status:       domain.ProcessingPending,
		FileMetadata: map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.extractors == nil {
		doc.Content = string(u.Content)
		return doc
	}

	extractor, err := s.extractors.Get(u.MIMEType)
	if err != nil {
		doc.FileMetadata["extraction_error"] = err.Error()
		logger.Workflow(workflowID).Warn("no extractor for %s (%s): %v", u.Filename, u.MIMEType, err)
		return doc
	}
	ext, err := extractor.Extract(ctx, u)
	if err != nil {
		doc.FileMetadata["extraction_error"] = err.Error()
		logger.Workflow(workflowID).Warn("extract %s: %v", u.Filename, err)
		return doc
	}
	doc.Content = ext.Content
	for k, v := range ext.Metadata {
		doc.FileMetadata[k] = v
	}
	if ext.Title != "" {
		doc.FileMetadata["title"] = ext.Title
	}
	return doc
}

// claim registers a run for id, failing if one is already active.
func (s *WorkflowService) claim(id string) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.active[id]; running {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowActive, id)
	}
	r := &run{done: make(chan struct{})}
	s.active[id] = r
	return r, nil
}

// start moves the workflow to running and launches the step loop at step.
// The caller has claimed r. The returned workflow is a snapshot; the
// pipeline owns wf from then on.
func (s *WorkflowService) start(ctx context.Context, wf *domain.Workflow, step domain.Step, state *pipelineState, r *run) (*domain.Workflow, error) {
	now := s.now()
	wf.Status = domain.WorkflowRunning
	wf.CurrentStep = step
	wf.Progress = domain.ProgressBefore(step)
	wf.ErrorMessage = ""
	wf.EndTime = nil
	if wf.StartTime == nil {
		wf.StartTime = &now
	}
	wf.UpdatedAt = now
	if err := s.repo.UpdateWorkflow(ctx, wf); err != nil {
		s.release(wf.ID, r)
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	s.publish(wf, "started")
	snapshot := *wf

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(ctx), wf, step, state, r)
	}()
	return &snapshot, nil
}

// execute runs the steps from first to the end of the pipeline.
func (s *WorkflowService) execute(ctx context.Context, wf *domain.Workflow, first domain.Step, state *pipelineState, r *run) {
	defer s.release(wf.ID, r)

	for _, step := range domain.Steps()[first.Index():] {
		if r.cancel.Load() {
			s.metrics.StepDuration(ctx, step.String(), 0, telemetry.OutcomeCancelled)
			s.finish(ctx, wf, domain.WorkflowCancelled, "cancelled before "+step.String())
			return
		}

		wf.Advance(step, domain.ProgressBefore(step))
		if err := s.save(ctx, wf); err != nil {
			s.finish(ctx, wf, domain.WorkflowFailed, err.Error())
			return
		}
		s.publish(wf, "step started")
		logger.Section(fmt.Sprintf("%s: %s", wf.ID, step))

		start := s.now()
		err := s.runStep(ctx, wf, step, state)
		elapsed := s.now().Sub(start)
		if err != nil {
			s.metrics.StepDuration(ctx, step.String(), elapsed, telemetry.OutcomeFailure)
			stepErr := &domain.StepError{Step: step, Err: err}
			logger.Workflow(wf.ID).Warn("%v", stepErr)
			s.finish(ctx, wf, domain.WorkflowFailed, stepErr.Error())
			return
		}
		s.metrics.StepDuration(ctx, step.String(), elapsed, telemetry.OutcomeSuccess)

		wf.Advance(step, domain.ProgressAfter(step))
		if err := s.save(ctx, wf); err != nil {
			s.finish(ctx, wf, domain.WorkflowFailed, err.Error())
			return
		}
		s.publish(wf, "step completed")
	}

	s.finish(ctx, wf, domain.WorkflowCompleted, "")
}

func (s *WorkflowService) save(ctx context.Context, wf *domain.Workflow) error {
	wf.UpdatedAt = s.now()
	if err := s.repo.UpdateWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return nil
}

// finish moves the workflow into a terminal status.
func (s *WorkflowService) finish(ctx context.Context, wf *domain.Workflow, status domain.WorkflowStatus, message string) {
	now := s.now()
	wf.Finish(status, now, message)
	if status == domain.WorkflowCompleted {
		wf.Progress = 100
	}
	wf.UpdatedAt = now
	if err := s.repo.UpdateWorkflow(ctx, wf); err != nil {
		logger.Workflow(wf.ID).Warn("persist %s status: %v", status, err)
	}
	logger.Workflow(wf.ID).Info("%s after %s", status, wf.Duration().Round(time.Millisecond))
	s.publish(wf, message)
}

// release forgets a finished run, closes its event stream and wakes
// waiters. Subscribe checks the active set under the same lock, so a
// subscription is either closed here or never registered.
func (s *WorkflowService) release(id string, r *run) {
	s.mu.Lock()
	if s.active[id] == r {
		delete(s.active, id)
		s.events.CloseWorkflow(id)
	}
	s.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (s *WorkflowService) publish(wf *domain.Workflow, message string) {
	s.events.Publish(domain.ProgressEvent{
		WorkflowID: wf.ID,
		Step:       wf.CurrentStep,
		Progress:   wf.Progress,
		Status:     wf.Status,
		Message:    message,
		Time:       s.now(),
	})
}

func (s *WorkflowService) chunkPublisher(wf *domain.Workflow) func(string) {
	return func(chunk string) {
		s.events.Publish(domain.ProgressEvent{
			WorkflowID: wf.ID,
			Step:       wf.CurrentStep,
			Progress:   wf.Progress,
			Status:     wf.Status,
			Chunk:      chunk,
			Time:       s.now(),
		})
	}
}

// Retry resumes a failed or cancelled workflow at step.
func (s *WorkflowService) Retry(ctx context.Context, id string, step domain.Step) (*domain.Workflow, error) {
	if step.Index() < 0 {
		return nil, &domain.InvalidInputError{Field: "step", Reason: fmt.Sprintf("unknown step %q", step)}
	}
	wf, err := s.repo.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Status != domain.WorkflowFailed && wf.Status != domain.WorkflowCancelled {
		return nil, fmt.Errorf("%w: workflow %s is %s; only failed or cancelled workflows can be retried", domain.ErrInvalidState, id, wf.Status)
	}

	state, err := s.restore(ctx, wf.ID, step)
	if err != nil {
		return nil, err
	}

	r, err := s.claim(wf.ID)
	if err != nil {
		return nil, err
	}
	logger.Workflow(wf.ID).Info("retrying from %s", step)
	return s.start(ctx, wf, step, state, r)
}

// Cancel requests cancellation of a pending or running workflow.
func (s *WorkflowService) Cancel(ctx context.Context, id string) (*domain.Workflow, error) {
	wf, err := s.repo.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: workflow %s is already %s", domain.ErrInvalidState, id, wf.Status)
	}

	s.mu.Lock()
	r, running := s.active[id]
	if running {
		r.cancel.Store(true)
	}
	s.mu.Unlock()
	if running {
		logger.Workflow(id).Info("cancellation requested")
		return wf, nil
	}

	// Not executing in this process; nothing will observe the request.
	wf.Finish(domain.WorkflowCancelled, s.now(), "cancelled")
	if err := s.save(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// Get retrieves a workflow by ID.
func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	return s.repo.GetWorkflow(ctx, id)
}

// List returns workflows newest first.
func (s *WorkflowService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, &domain.InvalidInputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", opts.Status)}
	}
	return s.repo.ListWorkflows(ctx, opts)
}

// Documents returns the documents of a workflow.
func (s *WorkflowService) Documents(ctx context.Context, id string) ([]domain.Document, error) {
	if _, err := s.repo.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, id)
}

// Results returns the per-step results of a workflow.
func (s *WorkflowService) Results(ctx context.Context, id string) ([]domain.WorkflowResult, error) {
	if _, err := s.repo.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListResults(ctx, id)
}

// Answers returns the stored answer set. Without a stored extraction result
// the set is rebuilt from the answer rows alone.
func (s *WorkflowService) Answers(ctx context.Context, id string) (*domain.AnswerSet, error) {
	if _, err := s.repo.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	var set domain.AnswerSet
	found, err := s.decodeResult(ctx, id, domain.StepExtractAnswers, &set)
	if err != nil {
		return nil, err
	}
	if found {
		return &set, nil
	}

	answers, err := s.repo.ListAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.repo.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	set = domain.AnswerSet{Answers: answers, Method: domain.MethodRetrieval}
	agents.AnalyzeAnswers(questions, answers, nil).Apply(&set)
	return &set, nil
}

// Proposal returns the compiled response.
func (s *WorkflowService) Proposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	found, err := s.decodeResult(ctx, id, domain.StepCompileResponse, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: workflow %s has no compiled response", domain.ErrNotFound, id)
	}
	return &p, nil
}

// Stats aggregates workflow counts.
func (s *WorkflowService) Stats(ctx context.Context) (*domain.WorkflowStats, error) {
	return s.repo.WorkflowStats(ctx)
}

// Subscribe returns the progress events of a running workflow.
func (s *WorkflowService) Subscribe(id string) (<-chan domain.ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.active[id]; !running {
		ch := make(chan domain.ProgressEvent)
		close(ch)
		return ch, func() {}
	}
	return s.events.Subscribe(id)
}

// Wait blocks until the workflow stops running in this process.
func (s *WorkflowService) Wait(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.Lock()
	r, running := s.active[id]
	s.mu.Unlock()
	if running {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.repo.GetWorkflow(ctx, id)
}

// Active returns the number of pipelines executing in this process.
func (s *WorkflowService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close waits for every running pipeline to reach a terminal status.
func (s *WorkflowService) Close() error {
	s.wg.Wait()
	return nil
}

func (s *WorkflowService) decodeResult(ctx context.Context, id string, step domain.Step, v any) (bool, error) {
	res, err := s.repo.GetResult(ctx, id, step)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(res.Data, v); err != nil {
		return false, fmt.Errorf("decode %s result: %w", step, err)
	}
	return true, nil
}

// saveResult persists the output of a step as its workflow result.
func (s *WorkflowService) saveResult(ctx context.Context, wf *domain.Workflow, step domain.Step, started time.Time, out any, confidence *float64) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", step, err)
	}
	now := s.now()
	return s.repo.SaveResult(ctx, &domain.WorkflowResult{
		WorkflowID:     wf.ID,
		StepName:       step,
		Data:           data,
		Confidence:     confidence,
		ProcessingTime: now.Sub(started),
		CreatedAt:      now,
	})
}

func confidenceOf(p domain.Provenance) *float64 {
	c := p.Confidence
	return &c
}
