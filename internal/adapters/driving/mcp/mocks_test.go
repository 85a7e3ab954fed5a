package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// mockWorkflowService is a mock implementation of driving.WorkflowService.
type mockWorkflowService struct {
	workflow  *domain.Workflow
	workflows []domain.Workflow
	documents []domain.Document
	answers   *domain.AnswerSet
	proposal  *domain.Proposal
	err       error

	uploads   []domain.Upload
	context   map[string]any
	listOpts  domain.ListOptions
	retryStep domain.Step
}

func (m *mockWorkflowService) Submit(_ context.Context, uploads []domain.Upload, pc map[string]any) (*domain.Workflow, error) {
	m.uploads, m.context = uploads, pc
	return m.workflow, m.err
}

func (m *mockWorkflowService) Retry(_ context.Context, _ string, step domain.Step) (*domain.Workflow, error) {
	m.retryStep = step
	return m.workflow, m.err
}

func (m *mockWorkflowService) Cancel(_ context.Context, _ string) (*domain.Workflow, error) {
	return m.workflow, m.err
}

func (m *mockWorkflowService) Get(_ context.Context, _ string) (*domain.Workflow, error) {
	return m.workflow, m.err
}

func (m *mockWorkflowService) List(_ context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	m.listOpts = opts
	return m.workflows, m.err
}

func (m *mockWorkflowService) Documents(_ context.Context, _ string) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockWorkflowService) Results(_ context.Context, _ string) ([]domain.WorkflowResult, error) {
	return nil, m.err
}

func (m *mockWorkflowService) Answers(_ context.Context, _ string) (*domain.AnswerSet, error) {
	if m.answers == nil && m.err == nil {
		return nil, domain.ErrNotFound
	}
	return m.answers, m.err
}

func (m *mockWorkflowService) Proposal(_ context.Context, _ string) (*domain.Proposal, error) {
	if m.proposal == nil && m.err == nil {
		return nil, domain.ErrNotFound
	}
	return m.proposal, m.err
}

func (m *mockWorkflowService) Stats(_ context.Context) (*domain.WorkflowStats, error) {
	return &domain.WorkflowStats{}, m.err
}

func (m *mockWorkflowService) Subscribe(_ string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent)
	close(ch)
	return ch, func() {}
}

func (m *mockWorkflowService) Wait(_ context.Context, _ string) (*domain.Workflow, error) {
	return m.workflow, m.err
}

// mockRetentionService is a mock implementation of driving.RetentionService.
type mockRetentionService struct {
	removed int
	age     time.Duration
	err     error
}

func (m *mockRetentionService) Sweep(_ context.Context) (int, error) {
	return m.removed, m.err
}

func (m *mockRetentionService) SweepOlderThan(_ context.Context, age time.Duration) (int, error) {
	m.age = age
	return m.removed, m.err
}

func sampleWorkflow() *domain.Workflow {
	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	end := created.Add(3 * time.Minute)
	return &domain.Workflow{
		ID:          "wf-123",
		Status:      domain.WorkflowCompleted,
		CurrentStep: domain.StepCompileResponse,
		Progress:    100,
		CreatedAt:   created,
		StartTime:   &created,
		EndTime:     &end,
	}
}
