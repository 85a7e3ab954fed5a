package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// WorkflowStore persists workflows. Deleting a workflow cascades to every
// record that belongs to it.
type WorkflowStore interface {
	// CreateWorkflow stores a new workflow.
	CreateWorkflow(ctx context.Context, w *domain.Workflow) error

	// UpdateWorkflow overwrites the mutable fields of a workflow.
	UpdateWorkflow(ctx context.Context, w *domain.Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)

	// ListWorkflows returns workflows newest first.
	ListWorkflows(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error)

	// DeleteWorkflow removes a workflow and its dependent records.
	DeleteWorkflow(ctx context.Context, id string) error

	// DeleteTerminalBefore removes terminal workflows that ended before cutoff.
	// Returns the deleted IDs.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// WorkflowStats aggregates workflow counts.
	WorkflowStats(ctx context.Context) (*domain.WorkflowStats, error)
}

// DocumentStore persists uploaded documents.
type DocumentStore interface {
	// SaveDocuments stores documents for a workflow.
	SaveDocuments(ctx context.Context, docs []domain.Document) error

	// UpdateDocument overwrites a document. Completed documents are immutable.
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	// ListDocuments returns a workflow's documents in upload order.
	ListDocuments(ctx context.Context, workflowID string) ([]domain.Document, error)
}

// RequirementStore persists requirements.
type RequirementStore interface {
	// ReplaceRequirements swaps the workflow's requirement batch for reqs.
	ReplaceRequirements(ctx context.Context, workflowID string, reqs []domain.Requirement) error

	// ListRequirements returns a workflow's requirements in batch order.
	ListRequirements(ctx context.Context, workflowID string) ([]domain.Requirement, error)
}

// QuestionStore persists clarification questions.
type QuestionStore interface {
	// ReplaceQuestions swaps the workflow's question batch for qs.
	ReplaceQuestions(ctx context.Context, workflowID string, qs []domain.Question) error

	// ListQuestions returns a workflow's questions in batch order.
	ListQuestions(ctx context.Context, workflowID string) ([]domain.Question, error)
}

// AnswerStore persists answers.
type AnswerStore interface {
	// ReplaceAnswers deletes every answer of the workflow, then inserts answers.
	// Answers are not versioned; the latest extraction run wins.
	ReplaceAnswers(ctx context.Context, workflowID string, answers []domain.Answer) error

	// ListAnswers returns a workflow's answers in question order.
	ListAnswers(ctx context.Context, workflowID string) ([]domain.Answer, error)
}

// ResultStore persists per-step raw outputs.
type ResultStore interface {
	// SaveResult inserts or overwrites the result keyed by (workflow, step).
	SaveResult(ctx context.Context, r *domain.WorkflowResult) error

	// GetResult retrieves the result of one step.
	GetResult(ctx context.Context, workflowID string, step domain.Step) (*domain.WorkflowResult, error)

	// ListResults returns all step results of a workflow in pipeline order.
	ListResults(ctx context.Context, workflowID string) ([]domain.WorkflowResult, error)
}

// Repository is the durable store behind every pipeline stage.
type Repository interface {
	WorkflowStore
	DocumentStore
	RequirementStore
	QuestionStore
	AnswerStore
	ResultStore

	// Close releases resources.
	Close() error
}
