package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// WorkflowService runs and inspects procurement analysis workflows.
type WorkflowService interface {
	// Submit validates the uploads, creates a workflow and starts it in the
	// background. It returns as soon as the workflow is running.
	Submit(ctx context.Context, uploads []domain.Upload, projectContext map[string]any) (*domain.Workflow, error)

	// Retry resumes a failed or cancelled workflow at step, reusing the
	// stored results of every earlier step.
	Retry(ctx context.Context, id string, step domain.Step) (*domain.Workflow, error)

	// Cancel requests cancellation. It takes effect between steps.
	Cancel(ctx context.Context, id string) (*domain.Workflow, error)

	// Get retrieves a workflow by ID.
	Get(ctx context.Context, id string) (*domain.Workflow, error)

	// List returns workflows newest first.
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error)

	// Documents returns the documents of a workflow.
	Documents(ctx context.Context, id string) ([]domain.Document, error)

	// Results returns the per-step results of a workflow in pipeline order.
	Results(ctx context.Context, id string) ([]domain.WorkflowResult, error)

	// Answers returns the answer set of a workflow.
	Answers(ctx context.Context, id string) (*domain.AnswerSet, error)

	// Proposal returns the compiled response of a completed workflow.
	Proposal(ctx context.Context, id string) (*domain.Proposal, error)

	// Stats aggregates workflow counts.
	Stats(ctx context.Context) (*domain.WorkflowStats, error)

	// Subscribe returns progress events of a running workflow. The channel is
	// closed when the workflow reaches a terminal status, or immediately if it
	// is not running. The returned function unsubscribes.
	Subscribe(id string) (<-chan domain.ProgressEvent, func())

	// Wait blocks until the workflow stops running or ctx is done.
	Wait(ctx context.Context, id string) (*domain.Workflow, error)
}

// RetentionService removes expired workflows.
type RetentionService interface {
	// Sweep deletes terminal workflows older than the configured window.
	Sweep(ctx context.Context) (int, error)

	// SweepOlderThan deletes terminal workflows that ended more than age ago.
	SweepOlderThan(ctx context.Context, age time.Duration) (int, error)
}
