package domain

import (
	"fmt"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow.
type WorkflowStatus string

// Workflow statuses. A workflow moves pending -> running -> one terminal state.
const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// IsValid returns true if the status is recognised.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed, failed and cancelled.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// String returns the string representation.
func (s WorkflowStatus) String() string {
	return string(s)
}

// Step names one stage of the pipeline.
type Step string

// Pipeline steps in execution order.
const (
	StepIngest              Step = "ingest"
	StepAnalyzeRequirements Step = "analyze-requirements"
	StepGenerateQuestions   Step = "generate-questions"
	StepExtractAnswers      Step = "extract-answers"
	StepCompileResponse     Step = "compile-response"
)

// stepWeights are the progress contributions of each step. They sum to 100.
var stepWeights = map[Step]int{
	StepIngest:              20,
	StepAnalyzeRequirements: 20,
	StepGenerateQuestions:   15,
	StepExtractAnswers:      30,
	StepCompileResponse:     15,
}

// Steps returns the pipeline steps in execution order.
func Steps() []Step {
	return []Step{
		StepIngest,
		StepAnalyzeRequirements,
		StepGenerateQuestions,
		StepExtractAnswers,
		StepCompileResponse,
	}
}

// ParseStep converts a step name into a Step.
func ParseStep(name string) (Step, error) {
	s := Step(name)
	if _, ok := stepWeights[s]; !ok {
		return "", &InvalidInputError{Field: "step", Reason: fmt.Sprintf("unknown step %q", name)}
	}
	return s, nil
}

// String returns the string representation.
func (s Step) String() string {
	return string(s)
}

// Index returns the position of the step in the pipeline, or -1.
func (s Step) Index() int {
	for i, step := range Steps() {
		if step == s {
			return i
		}
	}
	return -1
}

// StepWeight returns the progress weight of a step.
func StepWeight(s Step) int {
	return stepWeights[s]
}

// ProgressBefore returns the cumulative progress of every step preceding s.
func ProgressBefore(s Step) int {
	total := 0
	for _, step := range Steps() {
		if step == s {
			return total
		}
		total += stepWeights[step]
	}
	return total
}

// ProgressAfter returns the cumulative progress once s has completed.
func ProgressAfter(s Step) int {
	return ProgressBefore(s) + stepWeights[s]
}

// Workflow is one end-to-end run of the pipeline over one document set.
// It is created and mutated only by the orchestrator.
type Workflow struct {
	// ID is the opaque workflow identifier.
	ID string

	// Status is the lifecycle state.
	Status WorkflowStatus

	// CurrentStep is the step running now, or the last one reached.
	CurrentStep Step

	// Progress is 0-100 and never decreases while Status is running.
	Progress int

	// ProjectContext is caller-supplied context passed to every agent.
	ProjectContext map[string]any

	// StartTime is when the workflow entered running.
	StartTime *time.Time

	// EndTime is set once, on the transition to a terminal status.
	EndTime *time.Time

	// ErrorMessage holds the failure reason for failed workflows.
	ErrorMessage string

	// CreatedAt is when the workflow was submitted.
	CreatedAt time.Time

	// UpdatedAt is when the workflow was last persisted.
	UpdatedAt time.Time
}

// Advance moves progress forward. Lower values are ignored while running.
func (w *Workflow) Advance(step Step, progress int) {
	w.CurrentStep = step
	if progress > 100 {
		progress = 100
	}
	if w.Status == WorkflowRunning && progress < w.Progress {
		return
	}
	w.Progress = progress
}

// Finish moves the workflow into a terminal status and stamps EndTime once.
func (w *Workflow) Finish(status WorkflowStatus, at time.Time, message string) {
	w.Status = status
	w.ErrorMessage = message
	if w.EndTime == nil {
		t := at
		w.EndTime = &t
	}
}

// Duration returns the elapsed run time, or zero if the workflow never started.
func (w *Workflow) Duration() time.Duration {
	if w.StartTime == nil {
		return 0
	}
	if w.EndTime == nil {
		return time.Since(*w.StartTime)
	}
	return w.EndTime.Sub(*w.StartTime)
}

// ProgressEvent is a best-effort notification of a workflow transition.
type ProgressEvent struct {
	WorkflowID string
	Step       Step
	Progress   int
	Status     WorkflowStatus

	// Message is a short human-readable note, such as an error.
	Message string

	// Chunk carries streamed model text when streaming is enabled.
	Chunk string

	Time time.Time
}

// ListOptions filters and pages workflow listings.
type ListOptions struct {
	// Status restricts results to one status when set.
	Status WorkflowStatus

	// Limit caps the number of results. Zero means the store default.
	Limit int

	// Offset skips results for paging.
	Offset int
}

// DefaultListLimit is the page size used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// EffectiveLimit returns Limit, or DefaultListLimit when Limit is not positive.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// WorkflowStats aggregates workflow counts and outcomes.
type WorkflowStats struct {
	Total           int
	ByStatus        map[WorkflowStatus]int
	AverageDuration time.Duration
}
