// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewWorkflows lists workflows, newest first.
	ViewWorkflows ViewType = iota
	// ViewDetail shows one workflow with live progress.
	ViewDetail
	// ViewAnswers shows the answer set and gaps of a workflow.
	ViewAnswers
	// ViewHelp is the help/keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewWorkflows:
		return "workflows"
	case ViewDetail:
		return "detail"
	case ViewAnswers:
		return "answers"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// WorkflowsLoaded carries a page of workflows from the service.
type WorkflowsLoaded struct {
	Workflows []domain.Workflow
	Err       error
}

// WorkflowLoaded carries one workflow and its documents.
type WorkflowLoaded struct {
	Workflow  *domain.Workflow
	Documents []domain.Document
	Err       error
}

// ProgressReceived carries one progress event of a subscribed workflow.
type ProgressReceived struct {
	Event domain.ProgressEvent
}

// ProgressClosed signals that the subscription channel was closed.
type ProgressClosed struct {
	WorkflowID string
}

// AnswersLoaded carries the answer set of a workflow.
type AnswersLoaded struct {
	WorkflowID string
	Answers    *domain.AnswerSet
	Err        error
}

// WorkflowCancelled reports the outcome of a cancel request.
type WorkflowCancelled struct {
	Workflow *domain.Workflow
	Err      error
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}
