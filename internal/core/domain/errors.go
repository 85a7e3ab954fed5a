package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState indicates an operation is not allowed in the workflow's current status.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrWorkflowActive indicates the workflow is already running.
	ErrWorkflowActive = errors.New("workflow already active")

	// ErrUnsupportedType indicates an unknown MIME type, provider or backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the model service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrRetrievalUnavailable indicates the retrieval service is not configured.
	ErrRetrievalUnavailable = errors.New("retrieval service unavailable")

	// ErrRateLimited indicates the remote API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// InvalidInputError reports a validation failure. It is fatal and never retried.
type InvalidInputError struct {
	// Field names the offending input.
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// InvocationError is returned once every model invocation attempt has failed.
type InvocationError struct {
	// Agent is the name of the agent that made the calls.
	Agent string

	// Attempts is how many invocations were made.
	Attempts int

	// Err is the error from the last attempt.
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: model invocation failed after %d attempts: %v", e.Agent, e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// StepError records which pipeline step aborted a workflow.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
