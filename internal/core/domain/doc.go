// Package domain defines the core business entities for autorfp.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Workflow: One end-to-end run of the pipeline over a document set
//   - Document: An uploaded procurement file and its extracted text
//   - Requirement, Question, Answer: The records each stage produces
//   - WorkflowResult: The per-step raw output kept for audit and resumption
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
