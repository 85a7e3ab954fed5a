package mcp

import (
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the MCP server.
type Ports struct {
	// Workflows runs and inspects workflows.
	Workflows driving.WorkflowService

	// Retention removes expired workflows. Optional.
	Retention driving.RetentionService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Workflows == nil {
		return ErrMissingWorkflowService
	}
	return nil
}
