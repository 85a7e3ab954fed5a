// Package tui provides an interactive terminal user interface for autorfp.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the TUI.
type Ports struct {
	// Workflows runs and inspects workflows.
	Workflows driving.WorkflowService
}

// NewPorts creates a new Ports aggregate.
func NewPorts(workflows driving.WorkflowService) *Ports {
	return &Ports{Workflows: workflows}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Workflows == nil {
		return ErrMissingWorkflowService
	}
	return nil
}
