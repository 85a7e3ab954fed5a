package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPorts(t *testing.T) {
	svc := newFakeWorkflows()
	p := NewPorts(svc)

	require.NotNil(t, p)
	assert.Same(t, svc, p.Workflows)
	assert.NoError(t, p.Validate())
}

func TestPorts_Validate_MissingWorkflows(t *testing.T) {
	p := &Ports{}
	assert.ErrorIs(t, p.Validate(), ErrMissingWorkflowService)
}
