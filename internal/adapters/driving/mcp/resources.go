package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for autorfp resources.
	uriScheme = "autorfp://"

	jsonMIME = "application/json"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "workflows",
		Name:        "workflows",
		Description: "The most recent workflows",
		MIMEType:    jsonMIME,
	}, s.handleWorkflowsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "workflows/{workflowId}",
		Name:        "workflow",
		Description: "Status and documents of one workflow",
		MIMEType:    jsonMIME,
	}, s.handleWorkflowResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "workflows/{workflowId}/answers",
		Name:        "workflow-answers",
		Description: "Answers and gap analysis of one workflow",
		MIMEType:    jsonMIME,
	}, s.handleWorkflowResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "workflows/{workflowId}/proposal",
		Name:        "workflow-proposal",
		Description: "Compiled response of one completed workflow",
		MIMEType:    jsonMIME,
	}, s.handleWorkflowResource)
}

// handleWorkflowsResource lists the newest workflows.
func (s *Server) handleWorkflowsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	wfs, err := s.ports.Workflows.List(ctx, domain.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	out := make([]WorkflowOutput, len(wfs))
	for i := range wfs {
		out[i] = toWorkflowOutput(&wfs[i], nil)
	}
	return jsonResource(req.Params.URI, out)
}

// handleWorkflowResource serves a workflow and its answers and proposal.
func (s *Server) handleWorkflowResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, view := parseWorkflowURI(uri)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	var (
		payload any
		err     error
	)
	switch view {
	case "":
		var wf *domain.Workflow
		if wf, err = s.ports.Workflows.Get(ctx, id); err == nil {
			var docs []domain.Document
			docs, err = s.ports.Workflows.Documents(ctx, id)
			payload = toWorkflowOutput(wf, docs)
		}
	case "answers":
		var set *domain.AnswerSet
		if set, err = s.ports.Workflows.Answers(ctx, id); err == nil {
			payload = toAnswersOutput(set)
		}
	case "proposal":
		var p *domain.Proposal
		if p, err = s.ports.Workflows.Proposal(ctx, id); err == nil {
			payload = toProposalOutput(p)
		}
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}

	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return jsonResource(uri, payload)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIME,
			Text:     string(data),
		}},
	}, nil
}

// parseWorkflowURI splits autorfp://workflows/{id}[/{view}] into its parts.
func parseWorkflowURI(uri string) (id, view string) {
	const prefix = uriScheme + "workflows/"
	if !strings.HasPrefix(uri, prefix) {
		return "", ""
	}
	rest := strings.TrimPrefix(uri, prefix)
	id, view, _ = strings.Cut(rest, "/")
	return id, view
}
