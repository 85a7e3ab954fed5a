// Package mcp provides an MCP (Model Context Protocol) server adapter for autorfp.
// It lets AI assistants submit procurement documents and read the analysis.
package mcp

import "errors"

// ErrMissingWorkflowService is returned when the workflow service is not provided.
var ErrMissingWorkflowService = errors.New("mcp: workflow service is required")

// ErrNoDocuments is returned when a submission carries neither files nor documents.
var ErrNoDocuments = errors.New("mcp: at least one file or document is required")
