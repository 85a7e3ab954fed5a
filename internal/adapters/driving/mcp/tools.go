package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// DocumentInput is an inline document of a submission.
type DocumentInput struct {
	Filename string `json:"filename" jsonschema:"file name including extension, used for type detection"`
	Content  string `json:"content" jsonschema:"document text"`
	MIMEType string `json:"mime_type,omitempty" jsonschema:"content type; detected from the file name when empty"`
}

// SubmitInput is the input schema for the submit_workflow tool.
type SubmitInput struct {
	Files     []string        `json:"files,omitempty" jsonschema:"paths of local files to analyse"`
	Documents []DocumentInput `json:"documents,omitempty" jsonschema:"inline documents to analyse"`
	Context   map[string]any  `json:"context,omitempty" jsonschema:"project context passed to every agent"`
}

// WorkflowInput identifies one workflow.
type WorkflowInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"the workflow identifier"`
}

// ListInput is the input schema for the list_workflows tool.
type ListInput struct {
	Status string `json:"status,omitempty" jsonschema:"only list workflows with this status"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of workflows (default 50)"`
	Offset int    `json:"offset,omitempty" jsonschema:"skip this many workflows"`
}

// RetryInput is the input schema for the retry_workflow tool.
type RetryInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"the workflow identifier"`
	Step       string `json:"step,omitempty" jsonschema:"step to resume from (default ingest)"`
}

// CleanupInput is the input schema for the cleanup_workflows tool.
type CleanupInput struct {
	OlderThanHours int `json:"older_than_hours,omitempty" jsonschema:"override the retention window, in hours"`
}

// WorkflowOutput describes one workflow.
type WorkflowOutput struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	CurrentStep  string           `json:"current_step,omitempty"`
	Progress     int              `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at"`
	EndedAt      string           `json:"ended_at,omitempty"`
	Documents    []DocumentOutput `json:"documents,omitempty"`
}

// DocumentOutput describes one ingested document.
type DocumentOutput struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Status   string `json:"status"`
}

// ListOutput is the output schema for the list_workflows tool.
type ListOutput struct {
	Workflows []WorkflowOutput `json:"workflows"`
	Count     int              `json:"count"`
}

// AnswerOutput is one answered question.
type AnswerOutput struct {
	QuestionID string   `json:"question_id"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}

// GapOutput is one question without an acceptable answer.
type GapOutput struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Reason     string `json:"reason"`
}

// AnswersOutput is the output schema for the get_answers tool.
type AnswersOutput struct {
	Method       string         `json:"method"`
	Total        int            `json:"total_questions"`
	Answered     int            `json:"answered"`
	Coverage     float64        `json:"coverage"`
	Answers      []AnswerOutput `json:"answers"`
	Unanswered   []GapOutput    `json:"unanswered,omitempty"`
	CriticalGaps []GapOutput    `json:"critical_gaps,omitempty"`
}

// RequirementOutput is the proposal's response to one requirement.
type RequirementOutput struct {
	RequirementID string `json:"requirement_id"`
	Compliance    string `json:"compliance"`
	Response      string `json:"response"`
}

// ProposalOutput is the output schema for the get_proposal tool.
type ProposalOutput struct {
	Title                string              `json:"title"`
	ExecutiveSummary     string              `json:"executive_summary"`
	RequirementResponses []RequirementOutput `json:"requirement_responses,omitempty"`
	Risks                []string            `json:"risks,omitempty"`
	Assumptions          []string            `json:"assumptions,omitempty"`
	OpenQuestions        []string            `json:"open_questions,omitempty"`
	NextSteps            []string            `json:"next_steps,omitempty"`
	Fallback             bool                `json:"fallback"`
}

// CleanupOutput is the output schema for the cleanup_workflows tool.
type CleanupOutput struct {
	Removed int `json:"removed"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "submit_workflow",
		Description: "Start analysing procurement documents. Returns the workflow id; poll get_workflow for progress",
	}, s.handleSubmit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_workflow",
		Description: "Get the status, progress and documents of a workflow",
	}, s.handleGetWorkflow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_workflows",
		Description: "List workflows, newest first",
	}, s.handleListWorkflows)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_answers",
		Description: "Get the answers, unanswered questions and coverage of a workflow",
	}, s.handleGetAnswers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_proposal",
		Description: "Get the compiled response of a completed workflow",
	}, s.handleGetProposal)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retry_workflow",
		Description: "Resume a failed or cancelled workflow from a step",
	}, s.handleRetry)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_workflow",
		Description: "Cancel a running workflow; it stops after the current step",
	}, s.handleCancel)

	if s.ports.Retention != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "cleanup_workflows",
			Description: "Delete finished workflows older than the retention window",
		}, s.handleCleanup)
	}
}

func (s *Server) handleSubmit(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	if len(input.Files) == 0 && len(input.Documents) == 0 {
		return nil, WorkflowOutput{}, ErrNoDocuments
	}

	uploads := make([]domain.Upload, 0, len(input.Files)+len(input.Documents))
	for _, path := range input.Files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, WorkflowOutput{}, fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, domain.Upload{
			Filename: filepath.Base(path),
			Path:     path,
			Content:  content,
		})
	}
	for _, doc := range input.Documents {
		uploads = append(uploads, domain.Upload{
			Filename: doc.Filename,
			MIMEType: doc.MIMEType,
			Content:  []byte(doc.Content),
		})
	}

	wf, err := s.ports.Workflows.Submit(ctx, uploads, input.Context)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, toWorkflowOutput(wf, nil), nil
}

func (s *Server) handleGetWorkflow(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WorkflowInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	wf, err := s.ports.Workflows.Get(ctx, input.WorkflowID)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	docs, err := s.ports.Workflows.Documents(ctx, wf.ID)
	if err != nil {
		return nil, WorkflowOutput{}, fmt.Errorf("listing documents: %w", err)
	}
	return nil, toWorkflowOutput(wf, docs), nil
}

func (s *Server) handleListWorkflows(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	status := domain.WorkflowStatus(input.Status)
	if status != "" && !status.IsValid() {
		return nil, ListOutput{}, &domain.InvalidInputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", input.Status)}
	}

	wfs, err := s.ports.Workflows.List(ctx, domain.ListOptions{
		Status: status,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, ListOutput{}, err
	}

	out := ListOutput{Workflows: make([]WorkflowOutput, len(wfs)), Count: len(wfs)}
	for i := range wfs {
		out.Workflows[i] = toWorkflowOutput(&wfs[i], nil)
	}
	return nil, out, nil
}

func (s *Server) handleGetAnswers(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WorkflowInput,
) (*mcp.CallToolResult, AnswersOutput, error) {
	set, err := s.ports.Workflows.Answers(ctx, input.WorkflowID)
	if err != nil {
		return nil, AnswersOutput{}, err
	}
	return nil, toAnswersOutput(set), nil
}

func (s *Server) handleGetProposal(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WorkflowInput,
) (*mcp.CallToolResult, ProposalOutput, error) {
	p, err := s.ports.Workflows.Proposal(ctx, input.WorkflowID)
	if err != nil {
		return nil, ProposalOutput{}, err
	}
	return nil, toProposalOutput(p), nil
}

func (s *Server) handleRetry(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetryInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	step := domain.StepIngest
	if input.Step != "" {
		parsed, err := domain.ParseStep(input.Step)
		if err != nil {
			return nil, WorkflowOutput{}, err
		}
		step = parsed
	}

	wf, err := s.ports.Workflows.Retry(ctx, input.WorkflowID, step)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, toWorkflowOutput(wf, nil), nil
}

func (s *Server) handleCancel(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WorkflowInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	wf, err := s.ports.Workflows.Cancel(ctx, input.WorkflowID)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, toWorkflowOutput(wf, nil), nil
}

func (s *Server) handleCleanup(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CleanupInput,
) (*mcp.CallToolResult, CleanupOutput, error) {
	var (
		n   int
		err error
	)
	if input.OlderThanHours > 0 {
		n, err = s.ports.Retention.SweepOlderThan(ctx, time.Duration(input.OlderThanHours)*time.Hour)
	} else {
		n, err = s.ports.Retention.Sweep(ctx)
	}
	if err != nil {
		return nil, CleanupOutput{}, err
	}
	return nil, CleanupOutput{Removed: n}, nil
}

func toWorkflowOutput(wf *domain.Workflow, docs []domain.Document) WorkflowOutput {
	out := WorkflowOutput{
		ID:           wf.ID,
		Status:       string(wf.Status),
		CurrentStep:  string(wf.CurrentStep),
		Progress:     wf.Progress,
		ErrorMessage: wf.ErrorMessage,
		CreatedAt:    wf.CreatedAt.Format(time.RFC3339),
	}
	if wf.EndTime != nil {
		out.EndedAt = wf.EndTime.Format(time.RFC3339)
	}
	for i := range docs {
		out.Documents = append(out.Documents, DocumentOutput{
			ID:       docs[i].ID,
			Filename: docs[i].Filename,
			MIMEType: docs[i].MIMEType,
			Status:   string(docs[i].Status),
		})
	}
	return out
}

func toAnswersOutput(set *domain.AnswerSet) AnswersOutput {
	out := AnswersOutput{
		Method:   string(set.Method),
		Total:    set.Gaps.TotalQuestions,
		Answered: set.Gaps.Answered,
		Coverage: set.Gaps.Coverage,
		Answers:  make([]AnswerOutput, len(set.Answers)),
	}
	for i := range set.Answers {
		a := &set.Answers[i]
		sources := make([]string, 0, len(a.Sources))
		for _, src := range a.Sources {
			sources = append(sources, src.DocumentName)
		}
		out.Answers[i] = AnswerOutput{
			QuestionID: a.QuestionID,
			Text:       a.Text,
			Confidence: a.Confidence,
			Sources:    sources,
		}
	}
	for _, u := range set.Unanswered {
		out.Unanswered = append(out.Unanswered, GapOutput{QuestionID: u.QuestionID, Question: u.Question, Reason: u.Reason})
	}
	for _, g := range set.Gaps.CriticalGaps {
		out.CriticalGaps = append(out.CriticalGaps, GapOutput{QuestionID: g.QuestionID, Question: g.Question, Reason: g.Reason})
	}
	return out
}

func toProposalOutput(p *domain.Proposal) ProposalOutput {
	out := ProposalOutput{
		Title:            p.Title,
		ExecutiveSummary: p.ExecutiveSummary,
		Risks:            p.Risks,
		Assumptions:      p.Assumptions,
		OpenQuestions:    p.OpenQuestions,
		NextSteps:        p.NextSteps,
		Fallback:         p.Provenance.Fallback || p.Provenance.Source != domain.SourceParsed,
	}
	for _, r := range p.RequirementResponses {
		out.RequirementResponses = append(out.RequirementResponses, RequirementOutput{
			RequirementID: r.RequirementID,
			Compliance:    r.Compliance,
			Response:      r.Response,
		})
	}
	return out
}
