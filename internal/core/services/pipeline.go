package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/agents"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/logger"
)

// pipelineState is the accumulated output of completed steps.
type pipelineState struct {
	docs         []domain.Document
	summaries    []domain.IngestionSummary
	requirements []domain.Requirement
	questions    []domain.Question
	answers      domain.AnswerSet
}

// agentContext passes the document summaries to every step after ingestion.
// Later stages receive their direct inputs explicitly.
func (p *pipelineState) agentContext(wf *domain.Workflow, step domain.Step) agents.Context {
	prev := make(map[string]any)
	if step.Index() > domain.StepIngest.Index() && len(p.summaries) > 0 {
		prev[domain.StepIngest.String()] = p.summaries
	}
	return agents.Context{PreviousResults: prev, Project: wf.ProjectContext}
}

// usableDocuments returns documents with extracted text that did not fail ingestion.
func (p *pipelineState) usableDocuments() []domain.Document {
	out := make([]domain.Document, 0, len(p.docs))
	for _, d := range p.docs {
		if d.Status != domain.ProcessingFailed && strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}

func (s *WorkflowService) runStep(ctx context.Context, wf *domain.Workflow, step domain.Step, state *pipelineState) error {
	switch step {
	case domain.StepIngest:
		return s.ingest(ctx, wf, state)
	case domain.StepAnalyzeRequirements:
		return s.analyzeRequirements(ctx, wf, state)
	case domain.StepGenerateQuestions:
		return s.generateQuestions(ctx, wf, state)
	case domain.StepExtractAnswers:
		return s.extractAnswers(ctx, wf, state)
	case domain.StepCompileResponse:
		return s.compileResponse(ctx, wf, state)
	default:
		return fmt.Errorf("%w: step %q", domain.ErrUnsupportedType, step)
	}
}

// ingest summarises every document not yet completed, including ones a
// previous run failed on. Documents without text are marked failed and
// skipped; the step fails only if none can be ingested.
func (s *WorkflowService) ingest(ctx context.Context, wf *domain.Workflow, state *pipelineState) error {
	started := s.now()
	docs, err := s.repo.ListDocuments(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	actx := state.agentContext(wf, domain.StepIngest)
	state.summaries = state.summaries[:0]
	for i := range docs {
		doc := &docs[i]
		if doc.IsFinal() {
			if summary, ok := summaryOf(doc); ok {
				state.summaries = append(state.summaries, summary)
			}
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			if doc.Status != domain.ProcessingFailed {
				logger.Workflow(wf.ID).Warn("document %s has no text, skipping", doc.Filename)
				if err := s.updateDocument(ctx, doc, domain.ProcessingFailed, nil); err != nil {
					return err
				}
			}
			continue
		}

		if err := s.updateDocument(ctx, doc, domain.ProcessingProcessing, nil); err != nil {
			return err
		}
		var summary domain.IngestionSummary
		if s.stream {
			summary, err = s.agents.Ingestion.IngestStreaming(ctx, doc, actx, s.chunkPublisher(wf))
		} else {
			summary, err = s.agents.Ingestion.Ingest(ctx, doc, actx)
		}
		if err != nil {
			if uerr := s.updateDocument(ctx, doc, domain.ProcessingFailed, nil); uerr != nil {
				logger.Workflow(wf.ID).Warn("mark %s failed: %v", doc.Filename, uerr)
			}
			return fmt.Errorf("ingest %s: %w", doc.Filename, err)
		}
		if err := s.updateDocument(ctx, doc, domain.ProcessingCompleted, &summary); err != nil {
			return err
		}
		state.summaries = append(state.summaries, summary)
	}
	state.docs = docs

	if len(state.summaries) == 0 {
		return &domain.InvalidInputError{Field: "documents", Reason: "no document contained extractable text"}
	}
	return s.saveResult(ctx, wf, domain.StepIngest, started, state.summaries, meanProvenance(state.summaries))
}

func (s *WorkflowService) updateDocument(ctx context.Context, doc *domain.Document, status domain.ProcessingStatus, summary *domain.IngestionSummary) error {
	doc.Status = status
	doc.UpdatedAt = s.now()
	if summary != nil {
		data, err := toMap(summary)
		if err != nil {
			return err
		}
		doc.ExtractedData = data
	}
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *WorkflowService) analyzeRequirements(ctx context.Context, wf *domain.Workflow, state *pipelineState) error {
	started := s.now()
	analysis, err := s.agents.Requirements.Analyze(ctx, state.usableDocuments(), state.agentContext(wf, domain.StepAnalyzeRequirements))
	if err != nil {
		return err
	}

	now := s.now()
	for i := range analysis.Requirements {
		analysis.Requirements[i].WorkflowID = wf.ID
		analysis.Requirements[i].CreatedAt = now
	}
	if err := s.repo.ReplaceRequirements(ctx, wf.ID, analysis.Requirements); err != nil {
		return fmt.Errorf("save requirements: %w", err)
	}
	state.requirements = analysis.Requirements
	logger.Workflow(wf.ID).Info("%d requirements", len(analysis.Requirements))
	return s.saveResult(ctx, wf, domain.StepAnalyzeRequirements, started, analysis, confidenceOf(analysis.Provenance))
}

// generateQuestions runs once over all requirements. Without requirements
// there is nothing to clarify and no model call is made.
func (s *WorkflowService) generateQuestions(ctx context.Context, wf *domain.Workflow, state *pipelineState) error {
	started := s.now()
	set := domain.QuestionSet{Provenance: domain.Provenance{Agent: agents.AgentQuestions, Source: domain.SourceParsed, Timestamp: started}}
	if len(state.requirements) > 0 {
		var err error
		set, err = s.agents.Questions.Generate(ctx, state.requirements, state.agentContext(wf, domain.StepGenerateQuestions))
		if err != nil {
			return err
		}
	}

	now := s.now()
	for i := range set.Questions {
		set.Questions[i].WorkflowID = wf.ID
		set.Questions[i].CreatedAt = now
	}
	if err := s.repo.ReplaceQuestions(ctx, wf.ID, set.Questions); err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	state.questions = set.Questions
	logger.Workflow(wf.ID).Info("%d clarification questions", len(set.Questions))
	return s.saveResult(ctx, wf, domain.StepGenerateQuestions, started, set, confidenceOf(set.Provenance))
}

// extractAnswers replaces every stored answer of the workflow with the new
// set. Answers are not versioned: the latest run wins.
func (s *WorkflowService) extractAnswers(ctx context.Context, wf *domain.Workflow, state *pipelineState) error {
	started := s.now()
	set, err := s.agents.Answers.Extract(ctx, wf.ID, state.questions, state.usableDocuments(), state.agentContext(wf, domain.StepExtractAnswers))
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceAnswers(ctx, wf.ID, set.Answers); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	state.answers = set
	coverage := set.Gaps.Coverage / 100
	return s.saveResult(ctx, wf, domain.StepExtractAnswers, started, set, &coverage)
}

func (s *WorkflowService) compileResponse(ctx context.Context, wf *domain.Workflow, state *pipelineState) error {
	started := s.now()
	in := agents.CompilationInput{
		Summaries:    state.summaries,
		Requirements: state.requirements,
		Questions:    state.questions,
		Answers:      state.answers,
	}
	actx := state.agentContext(wf, domain.StepCompileResponse)

	var proposal domain.Proposal
	var err error
	if s.stream {
		proposal, err = s.agents.Compilation.CompileStreaming(ctx, in, actx, s.chunkPublisher(wf))
	} else {
		proposal, err = s.agents.Compilation.Compile(ctx, in, actx)
	}
	if err != nil {
		return err
	}
	return s.saveResult(ctx, wf, domain.StepCompileResponse, started, proposal, confidenceOf(proposal.Provenance))
}

// restore rebuilds the state every step before from needs, using stored
// results and entity rows.
func (s *WorkflowService) restore(ctx context.Context, workflowID string, from domain.Step) (*pipelineState, error) {
	state := &pipelineState{}
	docs, err := s.repo.ListDocuments(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	state.docs = docs

	idx := from.Index()
	if idx > domain.StepIngest.Index() {
		if err := s.requireResult(ctx, workflowID, domain.StepIngest, &state.summaries); err != nil {
			return nil, err
		}
	}
	if idx > domain.StepAnalyzeRequirements.Index() {
		if err := s.requireResult(ctx, workflowID, domain.StepAnalyzeRequirements, nil); err != nil {
			return nil, err
		}
		if state.requirements, err = s.repo.ListRequirements(ctx, workflowID); err != nil {
			return nil, fmt.Errorf("list requirements: %w", err)
		}
	}
	if idx > domain.StepGenerateQuestions.Index() {
		if err := s.requireResult(ctx, workflowID, domain.StepGenerateQuestions, nil); err != nil {
			return nil, err
		}
		if state.questions, err = s.repo.ListQuestions(ctx, workflowID); err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
	}
	if idx > domain.StepExtractAnswers.Index() {
		if err := s.requireResult(ctx, workflowID, domain.StepExtractAnswers, &state.answers); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// requireResult fails with ErrInvalidState when step has no stored result.
// A non-nil v receives the decoded result.
func (s *WorkflowService) requireResult(ctx context.Context, workflowID string, step domain.Step, v any) error {
	res, err := s.repo.GetResult(ctx, workflowID, step)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: step %s has no stored result to resume from", domain.ErrInvalidState, step)
	}
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(res.Data, v); err != nil {
		return fmt.Errorf("decode %s result: %w", step, err)
	}
	return nil
}

func summaryOf(doc *domain.Document) (domain.IngestionSummary, bool) {
	var summary domain.IngestionSummary
	if len(doc.ExtractedData) == 0 {
		return summary, false
	}
	data, err := json.Marshal(doc.ExtractedData)
	if err != nil {
		return summary, false
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, false
	}
	return summary, true
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func meanProvenance(summaries []domain.IngestionSummary) *float64 {
	if len(summaries) == 0 {
		return nil
	}
	var sum float64
	for _, s := range summaries {
		sum += s.Provenance.Confidence
	}
	mean := sum / float64(len(summaries))
	return &mean
}
