package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// CompilationInput is everything the response proposal is written from.
type CompilationInput struct {
	Summaries    []domain.IngestionSummary
	Requirements []domain.Requirement
	Questions    []domain.Question
	Answers      domain.AnswerSet
}

// CompilationAgent writes the response proposal from all prior outputs.
type CompilationAgent struct {
	exec *Executor[domain.Proposal]
}

// NewCompilationAgent creates a response compilation agent.
func NewCompilationAgent(model driven.ModelClient, opts ...Option) *CompilationAgent {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &CompilationAgent{
		exec: NewExecutor(AgentCompilation, driven.PromptCompilation, compilationInstruction, model, compilationProcessor(s), opts...),
	}
}

// Compile writes the proposal.
func (a *CompilationAgent) Compile(ctx context.Context, in CompilationInput, actx Context) (domain.Proposal, error) {
	out, err := a.exec.Execute(ctx, compilationInput(in), actx)
	if err != nil {
		return out, err
	}
	completeProposal(&out, in)
	return out, nil
}

// CompileStreaming writes the proposal, delivering model text to onChunk.
func (a *CompilationAgent) CompileStreaming(ctx context.Context, in CompilationInput, actx Context, onChunk func(string)) (domain.Proposal, error) {
	out, err := a.exec.ExecuteStreaming(ctx, compilationInput(in), actx, onChunk)
	if err != nil {
		return out, err
	}
	completeProposal(&out, in)
	return out, nil
}

func compilationInput(in CompilationInput) string {
	var b strings.Builder

	if len(in.Summaries) > 0 {
		b.WriteString("Document summaries:\n")
		for _, s := range in.Summaries {
			fmt.Fprintf(&b, "- (%s) %s\n", s.DocumentType, s.Summary)
		}
		b.WriteString("\n")
	}

	b.WriteString("Requirements:\n")
	b.WriteString(renderRequirements(in.Requirements))

	questionText := make(map[string]string, len(in.Questions))
	for _, q := range in.Questions {
		questionText[q.QuestionID] = q.Text
	}

	b.WriteString("\nClarification answers:\n")
	for _, a := range in.Answers.Answers {
		fmt.Fprintf(&b, "[%s] %s\nA: %s (confidence %.2f, %s, %s)\n",
			a.QuestionID, questionText[a.QuestionID], a.Text, a.Confidence, a.Type, a.Completeness)
	}

	if len(in.Answers.Unanswered) > 0 {
		b.WriteString("\nUnanswered questions:\n")
		for _, u := range in.Answers.Unanswered {
			fmt.Fprintf(&b, "[%s] %s (%s priority): %s\n", u.QuestionID, u.Question, u.Priority, u.Reason)
		}
	}

	gaps := in.Answers.Gaps
	fmt.Fprintf(&b, "\nGap analysis: %.0f%% of %d questions answered, %d critical gaps\n",
		gaps.Coverage, gaps.TotalQuestions, len(gaps.CriticalGaps))
	for _, g := range gaps.CriticalGaps {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", g.QuestionID, g.Question, g.Reason)
	}
	return b.String()
}

func compilationProcessor(s settings) Processor[domain.Proposal] {
	return func(raw string) (domain.Proposal, domain.Provenance) {
		fields, prov, ok := decodeReply(AgentCompilation, raw, s.now)
		if !ok {
			out := proposalPatterns(raw)
			out.Provenance = patternProvenance(AgentCompilation, s.now())
			return out, out.Provenance
		}

		ensureLists(fields, "requirement_responses", "risks", "assumptions", "open_questions", "next_steps")
		prov.Warnings = warnMissing(AgentCompilation, fields, "title", "executive_summary")

		out := domain.Proposal{
			Title:            str(fields, "title"),
			ExecutiveSummary: str(fields, "executive_summary", "summary"),
			Risks:            strList(fields, "risks"),
			Assumptions:      strList(fields, "assumptions"),
			OpenQuestions:    strList(fields, "open_questions"),
			NextSteps:        strList(fields, "next_steps"),
			Provenance:       prov,
		}
		for _, item := range listOf(fields, "requirement_responses") {
			out.RequirementResponses = append(out.RequirementResponses, domain.RequirementResponse{
				RequirementID: str(item, "requirement_id", "id"),
				Response:      str(item, "response"),
				Compliance:    str(item, "compliance"),
			})
		}
		return out, prov
	}
}

// proposalPatterns recovers a proposal from an unstructured reply.
func proposalPatterns(raw string) domain.Proposal {
	out := domain.Proposal{}
	for _, line := range strings.Split(raw, "\n") {
		if t := strings.TrimSpace(strings.TrimLeft(line, "# ")); t != "" {
			out.Title = t
			break
		}
	}
	sents := sentences(raw)
	if len(sents) > 4 {
		sents = sents[:4]
	}
	out.ExecutiveSummary = strings.Join(sents, " ")
	out.NextSteps = bulletLines(raw)
	return out
}

// completeProposal fills sections the reply left empty from the answer set
// and requirements.
func completeProposal(p *domain.Proposal, in CompilationInput) {
	if p.Title == "" {
		p.Title = "Response Proposal"
	}

	if len(p.RequirementResponses) == 0 && p.Provenance.Fallback {
		answerByReq := make(map[string]string)
		for _, q := range in.Questions {
			for _, a := range in.Answers.Answers {
				if a.QuestionID != q.QuestionID {
					continue
				}
				for _, rid := range q.RelatedRequirements {
					if _, seen := answerByReq[rid]; !seen {
						answerByReq[rid] = a.Text
					}
				}
			}
		}
		for _, r := range in.Requirements {
			resp := domain.RequirementResponse{RequirementID: r.RequirementID, Compliance: "partial"}
			if text, ok := answerByReq[r.RequirementID]; ok {
				resp.Response = text
			} else {
				resp.Response = "To be confirmed: " + r.Description
			}
			p.RequirementResponses = append(p.RequirementResponses, resp)
		}
	}

	if len(p.OpenQuestions) == 0 {
		for _, u := range in.Answers.Unanswered {
			p.OpenQuestions = append(p.OpenQuestions, u.Question)
		}
	}

	if len(p.Risks) == 0 {
		for _, g := range in.Answers.Gaps.CriticalGaps {
			p.Risks = append(p.Risks, fmt.Sprintf("%s (%s)", g.Question, g.Reason))
		}
	}
}
