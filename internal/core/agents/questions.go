package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// QuestionsAgent generates clarification questions from requirements.
type QuestionsAgent struct {
	exec *Executor[domain.QuestionSet]
}

// NewQuestionsAgent creates a clarification questions agent.
func NewQuestionsAgent(model driven.ModelClient, opts ...Option) *QuestionsAgent {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &QuestionsAgent{
		exec: NewExecutor(AgentQuestions, driven.PromptQuestions, questionsInstruction, model, questionsProcessor(s), opts...),
	}
}

// Generate runs once over the whole requirement set. When the reply yields
// no questions through pattern recovery, one question is derived per
// high-priority requirement.
func (a *QuestionsAgent) Generate(ctx context.Context, reqs []domain.Requirement, actx Context) (domain.QuestionSet, error) {
	out, err := a.exec.Execute(ctx, renderRequirements(reqs), actx)
	if err != nil {
		return out, err
	}

	known := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		known[r.RequirementID] = true
	}
	for i := range out.Questions {
		related := out.Questions[i].RelatedRequirements[:0]
		for _, id := range out.Questions[i].RelatedRequirements {
			if known[id] {
				related = append(related, id)
			}
		}
		out.Questions[i].RelatedRequirements = related
	}

	if out.Provenance.Fallback && len(out.Questions) == 0 {
		out.Questions = questionsFromRequirements(reqs)
		out.Provenance.Warnings = append(out.Provenance.Warnings, "questions derived from high-priority requirements")
	}
	return out, nil
}

func renderRequirements(reqs []domain.Requirement) string {
	var b strings.Builder
	for _, r := range reqs {
		mandatory := "optional"
		if r.Mandatory {
			mandatory = "mandatory"
		}
		fmt.Fprintf(&b, "[%s] (%s, %s priority, %s) %s\n", r.RequirementID, r.Category, r.Priority, mandatory, r.Description)
	}
	return b.String()
}

func questionsProcessor(s settings) Processor[domain.QuestionSet] {
	return func(raw string) (domain.QuestionSet, domain.Provenance) {
		fields, prov, ok := decodeReply(AgentQuestions, raw, s.now)
		if !ok {
			out := domain.QuestionSet{Questions: questionPatterns(raw)}
			out.Provenance = patternProvenance(AgentQuestions, s.now())
			return out, out.Provenance
		}

		ensureLists(fields, "questions")
		items := listOf(fields, "questions")
		qs := make([]domain.Question, 0, len(items))
		for _, item := range items {
			text := str(item, "question", "text")
			if text == "" {
				prov.Warnings = append(prov.Warnings, warnMissing(AgentQuestions, item, "question")...)
				continue
			}
			ensureLists(item, "related_requirements")
			prov.Warnings = append(prov.Warnings, warnMissing(AgentQuestions, item, "id", "rationale", "priority")...)
			qs = append(qs, domain.Question{
				QuestionID:          str(item, "id", "question_id"),
				Category:            domain.ParseCategory(strings.ToLower(str(item, "category"))),
				Text:                text,
				Rationale:           str(item, "rationale"),
				Priority:            domain.ParsePriority(strings.ToLower(str(item, "priority"))),
				Impact:              str(item, "impact"),
				RelatedRequirements: strList(item, "related_requirements"),
			})
		}
		assignQuestionIDs(qs)
		return domain.QuestionSet{Questions: qs, Provenance: prov}, prov
	}
}

// assignQuestionIDs fills missing or duplicate IDs with Q-NNN.
func assignQuestionIDs(qs []domain.Question) {
	seen := make(map[string]bool, len(qs))
	for i := range qs {
		id := qs[i].QuestionID
		if id == "" || seen[id] {
			id = fmt.Sprintf("Q-%03d", i+1)
			for seen[id] {
				id += "b"
			}
			qs[i].QuestionID = id
		}
		seen[id] = true
	}
}

// questionPatterns recovers questions from lines ending in a question mark.
func questionPatterns(raw string) []domain.Question {
	var qs []domain.Question
	for _, line := range strings.Split(raw, "\n") {
		text := stripBullet(line)
		if !strings.HasSuffix(text, "?") || len(text) < 10 {
			continue
		}
		qs = append(qs, domain.Question{
			Category: guessCategory(text),
			Text:     text,
			Priority: domain.PriorityMedium,
		})
	}
	assignQuestionIDs(qs)
	return qs
}

// questionsFromRequirements asks for confirmation of each high-priority requirement.
func questionsFromRequirements(reqs []domain.Requirement) []domain.Question {
	var qs []domain.Question
	for _, r := range reqs {
		if r.Priority != domain.PriorityHigh {
			continue
		}
		qs = append(qs, domain.Question{
			Category:            r.Category,
			Text:                fmt.Sprintf("Can you confirm the expected scope and acceptance criteria for %s: %s?", r.RequirementID, strings.TrimRight(r.Description, ".")),
			Rationale:           "High-priority requirement without a generated clarification question",
			Priority:            domain.PriorityHigh,
			RelatedRequirements: []string{r.RequirementID},
		})
	}
	assignQuestionIDs(qs)
	return qs
}
