package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// RequirementsAgent extracts categorised requirements from ingested documents.
type RequirementsAgent struct {
	exec *Executor[domain.RequirementAnalysis]
}

// NewRequirementsAgent creates a requirements agent.
func NewRequirementsAgent(model driven.ModelClient, opts ...Option) *RequirementsAgent {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &RequirementsAgent{
		exec: NewExecutor(AgentRequirements, driven.PromptRequirements, requirementsInstruction, model, requirementsProcessor(s), opts...),
	}
}

// Analyze extracts requirements from docs. Source documents named in the
// reply are resolved to document IDs.
func (a *RequirementsAgent) Analyze(ctx context.Context, docs []domain.Document, actx Context) (domain.RequirementAnalysis, error) {
	out, err := a.exec.Execute(ctx, requirementsInput(docs), actx)
	if err != nil {
		return out, err
	}
	resolveSourceDocuments(out.Requirements, docs)
	return out, nil
}

func requirementsInput(docs []domain.Document) string {
	var b strings.Builder
	for _, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "=== Document: %s ===\n%s\n\n", d.Filename, d.Content)
	}
	return b.String()
}

// resolveSourceDocuments maps file names in SourceDocumentID to document IDs.
func resolveSourceDocuments(reqs []domain.Requirement, docs []domain.Document) {
	byName := make(map[string]string, len(docs))
	for _, d := range docs {
		byName[strings.ToLower(d.Filename)] = d.ID
		byName[strings.ToLower(d.ID)] = d.ID
	}
	for i := range reqs {
		ref := strings.ToLower(strings.TrimSpace(reqs[i].SourceDocumentID))
		if ref == "" {
			if len(docs) == 1 {
				reqs[i].SourceDocumentID = docs[0].ID
			}
			continue
		}
		reqs[i].SourceDocumentID = byName[ref]
	}
}

func requirementsProcessor(s settings) Processor[domain.RequirementAnalysis] {
	return func(raw string) (domain.RequirementAnalysis, domain.Provenance) {
		fields, prov, ok := decodeReply(AgentRequirements, raw, s.now)
		if !ok {
			out := domain.RequirementAnalysis{Requirements: requirementPatterns(raw)}
			out.Provenance = patternProvenance(AgentRequirements, s.now())
			return out, out.Provenance
		}

		ensureLists(fields, "requirements")
		items := listOf(fields, "requirements")
		reqs := make([]domain.Requirement, 0, len(items))
		for _, item := range items {
			desc := str(item, "description", "requirement", "text")
			if desc == "" {
				prov.Warnings = append(prov.Warnings, warnMissing(AgentRequirements, item, "description")...)
				continue
			}
			prov.Warnings = append(prov.Warnings, warnMissing(AgentRequirements, item, "id", "category", "priority")...)
			reqs = append(reqs, domain.Requirement{
				RequirementID:    str(item, "id", "requirement_id"),
				SourceDocumentID: str(item, "source_document", "document"),
				Category:         domain.ParseCategory(strings.ToLower(str(item, "category"))),
				Description:      desc,
				Priority:         domain.ParsePriority(strings.ToLower(str(item, "priority"))),
				Complexity:       str(item, "complexity"),
				Mandatory:        boolean(item, "mandatory"),
			})
		}
		assignRequirementIDs(reqs)
		return domain.RequirementAnalysis{Requirements: reqs, Provenance: prov}, prov
	}
}

// assignRequirementIDs fills missing or duplicate IDs with REQ-NNN.
func assignRequirementIDs(reqs []domain.Requirement) {
	seen := make(map[string]bool, len(reqs))
	for i := range reqs {
		id := reqs[i].RequirementID
		if id == "" || seen[id] {
			id = fmt.Sprintf("REQ-%03d", i+1)
			for seen[id] {
				id += "b"
			}
			reqs[i].RequirementID = id
		}
		seen[id] = true
	}
}

const maxPatternRequirements = 50

var (
	obligation  = regexp.MustCompile(`(?i)\b(shall|must|required|is required to|will provide|should)\b`)
	mandatoryRe = regexp.MustCompile(`(?i)\b(shall|must)\b`)
	shouldRe    = regexp.MustCompile(`(?i)\b(should|required)\b`)

	complianceHint = regexp.MustCompile(`(?i)\b(complian\w*|regulat\w*|gdpr|hipaa|iso ?\d+|soc ?2|certif\w*|audit\w*|legal|insurance)\b`)
	businessHint   = regexp.MustCompile(`(?i)\b(price|pricing|cost|budget|payment|invoice|contract\w*|licen[cs]\w*|warranty|sla|support hours)\b`)
	technicalHint  = regexp.MustCompile(`(?i)\b(system|software|platform|integration|api|data\w*|hosting|cloud|security|encrypt\w*|network|performance|uptime)\b`)
)

// requirementPatterns recovers requirements from obligation sentences.
func requirementPatterns(raw string) []domain.Requirement {
	candidates := bulletLines(raw)
	if len(candidates) == 0 {
		candidates = sentences(raw)
	}

	var reqs []domain.Requirement
	for _, c := range candidates {
		if !obligation.MatchString(c) {
			continue
		}
		mandatory := mandatoryRe.MatchString(c)
		priority := domain.PriorityLow
		switch {
		case mandatory:
			priority = domain.PriorityHigh
		case shouldRe.MatchString(c):
			priority = domain.PriorityMedium
		}
		reqs = append(reqs, domain.Requirement{
			Category:    guessCategory(c),
			Description: c,
			Priority:    priority,
			Mandatory:   mandatory,
		})
		if len(reqs) == maxPatternRequirements {
			break
		}
	}
	assignRequirementIDs(reqs)
	return reqs
}

func guessCategory(text string) domain.Category {
	switch {
	case complianceHint.MatchString(text):
		return domain.CategoryCompliance
	case businessHint.MatchString(text):
		return domain.CategoryBusiness
	case technicalHint.MatchString(text):
		return domain.CategoryTechnical
	default:
		return domain.CategoryOther
	}
}
