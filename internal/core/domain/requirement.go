package domain

import "time"

// Category classifies requirements and questions.
type Category string

// Categories.
const (
	CategoryTechnical  Category = "technical"
	CategoryBusiness   Category = "business"
	CategoryCompliance Category = "compliance"
	CategoryOther      Category = "other"
)

// ParseCategory normalises a free-text category, defaulting to other.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryTechnical, CategoryBusiness, CategoryCompliance:
		return Category(s)
	default:
		return CategoryOther
	}
}

// Priority ranks requirements and questions.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalises a free-text priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityLow:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Requirement is one categorised requirement extracted from the documents.
// Requirements are written once per batch and never updated in place.
type Requirement struct {
	// WorkflowID links to the owning Workflow.
	WorkflowID string `json:"workflow_id"`

	// RequirementID is caller-assigned and unique within the workflow.
	RequirementID string `json:"requirement_id"`

	// SourceDocumentID optionally traces the requirement to a Document.
	SourceDocumentID string `json:"source_document_id"`

	Category    Category `json:"category"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`

	// Complexity is a free-form estimate such as "low" or "high".
	Complexity string `json:"complexity"`

	// Mandatory is true for shall/must requirements.
	Mandatory bool `json:"mandatory"`

	CreatedAt time.Time `json:"created_at"`
}

// Question is a clarification question generated from the requirements.
type Question struct {
	// WorkflowID links to the owning Workflow.
	WorkflowID string `json:"workflow_id"`

	// QuestionID is caller-assigned and unique within the workflow.
	QuestionID string `json:"question_id"`

	Category  Category `json:"category"`
	Text      string   `json:"text"`
	Rationale string   `json:"rationale"`
	Priority  Priority `json:"priority"`

	// Impact describes what an unanswered question puts at risk.
	Impact string `json:"impact"`

	// RelatedRequirements lists requirement ids this question clarifies.
	RelatedRequirements []string `json:"related_requirements,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
