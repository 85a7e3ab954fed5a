package domain

import (
	"encoding/json"
	"time"
)

// WorkflowResult is the raw output of one step, kept for audit and resumption.
// There is one row per (workflow, step); a rerun of the step overwrites it.
type WorkflowResult struct {
	WorkflowID string `json:"workflow_id"`
	StepName   Step   `json:"step_name"`

	// Data is the step output as JSON.
	Data json.RawMessage `json:"data"`

	// Confidence is the step's overall confidence, when it has one.
	Confidence *float64 `json:"confidence,omitempty"`

	// ProcessingTime is how long the step took.
	ProcessingTime time.Duration `json:"processing_time"`

	CreatedAt time.Time `json:"created_at"`
}

// ResultSource discriminates how an agent output was recovered.
type ResultSource string

// Result sources, from most to least trustworthy.
const (
	// SourceParsed means the model reply parsed as structured data.
	SourceParsed ResultSource = "parsed"

	// SourcePattern means structured parsing failed and text patterns were used.
	SourcePattern ResultSource = "pattern"

	// SourceRaw means only the raw reply text was kept.
	SourceRaw ResultSource = "raw"
)

// Provenance tags every agent output with how it was produced.
// Downstream stages branch on Source and Fallback instead of probing fields.
type Provenance struct {
	Agent      string       `json:"agent"`
	Source     ResultSource `json:"source"`
	Confidence float64      `json:"confidence"`
	Fallback   bool         `json:"fallback"`
	Warnings   []string     `json:"warnings,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// IngestionSummary is the structured digest of one document.
type IngestionSummary struct {
	DocumentID   string     `json:"document_id"`
	DocumentType string     `json:"document_type"`
	Summary      string     `json:"summary"`
	KeyPoints    []string   `json:"key_points,omitempty"`
	Deadlines    []string   `json:"deadlines,omitempty"`
	Contacts     []string   `json:"contacts,omitempty"`
	Provenance   Provenance `json:"provenance"`
}

// RequirementAnalysis is the output of the requirements stage.
type RequirementAnalysis struct {
	Requirements []Requirement `json:"requirements,omitempty"`
	Provenance   Provenance    `json:"provenance"`
}

// QuestionSet is the output of the clarification questions stage.
type QuestionSet struct {
	Questions  []Question `json:"questions,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// RequirementResponse is the proposal's answer to one requirement.
type RequirementResponse struct {
	RequirementID string `json:"requirement_id"`
	Response      string `json:"response"`
	Compliance    string `json:"compliance"`
}

// Proposal is the compiled response document.
type Proposal struct {
	Title                string                `json:"title"`
	ExecutiveSummary     string                `json:"executive_summary"`
	RequirementResponses []RequirementResponse `json:"requirement_responses,omitempty"`
	Risks                []string              `json:"risks,omitempty"`
	Assumptions          []string              `json:"assumptions,omitempty"`
	OpenQuestions        []string              `json:"open_questions,omitempty"`
	NextSteps            []string              `json:"next_steps,omitempty"`
	Provenance           Provenance            `json:"provenance"`
}
