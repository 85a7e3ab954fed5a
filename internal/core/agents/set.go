package agents

import "github.com/custodia-labs/autorfp/internal/core/ports/driven"

// Set holds one agent per pipeline stage.
type Set struct {
	Ingestion    *IngestionAgent
	Requirements *RequirementsAgent
	Questions    *QuestionsAgent
	Answers      *AnswerExtractor
	Compilation  *CompilationAgent
}

// NewSet builds every stage agent over one model client. retrieval may be nil.
func NewSet(model driven.ModelClient, retrieval driven.RetrievalService, opts ...Option) *Set {
	return &Set{
		Ingestion:    NewIngestionAgent(model, opts...),
		Requirements: NewRequirementsAgent(model, opts...),
		Questions:    NewQuestionsAgent(model, opts...),
		Answers:      NewAnswerExtractor(retrieval, model, opts...),
		Compilation:  NewCompilationAgent(model, opts...),
	}
}
