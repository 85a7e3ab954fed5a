package agents

import "github.com/custodia-labs/autorfp/internal/core/ports/driven"

// Agent names, used in provenance, logs and metrics.
const (
	AgentIngestion      = "ingestion"
	AgentRequirements   = "requirements"
	AgentQuestions      = "questions"
	AgentAnswers        = "answers"
	AgentAnswerFallback = "answer_fallback"
	AgentCompilation    = "compilation"
)

const ingestionInstruction = `You are a procurement document analyst. Read the document below and
summarise it for a bid team.

Reply with a single JSON object:
{
  "document_type": "RFP | RFI | RFQ | tender | addendum | other",
  "summary": "three to five sentences",
  "key_points": ["..."],
  "deadlines": ["date and what is due"],
  "contacts": ["name, role, email or phone"],
  "confidence": 0.0-1.0
}`

const requirementsInstruction = `You are a requirements analyst for procurement responses. Extract every
requirement the buyer states in the documents below.

Reply with a single JSON object:
{
  "requirements": [
    {
      "id": "REQ-001",
      "category": "technical | business | compliance | other",
      "description": "the requirement in one sentence",
      "priority": "high | medium | low",
      "complexity": "low | medium | high",
      "mandatory": true,
      "source_document": "file name the requirement came from"
    }
  ]
}
Mandatory means the buyer uses shall, must or required.`

const questionsInstruction = `You are preparing clarification questions for a procurement response.
Given the requirements below, ask the buyer about every ambiguity, missing
detail or risk that would change the bid.

Reply with a single JSON object:
{
  "questions": [
    {
      "id": "Q-001",
      "category": "technical | business | compliance | other",
      "question": "...?",
      "rationale": "why the answer matters",
      "priority": "high | medium | low",
      "impact": "what is at risk if unanswered",
      "related_requirements": ["REQ-001"]
    }
  ]
}`

const answerFallbackInstruction = `You are answering clarification questions about a procurement using only
the document content provided. For each question give the best answer the
documents support, with a confidence between 0 and 1. If the documents do
not answer a question, list it as unanswered with a reason.

Reply with a single JSON object:
{
  "answers": [
    {
      "question_id": "Q-001",
      "answer": "...",
      "confidence": 0.0-1.0,
      "answer_type": "direct | inferred",
      "completeness": "complete | partial",
      "sources": [{"document": "file name", "excerpt": "quoted text", "relevance": 0.0-1.0}]
    }
  ],
  "unanswered": [{"question_id": "Q-002", "reason": "..."}]
}`

const compilationInstruction = `You are writing a response proposal to a procurement request. Use the
requirements, clarification answers and gap analysis below.

Reply with a single JSON object:
{
  "title": "...",
  "executive_summary": "...",
  "requirement_responses": [
    {"requirement_id": "REQ-001", "response": "how we meet it", "compliance": "full | partial | none"}
  ],
  "risks": ["..."],
  "assumptions": ["..."],
  "open_questions": ["questions still needing the buyer's answer"],
  "next_steps": ["..."]
}`

// DefaultPrompts returns the compiled-in role instruction for each prompt name.
func DefaultPrompts() map[string]string {
	return map[string]string{
		driven.PromptIngestion:      ingestionInstruction,
		driven.PromptRequirements:   requirementsInstruction,
		driven.PromptQuestions:      questionsInstruction,
		driven.PromptAnswerFallback: answerFallbackInstruction,
		driven.PromptCompilation:    compilationInstruction,
	}
}
