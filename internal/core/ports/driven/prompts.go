package driven

// PromptStore provides access to agent role instructions.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names. Each is the role instruction of one agent and
// has no format placeholders.
const (
	// PromptIngestion summarises one procurement document.
	PromptIngestion = "ingestion"

	// PromptRequirements extracts categorised requirements.
	PromptRequirements = "requirements"

	// PromptQuestions generates clarification questions from requirements.
	PromptQuestions = "questions"

	// PromptAnswerFallback answers every question from document content directly.
	PromptAnswerFallback = "answer_fallback"

	// PromptRetrievalAnswer synthesises an answer from retrieved excerpts.
	PromptRetrievalAnswer = "retrieval_answer"

	// PromptCompilation compiles the response proposal.
	PromptCompilation = "compilation"
)

// PromptStoreAware is an optional interface for components that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	SetPromptStore(store PromptStore)
}
