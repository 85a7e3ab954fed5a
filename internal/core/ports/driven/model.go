package driven

import "context"

// ModelClient sends a text prompt to an inference service.
// Failures are plain errors with no agent-specific meaning; retry policy
// belongs to the caller.
//
// Implementations may include:
//   - Anthropic (Claude)
//   - OpenAI (GPT-4o)
//   - Ollama (local models)
//   - AWS Bedrock (Claude)
type ModelClient interface {
	// Invoke returns the complete reply to a prompt.
	Invoke(ctx context.Context, prompt string) (string, error)

	// Stream delivers the reply incrementally to onChunk and returns the full text.
	Stream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
