package driven

import "context"

// Embedder turns text into dense vectors for semantic similarity.
//
// Implementations may include:
//   - Ollama (nomic-embed-text)
//   - OpenAI (text-embedding-3-small)
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
