package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// ModelProvider identifies a hosted or local inference service.
type ModelProvider string

// Available model providers.
const (
	// ModelProviderAnthropic is the Anthropic Messages API.
	ModelProviderAnthropic ModelProvider = "anthropic"

	// ModelProviderOpenAI is the OpenAI chat completions API.
	ModelProviderOpenAI ModelProvider = "openai"

	// ModelProviderOllama is a local Ollama instance.
	ModelProviderOllama ModelProvider = "ollama"

	// ModelProviderBedrock is Claude on AWS Bedrock.
	ModelProviderBedrock ModelProvider = "bedrock"
)

// IsValid returns true if the provider is recognised.
func (p ModelProvider) IsValid() bool {
	switch p {
	case ModelProviderAnthropic, ModelProviderOpenAI, ModelProviderOllama, ModelProviderBedrock:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p ModelProvider) RequiresAPIKey() bool {
	return p == ModelProviderAnthropic || p == ModelProviderOpenAI
}

// String returns the string representation.
func (p ModelProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p ModelProvider) Description() string {
	switch p {
	case ModelProviderAnthropic:
		return "Anthropic (cloud)"
	case ModelProviderOpenAI:
		return "OpenAI (cloud)"
	case ModelProviderOllama:
		return "Ollama (local)"
	case ModelProviderBedrock:
		return "AWS Bedrock (cloud)"
	default:
		return unknownDescription
	}
}

// RetrievalProvider selects the retrieval backend.
type RetrievalProvider string

// Available retrieval providers.
const (
	// RetrievalLocal searches the workflow's own documents in-process.
	RetrievalLocal RetrievalProvider = "local"

	// RetrievalHTTP calls a remote retrieval service.
	RetrievalHTTP RetrievalProvider = "http"
)

// IsValid returns true if the retrieval provider is recognised.
func (p RetrievalProvider) IsValid() bool {
	return p == RetrievalLocal || p == RetrievalHTTP
}

// EmbeddingProvider selects the optional embedder used by local retrieval.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingNone scores chunks by term overlap only.
	EmbeddingNone EmbeddingProvider = "none"

	// EmbeddingOllama embeds with a local Ollama model.
	EmbeddingOllama EmbeddingProvider = "ollama"

	// EmbeddingOpenAI embeds with the OpenAI embeddings API.
	EmbeddingOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the embedding provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingNone, EmbeddingOllama, EmbeddingOpenAI:
		return true
	default:
		return false
	}
}

// StorageBackend selects the durable store.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
	StorageMemory   StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// ModelSettings holds model provider configuration.
type ModelSettings struct {
	// Provider is the model service provider.
	Provider ModelProvider

	// Name is the model name. Empty uses the provider default.
	Name string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string

	// Region is the AWS region (for Bedrock).
	Region string

	// Timeout bounds a single model request.
	Timeout time.Duration
}

// AgentSettings tunes the agent execution contract.
type AgentSettings struct {
	// RetryAttempts is the total number of invocation attempts.
	RetryAttempts int

	// BaseDelay is multiplied by the attempt number between retries.
	BaseDelay time.Duration

	// TruncationLimit is the per-document character ceiling on the fallback path.
	TruncationLimit int

	// Stream enables streaming for the ingestion and compilation agents.
	Stream bool
}

// RetrievalSettings configures the retrieval service.
type RetrievalSettings struct {
	Provider RetrievalProvider

	// URL is the remote endpoint (for the http provider).
	URL string

	// RatePerSecond limits retrieval calls. Zero disables limiting.
	RatePerSecond float64

	// Workers bounds concurrent retrieval calls per workflow.
	Workers int

	// TopK caps sources per answer.
	TopK int
}

// EmbeddingSettings configures semantic scoring for local retrieval.
type EmbeddingSettings struct {
	Provider EmbeddingProvider

	// Model is the embedding model. Empty uses the provider default.
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
}

// StorageSettings configures persistence.
type StorageSettings struct {
	Backend StorageBackend

	// Path is the SQLite database file.
	Path string

	// DSN is the Postgres connection string.
	DSN string
}

// RetentionSettings configures the cleanup sweep.
type RetentionSettings struct {
	// Window is how long terminal workflows are kept.
	Window time.Duration

	// Interval is how often the sweep runs.
	Interval time.Duration
}

// AppSettings holds all application settings.
type AppSettings struct {
	Model     ModelSettings
	Agent     AgentSettings
	Retrieval RetrievalSettings
	Embedding EmbeddingSettings
	Storage   StorageSettings
	Retention RetentionSettings
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Model: ModelSettings{
			Provider:  ModelProviderAnthropic,
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Region:    "us-east-1",
			Timeout:   120 * time.Second,
		},
		Agent: AgentSettings{
			RetryAttempts:   3,
			BaseDelay:       time.Second,
			TruncationLimit: 8000,
		},
		Retrieval: RetrievalSettings{
			Provider:      RetrievalLocal,
			RatePerSecond: 5,
			Workers:       1,
			TopK:          5,
		},
		Embedding: EmbeddingSettings{
			Provider: EmbeddingNone,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Retention: RetentionSettings{
			Window:   30 * 24 * time.Hour,
			Interval: time.Hour,
		},
	}
}

// Validate checks the settings for values the pipeline cannot run with.
func (s AppSettings) Validate() error {
	if !s.Model.Provider.IsValid() {
		return fmt.Errorf("%w: model provider %q", ErrUnsupportedType, s.Model.Provider)
	}
	if !s.Retrieval.Provider.IsValid() {
		return fmt.Errorf("%w: retrieval provider %q", ErrUnsupportedType, s.Retrieval.Provider)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", ErrUnsupportedType, s.Embedding.Provider)
	}
	if !s.Storage.Backend.IsValid() {
		return fmt.Errorf("%w: storage backend %q", ErrUnsupportedType, s.Storage.Backend)
	}
	if s.Retrieval.Provider == RetrievalHTTP && s.Retrieval.URL == "" {
		return &InvalidInputError{Field: "retrieval.url", Reason: "required for the http provider"}
	}
	if s.Storage.Backend == StoragePostgres && s.Storage.DSN == "" {
		return &InvalidInputError{Field: "storage.dsn", Reason: "required for the postgres backend"}
	}
	if s.Agent.RetryAttempts < 1 {
		return &InvalidInputError{Field: "agent.retry_attempts", Reason: "must be at least 1"}
	}
	if s.Agent.TruncationLimit < 1 {
		return &InvalidInputError{Field: "agent.truncation_limit", Reason: "must be positive"}
	}
	return nil
}

// AllModelProviders returns every supported model provider.
func AllModelProviders() []ModelProvider {
	return []ModelProvider{
		ModelProviderAnthropic,
		ModelProviderOpenAI,
		ModelProviderOllama,
		ModelProviderBedrock,
	}
}

// DefaultModels returns the default model name for each provider.
func DefaultModels() map[ModelProvider]string {
	return map[ModelProvider]string{
		ModelProviderAnthropic: "claude-3-5-sonnet-latest",
		ModelProviderOpenAI:    "gpt-4o-mini",
		ModelProviderOllama:    "llama3.2",
		ModelProviderBedrock:   "anthropic.claude-3-5-sonnet-20240620-v1:0",
	}
}
