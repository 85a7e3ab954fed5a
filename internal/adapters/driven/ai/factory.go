// Package ai builds model clients and embedders from settings.
package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	ollamaembed "github.com/custodia-labs/autorfp/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/autorfp/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/llm/anthropic"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/llm/bedrock"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/llm/ollama"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Default API key variables per provider.
//
//nolint:gosec // G101: environment variable names, not credentials.
const (
	anthropicKeyEnv = "ANTHROPIC_API_KEY"
	openaiKeyEnv    = "OPENAI_API_KEY"
)

// Factory creates AI clients. Getenv resolves API key variables.
type Factory struct {
	Getenv func(string) string
}

// NewFactory returns a Factory reading the process environment.
func NewFactory() *Factory {
	return &Factory{Getenv: os.Getenv}
}

func (f *Factory) apiKey(envName, fallback string) string {
	if envName == "" {
		envName = fallback
	}
	getenv := f.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return getenv(envName)
}

// NewModelClient creates the client for s.Provider without contacting it.
func (f *Factory) NewModelClient(ctx context.Context, s domain.ModelSettings) (driven.ModelClient, error) {
	switch s.Provider {
	case domain.ModelProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:  f.apiKey(s.APIKeyEnv, anthropicKeyEnv),
			BaseURL: s.BaseURL,
			Model:   s.Name,
			Timeout: s.Timeout,
		})

	case domain.ModelProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:  f.apiKey(s.APIKeyEnv, openaiKeyEnv),
			BaseURL: s.BaseURL,
			Model:   s.Name,
			Timeout: s.Timeout,
		})

	case domain.ModelProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL: s.BaseURL,
			Model:   s.Name,
			Timeout: s.Timeout,
		}), nil

	case domain.ModelProviderBedrock:
		return bedrock.New(ctx, bedrock.Config{
			Model:  s.Name,
			Region: s.Region,
		})

	default:
		return nil, fmt.Errorf("%w: model provider %q", domain.ErrUnsupportedType, s.Provider)
	}
}

// ConnectModel creates the model client and validates connectivity.
func (f *Factory) ConnectModel(ctx context.Context, s domain.ModelSettings) (driven.ModelClient, error) {
	client, err := f.NewModelClient(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'autorfp settings set model.provider <name>' to fix",
			domain.ErrLLMUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return client, nil
}

// NewEmbedder creates the embedder for s.Provider. Returns nil when
// embeddings are disabled.
func (f *Factory) NewEmbedder(s domain.EmbeddingSettings) (driven.Embedder, error) {
	switch s.Provider {
	case domain.EmbeddingNone, "":
		return nil, nil

	case domain.EmbeddingOllama:
		return ollamaembed.New(ollamaembed.Config{
			BaseURL: s.BaseURL,
			Model:   s.Model,
		}), nil

	case domain.EmbeddingOpenAI:
		return openaiembed.New(openaiembed.Config{
			APIKey:  f.apiKey(s.APIKeyEnv, openaiKeyEnv),
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, s.Provider)
	}
}
