package ai

import (
	"context"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// Validator checks that configured AI services are reachable.
type Validator struct {
	factory *Factory
}

// NewValidator creates a validator over factory.
func NewValidator(factory *Factory) *Validator {
	return &Validator{factory: factory}
}

// ValidateModel creates the model client and pings it.
func (v *Validator) ValidateModel(ctx context.Context, s domain.ModelSettings) error {
	client, err := v.factory.ConnectModel(ctx, s)
	if err != nil {
		return err
	}
	return client.Close()
}

// ValidateEmbedding creates the embedder, if any, and pings it.
func (v *Validator) ValidateEmbedding(ctx context.Context, s domain.EmbeddingSettings) error {
	embedder, err := v.factory.NewEmbedder(s)
	if err != nil || embedder == nil {
		return err
	}
	defer embedder.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return embedder.Ping(ctx)
}
