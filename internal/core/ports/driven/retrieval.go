package driven

import (
	"context"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// RetrievalService answers a question from a knowledge corpus.
// A zero confidence with no sources means nothing relevant was found;
// that is data, not an error.
type RetrievalService interface {
	// Answer returns a grounded answer with confidence in [0,1] and ranked sources.
	Answer(ctx context.Context, question string, scope domain.RetrievalScope) (*domain.RetrievalAnswer, error)
}
