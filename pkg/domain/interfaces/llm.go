package interfaces

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Generator produces natural-language text. It is treated as non-deterministic and
// is never assumed idempotent.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
}

// CategoryModel is the probabilistic fallback classifier, consulted only when no
// deterministic rule matches
type CategoryModel interface {
	Classify(ctx context.Context, text string) (model.Category, error)
}
