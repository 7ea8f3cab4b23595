package interfaces

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// SimilarityIndex stores fixed-dimension vectors and answers nearest-neighbor queries.
// Upserts for one id are linearized; an upsert with the wrong dimension fails with
// model.ErrDimensionMismatch and leaves the index untouched. Querying an empty index
// returns an empty result.
type SimilarityIndex interface {
	Dimension() int
	Upsert(ctx context.Context, entry *model.EmbeddingEntry) error
	Query(ctx context.Context, vector []float32, k int) ([]model.Match, error)
}
