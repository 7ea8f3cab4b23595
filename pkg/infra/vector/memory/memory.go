package memory

import (
	"context"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// Index is a brute-force cosine similarity index kept in process memory
type Index struct {
	dim     int
	mu      sync.RWMutex
	entries map[string]*model.EmbeddingEntry
}

var _ interfaces.SimilarityIndex = (*Index)(nil)

// New creates an empty index of the given dimension
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		entries: make(map[string]*model.EmbeddingEntry),
	}
}

func (x *Index) Dimension() int { return x.dim }

func (x *Index) Upsert(ctx context.Context, entry *model.EmbeddingEntry) error {
	if entry.ID == "" {
		return goerr.Wrap(model.ErrInvalidArgument, "embedding id is required")
	}
	if err := model.CheckDimension(x.dim, entry.Vector); err != nil {
		return goerr.Wrap(err, "failed to upsert embedding", goerr.V("id", entry.ID))
	}

	stored := &model.EmbeddingEntry{
		ID:       entry.ID,
		Vector:   slices.Clone(entry.Vector),
		Metadata: maps.Clone(entry.Metadata),
	}

	x.mu.Lock()
	x.entries[entry.ID] = stored
	x.mu.Unlock()
	return nil
}

func (x *Index) Query(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	if err := model.CheckDimension(x.dim, vector); err != nil {
		return nil, goerr.Wrap(err, "failed to query index")
	}
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	matches := make([]model.Match, 0, len(x.entries))
	for _, e := range x.entries {
		matches = append(matches, model.Match{
			ID:       e.ID,
			Score:    Cosine(vector, e.Vector),
			Metadata: maps.Clone(e.Metadata),
		})
	}
	x.mu.RUnlock()

	model.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the number of stored entries
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Cosine returns the cosine similarity of a and b; zero vectors score 0
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
