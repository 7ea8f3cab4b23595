package chromem

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/philippgille/chromem-go"
)

// Index is a SimilarityIndex backed by one chromem-go collection
type Index struct {
	dim        int
	db         *chromem.DB
	collection *chromem.Collection

	// chromem linearizes writes per document, but Count + Query must see a
	// consistent view
	mu sync.RWMutex
}

var _ interfaces.SimilarityIndex = (*Index)(nil)

type options struct {
	persistDir string
	compress   bool
}

// Option configures the chromem index
type Option func(*options)

// WithPersistDir stores the collection on disk under dir
func WithPersistDir(dir string, compress bool) Option {
	return func(o *options) {
		o.persistDir = dir
		o.compress = compress
	}
}

// New opens (or creates) the named collection
func New(name string, dim int, opts ...Option) (*Index, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var db *chromem.DB
	if o.persistDir != "" {
		persistent, err := chromem.NewPersistentDB(o.persistDir, o.compress)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("dir", o.persistDir))
		}
		db = persistent
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem collection", goerr.V("name", name))
	}

	return &Index{dim: dim, db: db, collection: collection}, nil
}

// vectors are always computed by the caller's Embedder
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, goerr.New("chromem index requires precomputed embeddings")
}

func (x *Index) Dimension() int { return x.dim }

func (x *Index) Upsert(ctx context.Context, entry *model.EmbeddingEntry) error {
	if entry.ID == "" {
		return goerr.Wrap(model.ErrInvalidArgument, "embedding id is required")
	}
	if err := model.CheckDimension(x.dim, entry.Vector); err != nil {
		return goerr.Wrap(err, "failed to upsert embedding", goerr.V("id", entry.ID))
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Metadata:  maps.Clone(entry.Metadata),
		Embedding: slices.Clone(entry.Vector),
		Content:   entry.Metadata[model.MetaText],
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add chromem document", goerr.V("id", entry.ID))
	}
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
	defer x.mu.RUnlock()

	// chromem requires nResults <= document count. All documents are fetched so
	// that ties are broken by timestamp rather than by chromem's internal order.
	count := x.collection.Count()
	if count == 0 {
		return []model.Match{}, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, slices.Clone(vector), count, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chromem collection")
	}

	matches := make([]model.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, model.Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: maps.Clone(r.Metadata),
		})
	}

	model.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
