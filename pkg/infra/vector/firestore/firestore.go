package firestore

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

const distanceField = "vector_distance"

type vectorDoc struct {
	ID       string             `firestore:"id"`
	Vector   firestore.Vector32 `firestore:"vector"`
	Metadata map[string]string  `firestore:"metadata"`
}

// Index stores embeddings in a Firestore collection and queries it with
// FindNearest. The collection needs a vector index on the "vector" field with
// the configured dimension.
type Index struct {
	dim        int
	collection *firestore.CollectionRef
}

var _ interfaces.SimilarityIndex = (*Index)(nil)

// New binds the index to a collection of an existing client
func New(client *firestore.Client, collection string, dim int) *Index {
	return &Index{
		dim:        dim,
		collection: client.Collection(collection),
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

	doc := &vectorDoc{
		ID:       entry.ID,
		Vector:   firestore.Vector32(entry.Vector),
		Metadata: entry.Metadata,
	}
	if _, err := x.collection.Doc(url.QueryEscape(entry.ID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to store embedding", goerr.V("id", entry.ID))
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

	q := x.collection.FindNearest("vector", firestore.Vector32(vector), k,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField},
	)
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run nearest neighbor query")
	}

	matches := make([]model.Match, 0, len(snaps))
	for _, snap := range snaps {
		var doc vectorDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode embedding", goerr.V("doc", snap.Ref.ID))
		}

		var distance float64
		if v, ok := snap.Data()[distanceField].(float64); ok {
			distance = v
		}
		matches = append(matches, model.Match{
			ID:       doc.ID,
			Score:    1 - distance,
			Metadata: doc.Metadata,
		})
	}

	model.SortMatches(matches)
	return matches, nil
}
