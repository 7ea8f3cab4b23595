package gcs

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// Publisher archives approved drafts as JSON objects in a Cloud Storage bucket
type Publisher struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ interfaces.Publisher = (*Publisher)(nil)

// New creates a publisher writing to gs://bucket/prefix/
func New(client *storage.Client, bucket, prefix string) *Publisher {
	return &Publisher{client: client, bucket: bucket, prefix: prefix}
}

type releaseNote struct {
	DraftID         string    `json:"draft_id"`
	Repository      string    `json:"repository"`
	Internal        string    `json:"internal"`
	External        string    `json:"external"`
	TemplateVersion string    `json:"template_version"`
	RecordIDs       []string  `json:"record_ids"`
	ApprovedAt      time.Time `json:"approved_at"`
}

// ObjectName returns the object path of a draft
func ObjectName(prefix string, repo *model.Repository, draft *model.Draft) string {
	return path.Join(prefix, repo.Name, draft.UpdatedAt.UTC().Format("20060102T150405Z")+"_"+draft.ID.String()+".json")
}

func (p *Publisher) Publish(ctx context.Context, repo *model.Repository, draft *model.Draft) error {
	note := releaseNote{
		DraftID:         draft.ID.String(),
		Repository:      repo.Name,
		Internal:        draft.Internal,
		External:        draft.External,
		TemplateVersion: draft.TemplateVersion,
		ApprovedAt:      draft.UpdatedAt,
	}
	for _, id := range draft.RecordIDs {
		note.RecordIDs = append(note.RecordIDs, id.String())
	}

	name := ObjectName(p.prefix, repo, draft)
	w := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if err := json.NewEncoder(w).Encode(note); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write release note", goerr.V("object", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to upload release note",
			goerr.V("bucket", p.bucket),
			goerr.V("object", name),
		)
	}

	ctxlog.From(ctx).Info("Archived release notes",
		"bucket", p.bucket,
		"object", name,
		"draft_id", draft.ID,
	)
	return nil
}
