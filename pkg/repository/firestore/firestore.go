package firestore

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collRepositories = "repositories"
	collNames        = "repository_names"
	collRecords      = "records"
	collCursors      = "cursors"
	collDrafts       = "drafts"
	collRuns         = "runs"

	// Firestore caps a transaction at 500 writes
	writeChunk = 400
)

type nameDoc struct {
	RepositoryID types.RepositoryID
}

type cursorDoc struct {
	Cursor model.Cursor
}

// Repository implements interfaces.Repository on top of Cloud Firestore
type Repository struct {
	client *firestore.Client
}

var _ interfaces.Repository = (*Repository)(nil)

// New creates a Firestore repository for the given project and database
func New(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}
	return &Repository{client: client}, nil
}

// Client exposes the underlying client so other Firestore-backed components can share it
func (r *Repository) Client() *firestore.Client {
	return r.client
}

// Close releases the client
func (r *Repository) Close() error {
	return r.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func nameKey(name string) string {
	return url.QueryEscape(name)
}

func (r *Repository) repoRef(id types.RepositoryID) *firestore.DocumentRef {
	return r.client.Collection(collRepositories).Doc(id.String())
}

func (r *Repository) recordRef(repoID types.RepositoryID, id types.RecordID) *firestore.DocumentRef {
	return r.repoRef(repoID).Collection(collRecords).Doc(id.String())
}

func (r *Repository) PutRepository(ctx context.Context, repo *model.Repository) error {
	nameRef := r.client.Collection(collNames).Doc(nameKey(repo.Name))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(nameRef)
		if err != nil && !isNotFound(err) {
			return goerr.Wrap(err, "failed to read repository name")
		}
		if err == nil {
			var nd nameDoc
			if err := snap.DataTo(&nd); err != nil {
				return goerr.Wrap(err, "failed to decode repository name")
			}
			if nd.RepositoryID != repo.ID {
				return goerr.Wrap(model.ErrDuplicateName, "repository name already registered",
					goerr.V("name", repo.Name))
			}
		}

		prev, err := tx.Get(r.repoRef(repo.ID))
		if err != nil && !isNotFound(err) {
			return goerr.Wrap(err, "failed to read repository")
		}
		if err == nil {
			var old model.Repository
			if err := prev.DataTo(&old); err != nil {
				return goerr.Wrap(err, "failed to decode repository")
			}
			if old.Name != repo.Name {
				if err := tx.Delete(r.client.Collection(collNames).Doc(nameKey(old.Name))); err != nil {
					return goerr.Wrap(err, "failed to release previous repository name", goerr.V("name", old.Name))
				}
			}
		}

		if err := tx.Set(nameRef, &nameDoc{RepositoryID: repo.ID}); err != nil {
			return goerr.Wrap(err, "failed to reserve repository name")
		}
		return tx.Set(r.repoRef(repo.ID), repo)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put repository", goerr.V("repository_id", repo.ID))
	}
	return nil
}

func (r *Repository) GetRepository(ctx context.Context, id types.RepositoryID) (*model.Repository, error) {
	snap, err := r.repoRef(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("repository_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get repository", goerr.V("repository_id", id))
	}

	var repo model.Repository
	if err := snap.DataTo(&repo); err != nil {
		return nil, goerr.Wrap(err, "failed to decode repository", goerr.V("repository_id", id))
	}
	return &repo, nil
}

func (r *Repository) GetRepositoryByName(ctx context.Context, name string) (*model.Repository, error) {
	snap, err := r.client.Collection(collNames).Doc(nameKey(name)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("name", name))
		}
		return nil, goerr.Wrap(err, "failed to get repository name", goerr.V("name", name))
	}

	var nd nameDoc
	if err := snap.DataTo(&nd); err != nil {
		return nil, goerr.Wrap(err, "failed to decode repository name", goerr.V("name", name))
	}
	return r.GetRepository(ctx, nd.RepositoryID)
}

func (r *Repository) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	snaps, err := r.client.Collection(collRepositories).OrderBy("Name", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list repositories")
	}

	out := make([]*model.Repository, 0, len(snaps))
	for _, snap := range snaps {
		var repo model.Repository
		if err := snap.DataTo(&repo); err != nil {
			return nil, goerr.Wrap(err, "failed to decode repository", goerr.V("doc_id", snap.Ref.ID))
		}
		out = append(out, &repo)
	}
	return out, nil
}

func (r *Repository) DeleteRepository(ctx context.Context, id types.RepositoryID) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.repoRef(id))
		if err != nil {
			if isNotFound(err) {
				return goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("repository_id", id))
			}
			return goerr.Wrap(err, "failed to get repository")
		}
		var repo model.Repository
		if err := snap.DataTo(&repo); err != nil {
			return goerr.Wrap(err, "failed to decode repository")
		}

		drafts, err := tx.Documents(r.client.Collection(collDrafts).Where("RepositoryID", "==", id.String())).GetAll()
		if err != nil {
			return goerr.Wrap(err, "failed to list drafts")
		}

		for _, d := range drafts {
			if err := tx.Update(d.Ref, []firestore.Update{{Path: "Active", Value: false}}); err != nil {
				return goerr.Wrap(err, "failed to deactivate draft", goerr.V("draft_id", d.Ref.ID))
			}
		}
		if err := tx.Delete(r.client.Collection(collNames).Doc(nameKey(repo.Name))); err != nil {
			return goerr.Wrap(err, "failed to release repository name")
		}
		return tx.Delete(r.repoRef(id))
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete repository", goerr.V("repository_id", id))
	}
	return nil
}

func (r *Repository) PutRecords(ctx context.Context, repoID types.RepositoryID, records []*model.EnrichedRecord) error {
	for start := 0; start < len(records); start += writeChunk {
		chunk := records[start:min(start+writeChunk, len(records))]
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			refs := make([]*firestore.DocumentRef, len(chunk))
			for i, rec := range chunk {
				refs[i] = r.recordRef(repoID, rec.ID)
			}
			snaps, err := tx.GetAll(refs)
			if err != nil {
				return goerr.Wrap(err, "failed to read records")
			}

			for i, rec := range chunk {
				rec = rec.Clone()
				// a replayed batch must not reopen records that were already drafted
				if rec.DraftID == "" && snaps[i].Exists() {
					if v, err := snaps[i].DataAt("DraftID"); err == nil {
						if id, ok := v.(string); ok {
							rec.DraftID = types.DraftID(id)
						}
					}
				}
				if err := tx.Set(refs[i], rec); err != nil {
					return goerr.Wrap(err, "failed to set record", goerr.V("record_id", rec.ID))
				}
			}
			return nil
		})
		if err != nil {
			return goerr.Wrap(err, "failed to put records", goerr.V("repository_id", repoID))
		}
	}
	return nil
}

func (r *Repository) ListPendingRecords(ctx context.Context, repoID types.RepositoryID) ([]*model.EnrichedRecord, error) {
	q := r.repoRef(repoID).Collection(collRecords).
		Where("DraftID", "==", "").
		OrderBy("Timestamp", firestore.Asc)

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending records", goerr.V("repository_id", repoID))
	}
	return decodeRecords(snaps)
}

func (r *Repository) GetRecords(ctx context.Context, repoID types.RepositoryID, ids []types.RecordID) ([]*model.EnrichedRecord, error) {
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = r.recordRef(repoID, id)
	}

	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get records", goerr.V("repository_id", repoID))
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			return nil, goerr.Wrap(model.ErrNotFound, "record not found",
				goerr.V("repository_id", repoID), goerr.V("record_id", snap.Ref.ID))
		}
	}
	return decodeRecords(snaps)
}

func decodeRecords(snaps []*firestore.DocumentSnapshot) ([]*model.EnrichedRecord, error) {
	out := make([]*model.EnrichedRecord, 0, len(snaps))
	for _, snap := range snaps {
		var rec model.EnrichedRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, goerr.Wrap(err, "failed to decode record", goerr.V("doc_id", snap.Ref.ID))
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *Repository) GetCursor(ctx context.Context, repoID types.RepositoryID) (model.Cursor, error) {
	snap, err := r.client.Collection(collCursors).Doc(repoID.String()).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to get cursor", goerr.V("repository_id", repoID))
	}

	var cd cursorDoc
	if err := snap.DataTo(&cd); err != nil {
		return "", goerr.Wrap(err, "failed to decode cursor", goerr.V("repository_id", repoID))
	}
	return cd.Cursor, nil
}

func (r *Repository) PutCursor(ctx context.Context, repoID types.RepositoryID, cursor model.Cursor) error {
	if _, err := r.client.Collection(collCursors).Doc(repoID.String()).Set(ctx, &cursorDoc{Cursor: cursor}); err != nil {
		return goerr.Wrap(err, "failed to put cursor", goerr.V("repository_id", repoID))
	}
	return nil
}

// CreateDraft stores the draft together with the first chunk of its record
// marks, then marks the remaining records in further transactions. If a
// later chunk fails, the marks already written and the draft are rolled back
// so that the records become pending again.
func (r *Repository) CreateDraft(ctx context.Context, draft *model.Draft) error {
	draftRef := r.client.Collection(collDrafts).Doc(draft.ID.String())
	first := draft.RecordIDs[:min(writeChunk-1, len(draft.RecordIDs))]

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(draftRef, draft); err != nil {
			return goerr.Wrap(err, "failed to create draft")
		}
		return r.markRecords(tx, draft.RepositoryID, first, draft.ID.String())
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create draft", goerr.V("draft_id", draft.ID))
	}

	marked := len(first)
	for marked < len(draft.RecordIDs) {
		chunk := draft.RecordIDs[marked:min(marked+writeChunk, len(draft.RecordIDs))]
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			return r.markRecords(tx, draft.RepositoryID, chunk, draft.ID.String())
		})
		if err != nil {
			r.rollbackDraft(ctx, draft, marked)
			return goerr.Wrap(err, "failed to mark draft records",
				goerr.V("draft_id", draft.ID),
				goerr.V("marked", marked),
				goerr.V("records", len(draft.RecordIDs)))
		}
		marked += len(chunk)
	}
	return nil
}

func (r *Repository) markRecords(tx *firestore.Transaction, repoID types.RepositoryID, ids []types.RecordID, draftID string) error {
	for _, id := range ids {
		if err := tx.Update(r.recordRef(repoID, id), []firestore.Update{{Path: "DraftID", Value: draftID}}); err != nil {
			return goerr.Wrap(err, "failed to mark record drafted", goerr.V("record_id", id))
		}
	}
	return nil
}

// rollbackDraft clears the marks of the first n records and removes the draft.
// Failures are logged; records left marked stay attached to a missing draft.
func (r *Repository) rollbackDraft(ctx context.Context, draft *model.Draft, n int) {
	logger := ctxlog.From(ctx)
	for start := 0; start < n; start += writeChunk {
		chunk := draft.RecordIDs[start:min(start+writeChunk, n)]
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			return r.markRecords(tx, draft.RepositoryID, chunk, "")
		})
		if err != nil {
			logger.Error("Failed to release draft records", "draft_id", draft.ID, "error", err)
			return
		}
	}
	if _, err := r.client.Collection(collDrafts).Doc(draft.ID.String()).Delete(ctx); err != nil {
		logger.Error("Failed to remove partially created draft", "draft_id", draft.ID, "error", err)
	}
}

func (r *Repository) GetDraft(ctx context.Context, id types.DraftID) (*model.Draft, error) {
	snap, err := r.client.Collection(collDrafts).Doc(id.String()).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V("draft_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get draft", goerr.V("draft_id", id))
	}

	var d model.Draft
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode draft", goerr.V("draft_id", id))
	}
	return &d, nil
}

func (r *Repository) ListDrafts(ctx context.Context, repoID types.RepositoryID) ([]*model.Draft, error) {
	q := r.client.Collection(collDrafts).
		Where("RepositoryID", "==", repoID.String()).
		OrderBy("CreatedAt", firestore.Desc)

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list drafts", goerr.V("repository_id", repoID))
	}

	out := make([]*model.Draft, 0, len(snaps))
	for _, snap := range snaps {
		var d model.Draft
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode draft", goerr.V("doc_id", snap.Ref.ID))
		}
		out = append(out, &d)
	}
	return out, nil
}

func (r *Repository) UpdateDraft(ctx context.Context, id types.DraftID, fn func(d *model.Draft) error) (*model.Draft, error) {
	ref := r.client.Collection(collDrafts).Doc(id.String())

	var updated model.Draft
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V("draft_id", id))
			}
			return goerr.Wrap(err, "failed to get draft")
		}

		var d model.Draft
		if err := snap.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to decode draft")
		}
		if err := fn(&d); err != nil {
			return err
		}
		updated = d
		return tx.Set(ref, &d)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) PutRun(ctx context.Context, run *model.Run) error {
	if _, err := r.client.Collection(collRuns).Doc(run.ID.String()).Set(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to put run", goerr.V("run_id", run.ID))
	}
	return nil
}

func (r *Repository) GetRun(ctx context.Context, id types.RunID) (*model.Run, error) {
	snap, err := r.client.Collection(collRuns).Doc(id.String()).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "run not found", goerr.V("run_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get run", goerr.V("run_id", id))
	}

	var run model.Run
	if err := snap.DataTo(&run); err != nil {
		return nil, goerr.Wrap(err, "failed to decode run", goerr.V("run_id", id))
	}
	return &run, nil
}

func (r *Repository) ListRuns(ctx context.Context, repoID types.RepositoryID) ([]*model.Run, error) {
	q := r.client.Collection(collRuns).
		Where("RepositoryID", "==", repoID.String()).
		OrderBy("CreatedAt", firestore.Desc)

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs", goerr.V("repository_id", repoID))
	}

	out := make([]*model.Run, 0, len(snaps))
	for _, snap := range snaps {
		var run model.Run
		if err := snap.DataTo(&run); err != nil {
			return nil, goerr.Wrap(err, "failed to decode run", goerr.V("doc_id", snap.Ref.ID))
		}
		out = append(out, &run)
	}
	return out, nil
}
