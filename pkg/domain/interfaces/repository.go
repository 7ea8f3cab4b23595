package interfaces

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// Repository is the persisted state of the pipeline
type Repository interface {
	// PutRepository registers a repository; the name must be unique (model.ErrDuplicateName)
	PutRepository(ctx context.Context, repo *model.Repository) error
	GetRepository(ctx context.Context, id types.RepositoryID) (*model.Repository, error)
	GetRepositoryByName(ctx context.Context, name string) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]*model.Repository, error)
	// DeleteRepository removes the repository and deactivates all of its drafts
	DeleteRepository(ctx context.Context, id types.RepositoryID) error

	// PutRecords upserts records keyed by record id
	PutRecords(ctx context.Context, repoID types.RepositoryID, records []*model.EnrichedRecord) error
	// ListPendingRecords returns records not yet summarized into a draft
	ListPendingRecords(ctx context.Context, repoID types.RepositoryID) ([]*model.EnrichedRecord, error)
	GetRecords(ctx context.Context, repoID types.RepositoryID, ids []types.RecordID) ([]*model.EnrichedRecord, error)

	GetCursor(ctx context.Context, repoID types.RepositoryID) (model.Cursor, error)
	PutCursor(ctx context.Context, repoID types.RepositoryID, cursor model.Cursor) error

	// CreateDraft stores the draft and marks its records as drafted in one atomic step
	CreateDraft(ctx context.Context, draft *model.Draft) error
	GetDraft(ctx context.Context, id types.DraftID) (*model.Draft, error)
	ListDrafts(ctx context.Context, repoID types.RepositoryID) ([]*model.Draft, error)
	// UpdateDraft atomically reads, mutates and stores a draft. fn may be called more
	// than once and must not have side effects.
	UpdateDraft(ctx context.Context, id types.DraftID, fn func(d *model.Draft) error) (*model.Draft, error)

	PutRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id types.RunID) (*model.Run, error)
	ListRuns(ctx context.Context, repoID types.RepositoryID) ([]*model.Run, error)
}
