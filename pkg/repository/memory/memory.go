package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// Repository is an in-process implementation of interfaces.Repository.
// All returned values are copies; callers may mutate them freely.
type Repository struct {
	mu      sync.RWMutex
	repos   map[types.RepositoryID]*model.Repository
	names   map[string]types.RepositoryID
	records map[types.RepositoryID]map[types.RecordID]*model.EnrichedRecord
	cursors map[types.RepositoryID]model.Cursor
	drafts  map[types.DraftID]*model.Draft
	runs    map[types.RunID]*model.Run
}

var _ interfaces.Repository = (*Repository)(nil)

// New creates an empty memory repository
func New() *Repository {
	return &Repository{
		repos:   make(map[types.RepositoryID]*model.Repository),
		names:   make(map[string]types.RepositoryID),
		records: make(map[types.RepositoryID]map[types.RecordID]*model.EnrichedRecord),
		cursors: make(map[types.RepositoryID]model.Cursor),
		drafts:  make(map[types.DraftID]*model.Draft),
		runs:    make(map[types.RunID]*model.Run),
	}
}

func (r *Repository) PutRepository(ctx context.Context, repo *model.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.names[repo.Name]; ok && id != repo.ID {
		return goerr.Wrap(model.ErrDuplicateName, "repository name already registered",
			goerr.V("name", repo.Name))
	}
	if old, ok := r.repos[repo.ID]; ok && old.Name != repo.Name {
		delete(r.names, old.Name)
	}

	c := *repo
	r.repos[repo.ID] = &c
	r.names[repo.Name] = repo.ID
	return nil
}

func (r *Repository) GetRepository(ctx context.Context, id types.RepositoryID) (*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repo, ok := r.repos[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("repository_id", id))
	}
	c := *repo
	return &c, nil
}

func (r *Repository) GetRepositoryByName(ctx context.Context, name string) (*model.Repository, error) {
	r.mu.RLock()
	id, ok := r.names[name]
	r.mu.RUnlock()
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("name", name))
	}
	return r.GetRepository(ctx, id)
}

func (r *Repository) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Repository, 0, len(r.repos))
	for _, repo := range r.repos {
		c := *repo
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *model.Repository) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *Repository) DeleteRepository(ctx context.Context, id types.RepositoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, ok := r.repos[id]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "repository not found", goerr.V("repository_id", id))
	}

	for _, d := range r.drafts {
		if d.RepositoryID == id {
			d.Active = false
		}
	}
	delete(r.names, repo.Name)
	delete(r.repos, id)
	return nil
}

// PutRecords upserts records. An existing draft assignment is kept when the
// incoming record has none.
func (r *Repository) PutRecords(ctx context.Context, repoID types.RepositoryID, records []*model.EnrichedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.records[repoID]
	if !ok {
		m = make(map[types.RecordID]*model.EnrichedRecord)
		r.records[repoID] = m
	}
	for _, rec := range records {
		c := rec.Clone()
		if old, ok := m[rec.ID]; ok && c.DraftID == "" {
			c.DraftID = old.DraftID
		}
		m[rec.ID] = c
	}
	return nil
}

func (r *Repository) ListPendingRecords(ctx context.Context, repoID types.RepositoryID) ([]*model.EnrichedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.EnrichedRecord
	for _, rec := range r.records[repoID] {
		if rec.DraftID == "" {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (r *Repository) GetRecords(ctx context.Context, repoID types.RepositoryID, ids []types.RecordID) ([]*model.EnrichedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.EnrichedRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := r.records[repoID][id]
		if !ok {
			return nil, goerr.Wrap(model.ErrNotFound, "record not found",
				goerr.V("repository_id", repoID), goerr.V("record_id", id))
		}
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (r *Repository) GetCursor(ctx context.Context, repoID types.RepositoryID) (model.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursors[repoID], nil
}

func (r *Repository) PutCursor(ctx context.Context, repoID types.RepositoryID, cursor model.Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[repoID] = cursor
	return nil
}

func (r *Repository) CreateDraft(ctx context.Context, draft *model.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.drafts[draft.ID]; ok {
		return goerr.Wrap(model.ErrInvalidArgument, "draft already exists", goerr.V("draft_id", draft.ID))
	}

	r.drafts[draft.ID] = draft.Clone()
	for _, id := range draft.RecordIDs {
		if rec, ok := r.records[draft.RepositoryID][id]; ok {
			rec.DraftID = draft.ID
		}
	}
	return nil
}

func (r *Repository) GetDraft(ctx context.Context, id types.DraftID) (*model.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drafts[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V("draft_id", id))
	}
	return d.Clone(), nil
}

func (r *Repository) ListDrafts(ctx context.Context, repoID types.RepositoryID) ([]*model.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Draft
	for _, d := range r.drafts {
		if d.RepositoryID == repoID {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.Draft) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *Repository) UpdateDraft(ctx context.Context, id types.DraftID, fn func(d *model.Draft) error) (*model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.drafts[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V("draft_id", id))
	}

	// fn works on a copy so a failed mutation leaves the stored draft untouched
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.drafts[id] = next
	return next.Clone(), nil
}

func (r *Repository) PutRun(ctx context.Context, run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *run
	r.runs[run.ID] = &c
	return nil
}

func (r *Repository) GetRun(ctx context.Context, id types.RunID) (*model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "run not found", goerr.V("run_id", id))
	}
	c := *run
	return &c, nil
}

func (r *Repository) ListRuns(ctx context.Context, repoID types.RepositoryID) ([]*model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Run
	for _, run := range r.runs {
		if run.RepositoryID == repoID {
			c := *run
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.Run) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func sortRecords(records []*model.EnrichedRecord) {
	slices.SortFunc(records, func(a, b *model.EnrichedRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
