package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/m-mizutani/relnote/pkg/repository/firestore"
	"github.com/m-mizutani/relnote/pkg/repository/memory"
)

func newRepositories(t *testing.T) map[string]interfaces.Repository {
	repos := map[string]interfaces.Repository{
		"memory": memory.New(),
	}

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID != "" {
		databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
		if databaseID == "" {
			databaseID = "(default)"
		}
		fs, err := firestore.New(context.Background(), projectID, databaseID)
		gt.NoError(t, err)
		t.Cleanup(func() { _ = fs.Close() })
		repos["firestore"] = fs
	}

	return repos
}

func newRepo(name string) *model.Repository {
	return &model.Repository{
		ID:        types.NewRepositoryID(),
		Name:      name,
		Provider:  model.ProviderGitHub,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func newRecord(repoID types.RepositoryID, id string, ts time.Time) *model.EnrichedRecord {
	return &model.EnrichedRecord{
		ChangeRecord: model.ChangeRecord{
			ID:           types.RecordID(id),
			RepositoryID: repoID,
			Kind:         model.RawKindCommit,
			Text:         "fix: " + id,
			Timestamp:    ts,
			Category:     model.CategoryBugfix,
		},
	}
}

func TestRepository_Repositories(t *testing.T) {
	for name, repo := range newRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			suffix := types.NewRunID().String()

			r1 := newRepo("acme/app-" + suffix)
			gt.NoError(t, repo.PutRepository(ctx, r1))

			got, err := repo.GetRepositoryByName(ctx, r1.Name)
			gt.NoError(t, err)
			gt.Equal(t, got.ID, r1.ID)

			t.Run("duplicate name is rejected", func(t *testing.T) {
				dup := newRepo(r1.Name)
				err := repo.PutRepository(ctx, dup)
				gt.True(t, errors.Is(err, model.ErrDuplicateName))
			})

			t.Run("re-putting the same repository is allowed", func(t *testing.T) {
				gt.NoError(t, repo.PutRepository(ctx, r1))
			})

			t.Run("rename releases the previous name", func(t *testing.T) {
				renamed := *r1
				renamed.Name = "acme/renamed-" + suffix
				gt.NoError(t, repo.PutRepository(ctx, &renamed))

				_, err := repo.GetRepositoryByName(ctx, r1.Name)
				gt.True(t, errors.Is(err, model.ErrNotFound))
				got, err := repo.GetRepositoryByName(ctx, renamed.Name)
				gt.NoError(t, err)
				gt.Equal(t, got.ID, r1.ID)

				other := newRepo(r1.Name)
				gt.NoError(t, repo.PutRepository(ctx, other))
				gt.NoError(t, repo.DeleteRepository(ctx, other.ID))

				gt.NoError(t, repo.PutRepository(ctx, r1))
			})

			t.Run("delete deactivates drafts", func(t *testing.T) {
				d := &model.Draft{
					ID:           types.NewDraftID(),
					RepositoryID: r1.ID,
					Status:       model.DraftStatusDraft,
					Active:       true,
					CreatedAt:    time.Now().UTC(),
				}
				gt.NoError(t, repo.CreateDraft(ctx, d))
				gt.NoError(t, repo.DeleteRepository(ctx, r1.ID))

				_, err := repo.GetRepository(ctx, r1.ID)
				gt.True(t, errors.Is(err, model.ErrNotFound))
				_, err = repo.GetRepositoryByName(ctx, r1.Name)
				gt.True(t, errors.Is(err, model.ErrNotFound))

				got, err := repo.GetDraft(ctx, d.ID)
				gt.NoError(t, err)
				gt.False(t, got.Active)
			})

			t.Run("delete unknown repository", func(t *testing.T) {
				err := repo.DeleteRepository(ctx, types.NewRepositoryID())
				gt.True(t, errors.Is(err, model.ErrNotFound))
			})
		})
	}
}

func TestRepository_RecordsAndDrafts(t *testing.T) {
	for name, repo := range newRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRepo("acme/records-" + types.NewRunID().String())
			gt.NoError(t, repo.PutRepository(ctx, r))

			base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			recs := []*model.EnrichedRecord{
				newRecord(r.ID, "commit:b", base.Add(time.Hour)),
				newRecord(r.ID, "commit:a", base),
			}
			gt.NoError(t, repo.PutRecords(ctx, r.ID, recs))

			// upsert keeps one entry per id
			gt.NoError(t, repo.PutRecords(ctx, r.ID, recs[:1]))

			pending, err := repo.ListPendingRecords(ctx, r.ID)
			gt.NoError(t, err)
			gt.A(t, pending).Length(2)
			gt.Equal(t, pending[0].ID, types.RecordID("commit:a"))

			d := &model.Draft{
				ID:           types.NewDraftID(),
				RepositoryID: r.ID,
				RecordIDs:    []types.RecordID{"commit:a"},
				Status:       model.DraftStatusDraft,
				Active:       true,
				CreatedAt:    base,
			}
			gt.NoError(t, repo.CreateDraft(ctx, d))

			pending, err = repo.ListPendingRecords(ctx, r.ID)
			gt.NoError(t, err)
			gt.A(t, pending).Length(1)
			gt.Equal(t, pending[0].ID, types.RecordID("commit:b"))

			got, err := repo.GetRecords(ctx, r.ID, []types.RecordID{"commit:a"})
			gt.NoError(t, err)
			gt.Equal(t, got[0].DraftID, d.ID)

			// a replayed record keeps its draft assignment
			gt.NoError(t, repo.PutRecords(ctx, r.ID, []*model.EnrichedRecord{newRecord(r.ID, "commit:a", base)}))
			pending, err = repo.ListPendingRecords(ctx, r.ID)
			gt.NoError(t, err)
			gt.A(t, pending).Length(1)

			_, err = repo.GetRecords(ctx, r.ID, []types.RecordID{"commit:zzz"})
			gt.True(t, errors.Is(err, model.ErrNotFound))

			drafts, err := repo.ListDrafts(ctx, r.ID)
			gt.NoError(t, err)
			gt.A(t, drafts).Length(1)
		})
	}
}

func TestRepository_LargeDraft(t *testing.T) {
	for name, repo := range newRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRepo("acme/large-" + types.NewRunID().String())
			gt.NoError(t, repo.PutRepository(ctx, r))

			base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			recs := make([]*model.EnrichedRecord, 0, 950)
			ids := make([]types.RecordID, 0, 950)
			for i := range 950 {
				rec := newRecord(r.ID, fmt.Sprintf("commit:%04d", i), base.Add(time.Duration(i)*time.Minute))
				recs = append(recs, rec)
				ids = append(ids, rec.ID)
			}
			gt.NoError(t, repo.PutRecords(ctx, r.ID, recs))

			d := &model.Draft{
				ID:           types.NewDraftID(),
				RepositoryID: r.ID,
				RecordIDs:    ids,
				Status:       model.DraftStatusDraft,
				Active:       true,
				CreatedAt:    base,
			}
			gt.NoError(t, repo.CreateDraft(ctx, d))

			pending, err := repo.ListPendingRecords(ctx, r.ID)
			gt.NoError(t, err)
			gt.A(t, pending).Length(0)

			got, err := repo.GetRecords(ctx, r.ID, []types.RecordID{ids[0], ids[len(ids)-1]})
			gt.NoError(t, err)
			for _, rec := range got {
				gt.Equal(t, rec.DraftID, d.ID)
			}

			stored, err := repo.GetDraft(ctx, d.ID)
			gt.NoError(t, err)
			gt.A(t, stored.RecordIDs).Length(950)
		})
	}
}

func TestRepository_UpdateDraft(t *testing.T) {
	for name, repo := range newRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := &model.Draft{
				ID:           types.NewDraftID(),
				RepositoryID: types.NewRepositoryID(),
				Internal:     "internal",
				Status:       model.DraftStatusDraft,
				Active:       true,
				CreatedAt:    time.Now().UTC(),
			}
			gt.NoError(t, repo.CreateDraft(ctx, d))

			t.Run("failed mutation leaves draft untouched", func(t *testing.T) {
				_, err := repo.UpdateDraft(ctx, d.ID, func(d *model.Draft) error {
					d.Internal = "changed"
					return model.ErrInvalidTransition
				})
				gt.True(t, errors.Is(err, model.ErrInvalidTransition))

				got, err := repo.GetDraft(ctx, d.ID)
				gt.NoError(t, err)
				gt.Equal(t, got.Internal, "internal")
			})

			t.Run("concurrent approve and reject: exactly one wins", func(t *testing.T) {
				var wg sync.WaitGroup
				results := make([]error, 2)
				for i, action := range []model.DraftAction{model.DraftActionApprove, model.DraftActionReject} {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, results[i] = repo.UpdateDraft(ctx, d.ID, func(d *model.Draft) error {
							return d.Apply(action, nil, time.Now())
						})
					}()
				}
				wg.Wait()

				var succeeded int
				for _, err := range results {
					if err == nil {
						succeeded++
					} else {
						gt.True(t, errors.Is(err, model.ErrInvalidTransition))
					}
				}
				gt.Equal(t, succeeded, 1)

				got, err := repo.GetDraft(ctx, d.ID)
				gt.NoError(t, err)
				gt.True(t, got.Status.IsTerminal())
			})

			t.Run("unknown draft", func(t *testing.T) {
				_, err := repo.UpdateDraft(ctx, types.NewDraftID(), func(d *model.Draft) error { return nil })
				gt.True(t, errors.Is(err, model.ErrNotFound))
			})
		})
	}
}

func TestRepository_CursorsAndRuns(t *testing.T) {
	for name, repo := range newRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repoID := types.NewRepositoryID()

			cur, err := repo.GetCursor(ctx, repoID)
			gt.NoError(t, err)
			gt.Equal(t, cur, model.Cursor(""))

			gt.NoError(t, repo.PutCursor(ctx, repoID, "page=2"))
			cur, err = repo.GetCursor(ctx, repoID)
			gt.NoError(t, err)
			gt.Equal(t, cur, model.Cursor("page=2"))

			run := model.NewRun(repoID, "manual", time.Now().UTC())
			gt.NoError(t, repo.PutRun(ctx, run))
			run.Fail(model.ErrSourceUnavailable, time.Now().UTC())
			gt.NoError(t, repo.PutRun(ctx, run))

			got, err := repo.GetRun(ctx, run.ID)
			gt.NoError(t, err)
			gt.Equal(t, got.Status, model.RunStatusFailed)
			gt.Equal(t, got.Reason, "source unavailable")

			runs, err := repo.ListRuns(ctx, repoID)
			gt.NoError(t, err)
			gt.A(t, runs).Length(1)

			_, err = repo.GetRun(ctx, types.NewRunID())
			gt.True(t, errors.Is(err, model.ErrNotFound))
		})
	}
}
