package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	repomemory "github.com/m-mizutani/relnote/pkg/repository/memory"
	"github.com/m-mizutani/relnote/pkg/usecase"
)

// blockingRunner holds every run until release is closed
type blockingRunner struct {
	mu      sync.Mutex
	started chan types.RepositoryID
	release chan struct{}
	err     error
	active  map[types.RepositoryID]int
	maxSeen int
	runs    int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan types.RepositoryID, 16),
		release: make(chan struct{}),
		active:  make(map[types.RepositoryID]int),
	}
}

func (r *blockingRunner) Run(ctx context.Context, repo *model.Repository) (*usecase.RunResult, error) {
	r.mu.Lock()
	r.active[repo.ID]++
	r.maxSeen = max(r.maxSeen, r.active[repo.ID])
	r.runs++
	r.mu.Unlock()

	r.started <- repo.ID
	<-r.release

	r.mu.Lock()
	r.active[repo.ID]--
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return &usecase.RunResult{Reason: usecase.ReasonNoNewChanges}, nil
}

func waitStarted(t *testing.T, r *blockingRunner) types.RepositoryID {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func TestScheduler_Coalescing(t *testing.T) {
	ctx := context.Background()
	repo := repomemory.New()
	target := newTestRepo()
	gt.NoError(t, repo.PutRepository(ctx, target))

	runner := newBlockingRunner()
	s := usecase.NewScheduler(repo, runner)

	first, err := s.Trigger(ctx, target.ID, "manual")
	gt.NoError(t, err)
	gt.Equal(t, first.Status, model.RunStatusRunning)
	waitStarted(t, runner)

	second, err := s.Trigger(ctx, target.ID, "webhook:push")
	gt.NoError(t, err)
	gt.Equal(t, second.Status, model.RunStatusQueued)

	_, err = s.Trigger(ctx, target.ID, "webhook:push")
	gt.True(t, errors.Is(err, model.ErrRunCoalesced))

	active, ok := s.Active(target.ID)
	gt.True(t, ok)
	gt.Equal(t, active.ID, first.ID)

	close(runner.release)
	s.Wait()

	gt.Equal(t, runner.runs, 2)
	gt.Equal(t, runner.maxSeen, 1)
	_, ok = s.Active(target.ID)
	gt.False(t, ok)

	for _, id := range []types.RunID{first.ID, second.ID} {
		run, err := repo.GetRun(ctx, id)
		gt.NoError(t, err)
		gt.Equal(t, run.Status, model.RunStatusSucceeded)
		gt.Equal(t, run.Reason, usecase.ReasonNoNewChanges)
	}

	runs, err := repo.ListRuns(ctx, target.ID)
	gt.NoError(t, err)
	gt.A(t, runs).Length(2)
}

func TestScheduler_IndependentRepositories(t *testing.T) {
	ctx := context.Background()
	repo := repomemory.New()
	a, b := newTestRepo(), newTestRepo()
	b.Name = "acme/other"
	gt.NoError(t, repo.PutRepository(ctx, a))
	gt.NoError(t, repo.PutRepository(ctx, b))

	runner := newBlockingRunner()
	s := usecase.NewScheduler(repo, runner)

	_, err := s.Trigger(ctx, a.ID, "manual")
	gt.NoError(t, err)
	_, err = s.Trigger(ctx, b.ID, "manual")
	gt.NoError(t, err)

	waitStarted(t, runner)
	waitStarted(t, runner)
	close(runner.release)
	s.Wait()
	gt.Equal(t, runner.runs, 2)
}

func TestScheduler_Failure(t *testing.T) {
	ctx := context.Background()
	repo := repomemory.New()
	target := newTestRepo()
	gt.NoError(t, repo.PutRepository(ctx, target))

	runner := newBlockingRunner()
	runner.err = model.ErrSourceUnavailable
	close(runner.release)
	s := usecase.NewScheduler(repo, runner)

	run, err := s.Trigger(ctx, target.ID, "manual")
	gt.NoError(t, err)
	s.Wait()

	got, err := repo.GetRun(ctx, run.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Status, model.RunStatusFailed)
	gt.Equal(t, got.Reason, "source unavailable")
	gt.False(t, got.FinishedAt.IsZero())

	// the slot is released after a failure
	_, err = s.Trigger(ctx, target.ID, "manual")
	gt.NoError(t, err)
	s.Wait()
}

func TestScheduler_UnknownRepository(t *testing.T) {
	s := usecase.NewScheduler(repomemory.New(), newBlockingRunner())
	_, err := s.Trigger(context.Background(), types.NewRepositoryID(), "manual")
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
