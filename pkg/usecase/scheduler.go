package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/m-mizutani/relnote/pkg/utils/async"
	"github.com/m-mizutani/relnote/pkg/utils/errutil"
	"github.com/m-mizutani/relnote/pkg/utils/metrics"
)

// RepositoryRunner executes one pipeline run
type RepositoryRunner interface {
	Run(ctx context.Context, repo *model.Repository) (*RunResult, error)
}

type runSlot struct {
	active *model.Run
	queue  []*model.Run
}

// Scheduler allows one active run per repository. Triggers arriving while a
// run is active wait in a bounded queue; beyond that they are coalesced.
type Scheduler struct {
	repo       interfaces.Repository
	runner     RepositoryRunner
	maxQueued  int
	runTimeout time.Duration
	now        func() time.Time

	group async.Group
	mu    sync.Mutex
	slots map[types.RepositoryID]*runSlot
}

var _ interfaces.RunTrigger = (*Scheduler)(nil)

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithMaxQueued sets how many runs may wait behind the active one
func WithMaxQueued(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxQueued = n }
}

// WithRunTimeout bounds a whole run
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.runTimeout = d }
}

// WithSchedulerClock replaces the time source
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler executing runs with runner
func NewScheduler(repo interfaces.Repository, runner RepositoryRunner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		repo:       repo,
		runner:     runner,
		maxQueued:  1,
		runTimeout: 30 * time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
		slots:      make(map[types.RepositoryID]*runSlot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts a run for the repository, or queues it when a run is already
// active. It returns model.ErrRunCoalesced when the queue is full. The run
// executes detached from ctx; only ctx's logger is kept.
func (s *Scheduler) Trigger(ctx context.Context, repoID types.RepositoryID, trigger string) (*model.Run, error) {
	logger := ctxlog.From(ctx)

	if _, err := s.repo.GetRepository(ctx, repoID); err != nil {
		return nil, goerr.Wrap(err, "failed to get repository", goerr.V("repository_id", repoID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[repoID]
	if !ok {
		slot = &runSlot{}
		s.slots[repoID] = slot
	}

	run := model.NewRun(repoID, trigger, s.now())

	if slot.active != nil {
		if len(slot.queue) >= s.maxQueued {
			metrics.TriggersCoalesced.Inc()
			logger.Info("Run coalesced",
				"repository_id", repoID,
				"trigger", trigger,
				"active_run", slot.active.ID,
			)
			return nil, goerr.Wrap(model.ErrRunCoalesced, "run already active and queue is full",
				goerr.V("repository_id", repoID),
				goerr.V("active_run", slot.active.ID),
			)
		}

		// initial state is written under mu, so the worker's writes always follow it
		if err := s.repo.PutRun(ctx, run); err != nil {
			return nil, goerr.Wrap(err, "failed to store queued run")
		}
		slot.queue = append(slot.queue, run)
		logger.Info("Run queued", "run_id", run.ID, "repository_id", repoID, "trigger", trigger)
		c := *run
		return &c, nil
	}

	run.Status = model.RunStatusRunning
	run.StartedAt = s.now()
	if err := s.repo.PutRun(ctx, run); err != nil {
		return nil, goerr.Wrap(err, "failed to store run")
	}
	slot.active = run
	c := *run

	s.group.Go(ctx, func(ctx context.Context) error {
		s.work(ctx, run)
		return nil
	})

	logger.Info("Run started", "run_id", run.ID, "repository_id", repoID, "trigger", trigger)
	return &c, nil
}

// Wait blocks until all active and queued runs have finished
func (s *Scheduler) Wait() {
	s.group.Wait()
}

// Active returns the active run of a repository, if any
func (s *Scheduler) Active(repoID types.RepositoryID) (*model.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[repoID]
	if !ok || slot.active == nil {
		return nil, false
	}
	c := *slot.active
	return &c, true
}

func (s *Scheduler) work(ctx context.Context, run *model.Run) {
	for run != nil {
		s.execute(ctx, run)
		run = s.next(ctx, run.RepositoryID)
	}
}

// next promotes the first queued run or releases the slot
func (s *Scheduler) next(ctx context.Context, repoID types.RepositoryID) *model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slots[repoID]
	if len(slot.queue) == 0 {
		delete(s.slots, repoID)
		return nil
	}

	run := slot.queue[0]
	slot.queue = slot.queue[1:]
	slot.active = run

	run.Status = model.RunStatusRunning
	run.StartedAt = s.now()
	if err := s.repo.PutRun(ctx, run); err != nil {
		errutil.Handle(ctx, "Failed to store run", err)
	}
	return run
}

func (s *Scheduler) execute(ctx context.Context, run *model.Run) {
	logger := ctxlog.From(ctx).With("run_id", run.ID)
	ctx = ctxlog.With(ctx, logger)

	result, err := s.runOnce(ctx, run)

	now := s.now()
	s.mu.Lock()
	if err != nil {
		run.Fail(err, now)
	} else {
		run.Succeed(result.Reason, now)
		run.DraftID = result.DraftID
		run.Records = result.Records
	}
	snapshot := *run
	s.mu.Unlock()

	if err != nil {
		errutil.Handle(ctx, "Run failed", err)
	} else {
		logger.Info("Run succeeded", "reason", run.Reason, "draft_id", run.DraftID)
	}
	metrics.RunsTotal.WithLabelValues(string(snapshot.Status)).Inc()

	if err := s.repo.PutRun(ctx, &snapshot); err != nil {
		errutil.Handle(ctx, "Failed to store finished run", err)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, run *model.Run) (result *RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.From(ctx).Error("panic in pipeline run", "recover", r, "stack", string(debug.Stack()))
			err = goerr.New(fmt.Sprintf("pipeline panicked: %v", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	repo, err := s.repo.GetRepository(runCtx, run.RepositoryID)
	if err != nil {
		return nil, goerr.Wrap(err, "repository is no longer registered")
	}
	return s.runner.Run(runCtx, repo)
}
