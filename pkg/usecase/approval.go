package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/m-mizutani/relnote/pkg/utils/errutil"
)

type approvalUseCase struct {
	repo       interfaces.Repository
	publisher  interfaces.Publisher
	summarizer *Summarizer
	embedder   interfaces.Embedder
	summaries  interfaces.SimilarityIndex
	now        func() time.Time
	newBackOff func() backoff.BackOff
	maxTries   uint
}

var _ interfaces.ApprovalUseCase = (*approvalUseCase)(nil)

// ApprovalOption configures the approval use case
type ApprovalOption func(*approvalUseCase)

// WithApprovalClock replaces the time source
func WithApprovalClock(now func() time.Time) ApprovalOption {
	return func(uc *approvalUseCase) { uc.now = now }
}

// WithLookupBackOff sets the retry policy of the repository lookup that runs
// before publishing
func WithLookupBackOff(fn func() backoff.BackOff, maxTries uint) ApprovalOption {
	return func(uc *approvalUseCase) {
		uc.newBackOff = fn
		uc.maxTries = maxTries
	}
}

// WithSummaryIndex stores approved internal summaries for future context
func WithSummaryIndex(embedder interfaces.Embedder, summaries interfaces.SimilarityIndex) ApprovalOption {
	return func(uc *approvalUseCase) {
		uc.embedder = embedder
		uc.summaries = summaries
	}
}

// NewApproval creates the approval state machine driver
func NewApproval(repo interfaces.Repository, publisher interfaces.Publisher, summarizer *Summarizer, opts ...ApprovalOption) *approvalUseCase {
	uc := &approvalUseCase{
		repo:       repo,
		publisher:  publisher,
		summarizer: summarizer,
		now:        func() time.Time { return time.Now().UTC() },
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		maxTries: 5,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *approvalUseCase) transition(ctx context.Context, id types.DraftID, action model.DraftAction, edit *model.EditRequest) (*model.Draft, error) {
	now := uc.now()
	d, err := uc.repo.UpdateDraft(ctx, id, func(d *model.Draft) error {
		return d.Apply(action, edit, now)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "draft transition failed",
			goerr.V("draft_id", id),
			goerr.V("action", action),
		)
	}

	ctxlog.From(ctx).Info("Draft transitioned",
		"draft_id", id,
		"action", action,
		"status", d.Status,
	)
	return d, nil
}

// Edit replaces the text of one audience, keeping the prior version in history
func (uc *approvalUseCase) Edit(ctx context.Context, id types.DraftID, req *model.EditRequest) (*model.Draft, error) {
	return uc.transition(ctx, id, model.DraftActionEdit, req)
}

// Reject closes the draft; a rejected draft can only be regenerated
func (uc *approvalUseCase) Reject(ctx context.Context, id types.DraftID) (*model.Draft, error) {
	return uc.transition(ctx, id, model.DraftActionReject, nil)
}

// Approve closes the draft as approved and fires the publish hook. Only the
// caller whose transition succeeds publishes, so the hook runs at most once per
// draft. A publish failure is reported but does not undo the approval.
func (uc *approvalUseCase) Approve(ctx context.Context, id types.DraftID) (*model.Draft, error) {
	d, err := uc.transition(ctx, id, model.DraftActionApprove, nil)
	if err != nil {
		return nil, err
	}

	// the approval is committed at this point; a lost lookup would lose the hook
	repo, err := backoff.Retry(ctx, func() (*model.Repository, error) {
		repo, err := uc.repo.GetRepository(ctx, d.RepositoryID)
		if errors.Is(err, model.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return repo, err
	}, backoff.WithBackOff(uc.newBackOff()), backoff.WithMaxTries(uc.maxTries))
	if err != nil {
		errutil.Handle(ctx, "Failed to load repository for publishing", goerr.Wrap(err, "repository lookup failed",
			goerr.V("draft_id", d.ID)))
		return d, nil
	}

	if uc.publisher != nil {
		if err := uc.publisher.Publish(ctx, repo, d); err != nil {
			errutil.Handle(ctx, "Failed to publish approved draft", goerr.Wrap(err, "publish hook failed",
				goerr.V("draft_id", d.ID),
				goerr.V("repository", repo.Name),
			))
		} else {
			publishedAt := uc.now()
			updated, err := uc.repo.UpdateDraft(ctx, d.ID, func(d *model.Draft) error {
				d.PublishedAt = publishedAt
				return nil
			})
			if err != nil {
				errutil.Handle(ctx, "Failed to record publish time", err)
			} else {
				d = updated
			}
		}
	}

	uc.indexSummary(ctx, d)
	return d, nil
}

func (uc *approvalUseCase) indexSummary(ctx context.Context, d *model.Draft) {
	if uc.embedder == nil || uc.summaries == nil {
		return
	}

	vec, err := uc.embedder.Embed(ctx, d.Internal)
	if err != nil {
		errutil.Handle(ctx, "Failed to embed approved summary", err)
		return
	}
	if err := uc.summaries.Upsert(ctx, &model.EmbeddingEntry{
		ID:     "draft:" + d.ID.String(),
		Vector: vec,
		Metadata: map[string]string{
			model.MetaRepositoryID: d.RepositoryID.String(),
			model.MetaTimestamp:    d.UpdatedAt.UTC().Format(time.RFC3339),
			model.MetaText:         d.Internal,
			model.MetaKind:         "summary",
		},
	}); err != nil {
		errutil.Handle(ctx, "Failed to index approved summary", err)
	}
}

// Regenerate creates a new draft from the records of a rejected draft. The
// rejected draft stays rejected and names its successor, so a draft is
// regenerated at most once.
func (uc *approvalUseCase) Regenerate(ctx context.Context, id types.DraftID) (*model.Draft, error) {
	nextID := types.NewDraftID()
	prev, err := uc.repo.UpdateDraft(ctx, id, func(d *model.Draft) error {
		if !d.Active || d.Status != model.DraftStatusRejected {
			return goerr.Wrap(model.ErrInvalidTransition, "only an active rejected draft can be regenerated",
				goerr.V("status", d.Status))
		}
		if d.RegeneratedTo != "" {
			return goerr.Wrap(model.ErrInvalidTransition, "draft already regenerated",
				goerr.V("regenerated_to", d.RegeneratedTo))
		}
		d.RegeneratedTo = nextID
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to claim draft for regeneration", goerr.V("draft_id", id))
	}

	next, err := uc.regenerate(ctx, prev, nextID)
	if err != nil {
		uc.releaseClaim(ctx, id, nextID)
		return nil, err
	}

	ctxlog.From(ctx).Info("Draft regenerated",
		"draft_id", next.ID,
		"regenerated_from", prev.ID,
	)
	return next, nil
}

func (uc *approvalUseCase) regenerate(ctx context.Context, prev *model.Draft, nextID types.DraftID) (*model.Draft, error) {
	repo, err := uc.repo.GetRepository(ctx, prev.RepositoryID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get repository", goerr.V("draft_id", prev.ID))
	}

	records, err := uc.repo.GetRecords(ctx, repo.ID, prev.RecordIDs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load draft records", goerr.V("draft_id", prev.ID))
	}

	summary, err := uc.summarizer.Summarize(ctx, repo, Collapse(records))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to regenerate summaries", goerr.V("draft_id", prev.ID))
	}

	now := uc.now()
	next := &model.Draft{
		ID:              nextID,
		RepositoryID:    repo.ID,
		Internal:        summary.Internal,
		External:        summary.External,
		TemplateVersion: summary.TemplateVersion,
		RecordIDs:       prev.RecordIDs,
		Status:          model.DraftStatusDraft,
		Active:          true,
		RegeneratedFrom: prev.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := uc.repo.CreateDraft(ctx, next); err != nil {
		return nil, goerr.Wrap(err, "failed to store regenerated draft", goerr.V("draft_id", prev.ID))
	}
	return next, nil
}

// releaseClaim lets a failed regeneration be retried
func (uc *approvalUseCase) releaseClaim(ctx context.Context, id, nextID types.DraftID) {
	_, err := uc.repo.UpdateDraft(ctx, id, func(d *model.Draft) error {
		if d.RegeneratedTo == nextID {
			d.RegeneratedTo = ""
		}
		return nil
	})
	if err != nil {
		errutil.Handle(ctx, "Failed to release regeneration claim", goerr.Wrap(err, "release failed",
			goerr.V("draft_id", id)))
	}
}
