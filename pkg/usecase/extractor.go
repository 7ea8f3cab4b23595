package usecase

import (
	"context"
	"errors"
	"iter"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/m-mizutani/relnote/pkg/utils/metrics"
)

const (
	defaultFetchTimeout     = 30 * time.Second
	defaultFetchTries       = 5
	defaultMaxRateLimitWait = 5 * time.Minute
)

// Extractor pulls change events from a provider and normalizes them into
// change records, one provider page per batch
type Extractor struct {
	provider         interfaces.VCSProvider
	fetchTimeout     time.Duration
	maxTries         uint
	maxRateLimitWait time.Duration
	newBackOff       func() backoff.BackOff
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithFetchTimeout bounds a single provider call
func WithFetchTimeout(d time.Duration) ExtractorOption {
	return func(x *Extractor) { x.fetchTimeout = d }
}

// WithFetchTries sets the maximum number of attempts per page
func WithFetchTries(n uint) ExtractorOption {
	return func(x *Extractor) { x.maxTries = n }
}

// WithMaxRateLimitWait caps the wait honored for a rate limit signal
func WithMaxRateLimitWait(d time.Duration) ExtractorOption {
	return func(x *Extractor) { x.maxRateLimitWait = d }
}

// WithFetchBackOff replaces the retry schedule between attempts
func WithFetchBackOff(fn func() backoff.BackOff) ExtractorOption {
	return func(x *Extractor) { x.newBackOff = fn }
}

// NewExtractor creates an extractor reading from provider
func NewExtractor(provider interfaces.VCSProvider, opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		provider:         provider,
		fetchTimeout:     defaultFetchTimeout,
		maxTries:         defaultFetchTries,
		maxRateLimitWait: defaultMaxRateLimitWait,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Batches yields normalized record batches starting at cursor. The sequence is
// lazy: a page is fetched only when the consumer asks for the next batch, so a
// consumer that stops early can resume later from the last persisted cursor.
// A fetch error is yielded once and ends the sequence.
func (x *Extractor) Batches(ctx context.Context, repo *model.Repository, cursor model.Cursor) iter.Seq2[*model.EventBatch, error] {
	return func(yield func(*model.EventBatch, error) bool) {
		logger := ctxlog.From(ctx)
		cur := cursor

		for {
			res, err := x.fetch(ctx, &model.FetchRequest{Repository: repo, Cursor: cur})
			if err != nil {
				yield(nil, err)
				return
			}

			batch := &model.EventBatch{
				Records: make([]*model.ChangeRecord, 0, len(res.Events)),
				Next:    res.Next,
				Done:    res.Done,
			}
			for _, ev := range res.Events {
				rec := NormalizeEvent(repo.ID, ev)
				// "Merge branch 'x'" alone says nothing; the merged changes arrive on their own
				if CleanSubject(rec.Text) == "" {
					logger.Debug("Skipping event without content",
						"repository", repo.Name,
						"record_id", rec.ID,
					)
					continue
				}
				batch.Records = append(batch.Records, rec)
			}

			if !res.Done && res.Next == cur {
				logger.Warn("Provider cursor did not advance, stopping extraction",
					"repository", repo.Name,
					"cursor", cur,
				)
				batch.Done = true
			}

			if !yield(batch, nil) || batch.Done {
				return
			}
			cur = res.Next
		}
	}
}

func (x *Extractor) fetch(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	logger := ctxlog.From(ctx)

	op := func() (*model.FetchResult, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, x.fetchTimeout)
		defer cancel()

		res, err := x.provider.FetchEvents(fetchCtx, req)
		if err == nil {
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if model.IsPermanentSourceError(err) {
			return nil, backoff.Permanent(err)
		}
		if rl, ok := model.IsRateLimit(err); ok {
			wait := min(rl.RetryAfter, x.maxRateLimitWait)
			logger.Warn("Provider rate limited, waiting",
				"repository", req.Repository.Name,
				"retry_after", wait,
			)
			metrics.SourceRetries.WithLabelValues("rate_limit").Inc()
			return nil, backoff.RetryAfter(int(math.Ceil(max(wait, time.Second).Seconds())))
		}

		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		logger.Warn("Provider fetch failed, retrying",
			"repository", req.Repository.Name,
			"reason", reason,
			"error", err,
		)
		metrics.SourceRetries.WithLabelValues(reason).Inc()
		return nil, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(x.newBackOff()),
		backoff.WithMaxTries(x.maxTries),
	)
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return nil, goerr.Wrap(ctx.Err(), "extraction cancelled", goerr.V("repository", req.Repository.Name))
	}
	if model.IsPermanentSourceError(err) {
		return nil, goerr.Wrap(err, "provider rejected request",
			goerr.V("repository", req.Repository.Name),
			goerr.V("cursor", req.Cursor),
		)
	}
	return nil, goerr.Wrap(model.ErrSourceUnavailable, "provider fetch exhausted retries",
		goerr.V("repository", req.Repository.Name),
		goerr.V("cursor", req.Cursor),
		goerr.V("last_error", err.Error()),
	)
}

// NormalizeEvent converts a provider event into a change record. The record id
// is the kind-prefixed external id, so re-fetching the same event yields the
// same record.
func NormalizeEvent(repoID types.RepositoryID, ev *model.RawEvent) *model.ChangeRecord {
	text := strings.TrimSpace(ev.Title)
	if body := strings.TrimSpace(ev.Body); body != "" {
		text += "\n\n" + body
	}

	return &model.ChangeRecord{
		ID:           RecordID(ev.Kind, ev.ExternalID),
		RepositoryID: repoID,
		Kind:         ev.Kind,
		Text:         text,
		Author:       ev.Author,
		Timestamp:    model.NormalizeTime(ev.Timestamp),
		Sources: []model.SourceRef{
			{Kind: ev.Kind, ExternalID: ev.ExternalID, URL: ev.URL},
		},
		Files: slices.Clone(ev.Files),
	}
}

// RecordID builds the stable record id of an external object
func RecordID(kind model.RawKind, externalID string) types.RecordID {
	return types.RecordID(string(kind) + ":" + externalID)
}
