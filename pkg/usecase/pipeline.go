package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"golang.org/x/sync/errgroup"
)

// ReasonNoNewChanges is the reason of a successful run with nothing to summarize
const ReasonNoNewChanges = "no new changes"

// RunResult is the outcome of one successful pipeline execution
type RunResult struct {
	DraftID types.DraftID
	Records int
	Reason  string
}

// Pipeline executes one extraction-to-draft run for a repository
type Pipeline struct {
	repo       interfaces.Repository
	providers  interfaces.ProviderFactory
	classifier *Classifier
	summarizer *Summarizer
	embedder   interfaces.Embedder
	records    interfaces.SimilarityIndex

	extractorOpts     []ExtractorOption
	enrichConcurrency int
	enrichTimeout     time.Duration
	indexTimeout      time.Duration
	now               func() time.Time
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithExtractorOptions passes options to the extractor of every run
func WithExtractorOptions(opts ...ExtractorOption) PipelineOption {
	return func(p *Pipeline) { p.extractorOpts = append(p.extractorOpts, opts...) }
}

// WithEnrichment sets concurrency and per-reference timeout of enrichment
func WithEnrichment(concurrency int, timeout time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.enrichConcurrency = concurrency
		p.enrichTimeout = timeout
	}
}

// WithRecordIndex stores every summarized record in the records index
func WithRecordIndex(embedder interfaces.Embedder, records interfaces.SimilarityIndex) PipelineOption {
	return func(p *Pipeline) {
		p.embedder = embedder
		p.records = records
	}
}

// WithPipelineClock replaces the time source
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline
func NewPipeline(
	repo interfaces.Repository,
	providers interfaces.ProviderFactory,
	classifier *Classifier,
	summarizer *Summarizer,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		repo:         repo,
		providers:    providers,
		classifier:   classifier,
		summarizer:   summarizer,
		indexTimeout: 30 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests new events of repo and creates a draft from all pending records.
// Records and the cursor are persisted batch by batch, so a failed run keeps
// what it has already stored and the next run resumes after it.
func (p *Pipeline) Run(ctx context.Context, repo *model.Repository) (*RunResult, error) {
	logger := ctxlog.From(ctx).With("repository", repo.Name)
	ctx = ctxlog.With(ctx, logger)

	if err := p.ingest(ctx, repo); err != nil {
		return nil, err
	}

	pending, err := p.repo.ListPendingRecords(ctx, repo.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending records")
	}
	if len(pending) == 0 {
		logger.Info("No pending records, skipping summarization")
		return &RunResult{Reason: ReasonNoNewChanges}, nil
	}

	reps := Collapse(pending)
	logger.Info("Summarizing pending records",
		"pending", len(pending),
		"collapsed", len(reps),
	)

	var summary *Summary
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		p.indexRecords(egCtx, reps)
		return nil
	})
	eg.Go(func() error {
		s, err := p.summarizer.Summarize(egCtx, repo, reps)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to summarize records")
	}

	ids := make([]types.RecordID, len(pending))
	for i, r := range pending {
		ids[i] = r.ID
	}

	now := p.now()
	draft := &model.Draft{
		ID:              types.NewDraftID(),
		RepositoryID:    repo.ID,
		Internal:        summary.Internal,
		External:        summary.External,
		TemplateVersion: summary.TemplateVersion,
		RecordIDs:       ids,
		Status:          model.DraftStatusDraft,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.repo.CreateDraft(ctx, draft); err != nil {
		return nil, goerr.Wrap(err, "failed to create draft")
	}

	logger.Info("Draft created", "draft_id", draft.ID, "records", len(reps))
	return &RunResult{
		DraftID: draft.ID,
		Records: len(reps),
		Reason:  fmt.Sprintf("draft created from %d changes", len(reps)),
	}, nil
}

func (p *Pipeline) ingest(ctx context.Context, repo *model.Repository) error {
	logger := ctxlog.From(ctx)

	provider, tracker, err := p.providers.Provider(repo)
	if err != nil {
		return goerr.Wrap(err, "failed to build provider")
	}

	cursor, err := p.repo.GetCursor(ctx, repo.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to get cursor")
	}

	extractor := NewExtractor(provider, p.extractorOpts...)
	enricher := NewEnricher(tracker, p.enrichConcurrency, p.enrichTimeout)

	for batch, err := range extractor.Batches(ctx, repo, cursor) {
		if err != nil {
			return goerr.Wrap(err, "extraction failed")
		}

		records := make([]*model.EnrichedRecord, len(batch.Records))
		for i, r := range batch.Records {
			records[i] = &model.EnrichedRecord{ChangeRecord: *r}
		}
		records = Collapse(records)

		for _, r := range records {
			p.classifier.Classify(ctx, &r.ChangeRecord)
		}
		if err := enricher.Enrich(ctx, repo, records); err != nil {
			return err
		}

		if len(records) > 0 {
			if err := p.repo.PutRecords(ctx, repo.ID, records); err != nil {
				return goerr.Wrap(err, "failed to store records")
			}
		}
		if err := p.repo.PutCursor(ctx, repo.ID, batch.Next); err != nil {
			return goerr.Wrap(err, "failed to store cursor")
		}

		logger.Debug("Batch ingested",
			"records", len(records),
			"cursor", batch.Next,
			"done", batch.Done,
		)
	}
	return nil
}

// indexRecords embeds records into the records index. Indexing is best effort;
// a record that fails is logged and skipped.
func (p *Pipeline) indexRecords(ctx context.Context, records []*model.EnrichedRecord) {
	if p.embedder == nil || p.records == nil {
		return
	}
	logger := ctxlog.From(ctx)

	for _, r := range records {
		if ctx.Err() != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, p.indexTimeout)
		vec, err := p.embedder.Embed(callCtx, r.Text)
		if err == nil {
			err = p.records.Upsert(callCtx, RecordEmbedding(r, vec))
		}
		cancel()

		if err != nil {
			logger.Warn("Failed to index record", "record_id", r.ID, "error", err)
		}
	}
}

// RecordEmbedding builds the index entry of a record
func RecordEmbedding(r *model.EnrichedRecord, vec []float32) *model.EmbeddingEntry {
	return &model.EmbeddingEntry{
		ID:     r.ID.String(),
		Vector: vec,
		Metadata: map[string]string{
			model.MetaRepositoryID: r.RepositoryID.String(),
			model.MetaTimestamp:    r.Timestamp.UTC().Format(time.RFC3339),
			model.MetaText:         Subject(r.Text),
			model.MetaKind:         string(r.Kind),
			model.MetaCategory:     string(r.Category),
		},
	}
}
