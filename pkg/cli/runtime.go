package cli

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/cli/config"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/infra/gitlocal"
	"github.com/m-mizutani/relnote/pkg/infra/llm"
	"github.com/m-mizutani/relnote/pkg/infra/provider"
	"github.com/m-mizutani/relnote/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// runtimeConfig collects every setting needed to assemble the pipeline
type runtimeConfig struct {
	firestore config.Firestore
	github    config.GitHub
	gemini    config.Gemini
	index     config.Index
	pipeline  config.Pipeline
	slack     config.Slack
	storage   config.Storage
	rules     config.Rules
}

func (c *runtimeConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, c.firestore.Flags()...)
	flags = append(flags, c.github.Flags()...)
	flags = append(flags, c.gemini.Flags()...)
	flags = append(flags, c.index.Flags()...)
	flags = append(flags, c.pipeline.Flags()...)
	flags = append(flags, c.slack.Flags()...)
	flags = append(flags, c.storage.Flags()...)
	flags = append(flags, c.rules.Flags()...)
	return flags
}

// runtime is the assembled pipeline
type runtime struct {
	repo      interfaces.Repository
	scheduler *usecase.Scheduler
	approval  interfaces.ApprovalUseCase
	storage   string
	closers   []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// openRepository opens only the persisted state, for commands that do not run
// the pipeline
func openRepository(ctx context.Context, cfg *config.Firestore) (interfaces.Repository, func(), error) {
	repo, fs, err := cfg.NewRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	if fs == nil {
		return repo, func() {}, nil
	}
	return repo, func() { _ = fs.Close() }, nil
}

func (c *runtimeConfig) build(ctx context.Context) (*runtime, error) {
	ctxlog.From(ctx).Debug("Building runtime",
		"github", c.github,
		"slack", c.slack,
		"firestore", c.firestore,
		"index", c.index,
		"pipeline", c.pipeline,
	)

	rt := &runtime{storage: c.firestore.Backend()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	repo, fs, err := c.firestore.NewRepository(ctx)
	if err != nil {
		return nil, err
	}
	rt.repo = repo
	if fs != nil {
		rt.closers = append(rt.closers, func() { _ = fs.Close() })
	}

	records, summaries, err := c.index.NewIndexes(fs)
	if err != nil {
		return nil, err
	}

	llmClient, err := c.gemini.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	embedder := llm.NewEmbedder(llmClient, c.index.Dimension)

	rules, err := c.rules.Load()
	if err != nil {
		return nil, err
	}
	classifier, err := usecase.NewClassifier(rules,
		usecase.WithCategoryModel(llm.NewCategoryModel(llmClient)),
		usecase.WithClassifyTimeout(c.pipeline.ClassifyTimeout),
	)
	if err != nil {
		return nil, err
	}

	summarizer, err := usecase.NewSummarizer(embedder, records, summaries, llm.NewGenerator(llmClient),
		c.pipeline.SummarizerOptions()...)
	if err != nil {
		return nil, err
	}

	gh, err := c.github.NewClient()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub client")
	}
	factory := provider.NewFactory(gh, gitlocal.New(gitlocal.WithLookback(c.github.Lookback)))

	pipeline := usecase.NewPipeline(repo, factory, classifier, summarizer,
		usecase.WithExtractorOptions(c.pipeline.ExtractorOptions()...),
		usecase.WithEnrichment(c.pipeline.EnrichConcurrency, c.pipeline.EnrichTimeout),
		usecase.WithRecordIndex(embedder, records),
	)
	rt.scheduler = usecase.NewScheduler(repo, pipeline, c.pipeline.SchedulerOptions()...)

	publisher, closePublisher, err := config.NewPublisher(ctx, &c.slack, &c.storage)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closePublisher)
	if publisher.Len() == 0 {
		ctxlog.From(ctx).Warn("No publish target configured; approved drafts are only stored")
	}

	rt.approval = usecase.NewApproval(repo, publisher, summarizer,
		usecase.WithSummaryIndex(embedder, summaries),
	)

	ok = true
	return rt, nil
}
