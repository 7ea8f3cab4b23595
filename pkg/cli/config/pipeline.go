package config

import (
	"time"

	"github.com/m-mizutani/relnote/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Pipeline holds tuning of extraction, enrichment and summarization
type Pipeline struct {
	MaxQueued         int
	RunTimeout        time.Duration
	FetchTries        int
	FetchTimeout      time.Duration
	EnrichConcurrency int
	EnrichTimeout     time.Duration
	ClassifyTimeout   time.Duration
	ContextSize       int
	MaxLength         int
	GenerationTries   int
}

// Flags returns CLI flags for pipeline configuration
func (c *Pipeline) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-queued",
			Usage:       "Runs queued per repository while one is active; further triggers are coalesced",
			Value:       1,
			Destination: &c.MaxQueued,
			Sources:     cli.EnvVars("RELNOTE_MAX_QUEUED"),
		},
		&cli.DurationFlag{
			Name:        "run-timeout",
			Usage:       "Upper bound of one pipeline run",
			Value:       30 * time.Minute,
			Destination: &c.RunTimeout,
			Sources:     cli.EnvVars("RELNOTE_RUN_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "fetch-tries",
			Usage:       "Attempts per provider page before the source is unavailable",
			Value:       5,
			Destination: &c.FetchTries,
			Sources:     cli.EnvVars("RELNOTE_FETCH_TRIES"),
		},
		&cli.DurationFlag{
			Name:        "fetch-timeout",
			Usage:       "Timeout of one provider call",
			Value:       30 * time.Second,
			Destination: &c.FetchTimeout,
			Sources:     cli.EnvVars("RELNOTE_FETCH_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "enrich-concurrency",
			Usage:       "Concurrent reference lookups",
			Value:       4,
			Destination: &c.EnrichConcurrency,
			Sources:     cli.EnvVars("RELNOTE_ENRICH_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:        "enrich-timeout",
			Usage:       "Timeout of one reference lookup",
			Value:       10 * time.Second,
			Destination: &c.EnrichTimeout,
			Sources:     cli.EnvVars("RELNOTE_ENRICH_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:        "classify-timeout",
			Usage:       "Timeout of one model classification",
			Value:       30 * time.Second,
			Destination: &c.ClassifyTimeout,
			Sources:     cli.EnvVars("RELNOTE_CLASSIFY_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "context-size",
			Usage:       "Similar entries retrieved from each index as summary context",
			Value:       5,
			Destination: &c.ContextSize,
			Sources:     cli.EnvVars("RELNOTE_CONTEXT_SIZE"),
		},
		&cli.IntFlag{
			Name:        "max-length",
			Usage:       "Maximum characters of one generated summary",
			Value:       8000,
			Destination: &c.MaxLength,
			Sources:     cli.EnvVars("RELNOTE_MAX_LENGTH"),
		},
		&cli.IntFlag{
			Name:        "generation-tries",
			Usage:       "Generation attempts per audience",
			Value:       3,
			Destination: &c.GenerationTries,
			Sources:     cli.EnvVars("RELNOTE_GENERATION_TRIES"),
		},
	}
}

func (c *Pipeline) ExtractorOptions() []usecase.ExtractorOption {
	return []usecase.ExtractorOption{
		usecase.WithFetchTries(uint(max(1, c.FetchTries))),
		usecase.WithFetchTimeout(c.FetchTimeout),
	}
}

func (c *Pipeline) SummarizerOptions() []usecase.SummarizerOption {
	return []usecase.SummarizerOption{
		usecase.WithContextSize(c.ContextSize),
		usecase.WithMaxLength(c.MaxLength),
		usecase.WithGenerationTries(uint(max(1, c.GenerationTries))),
	}
}

func (c *Pipeline) SchedulerOptions() []usecase.SchedulerOption {
	return []usecase.SchedulerOption{
		usecase.WithMaxQueued(c.MaxQueued),
		usecase.WithRunTimeout(c.RunTimeout),
	}
}
