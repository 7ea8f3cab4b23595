package cli

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var (
		rtCfg     runtimeConfig
		repoName  string
		kind      string
		localPath string
	)

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "repo",
			Aliases:     []string{"r"},
			Usage:       "Registered repository name (owner/repo)",
			Required:    true,
			Destination: &repoName,
		},
		&cli.StringFlag{
			Name:        "provider",
			Usage:       "Provider used to register the repository when storage is in memory (github, git)",
			Value:       string(model.ProviderGitHub),
			Destination: &kind,
		},
		&cli.StringFlag{
			Name:        "path",
			Usage:       "Local clone path used to register a git repository when storage is in memory",
			Destination: &localPath,
		},
	}, rtCfg.Flags()...)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the pipeline once for a repository in the foreground",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			repo, err := rt.repo.GetRepositoryByName(ctx, repoName)
			if errors.Is(err, model.ErrNotFound) && rt.storage == "memory" {
				// nothing survives the process with in-memory storage
				repo, err = registerTransient(ctx, rt, repoName, model.ProviderKind(kind), localPath)
			}
			if err != nil {
				return err
			}

			run, err := rt.scheduler.Trigger(ctx, repo.ID, "manual")
			if err != nil {
				return err
			}
			ctxlog.From(ctx).Info("Run started", "run_id", run.ID, "repository", repo.Name)

			rt.scheduler.Wait()

			finished, err := rt.repo.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			printRun(writerOf(c), finished)

			if finished.Status == model.RunStatusFailed {
				return goerr.Wrap(errors.New(finished.Reason), "run failed", goerr.V("run_id", finished.ID))
			}
			return nil
		},
	}
}

func registerTransient(ctx context.Context, rt *runtime, name string, kind model.ProviderKind, localPath string) (*model.Repository, error) {
	repo, err := newRepository(name, kind, localPath)
	if err != nil {
		return nil, err
	}
	if err := rt.repo.PutRepository(ctx, repo); err != nil {
		return nil, err
	}
	ctxlog.From(ctx).Info("Registered repository for this run", "repository", repo.Name)
	return repo, nil
}

// newRepository builds a validated registration with an absolute local path
func newRepository(name string, kind model.ProviderKind, localPath string) (*model.Repository, error) {
	if localPath != "" {
		abs, err := filepath.Abs(localPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resolve path", goerr.V("path", localPath))
		}
		localPath = abs
	}

	repo := &model.Repository{
		ID:        types.NewRepositoryID(),
		Name:      name,
		Provider:  kind,
		LocalPath: localPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	return repo, nil
}
