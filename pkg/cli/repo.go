package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/relnote/pkg/cli/config"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdRepo() *cli.Command {
	var fsCfg config.Firestore

	return &cli.Command{
		Name:  "repo",
		Usage: "Manage registered repositories",
		Flags: fsCfg.Flags(),
		Commands: []*cli.Command{
			cmdRepoAdd(&fsCfg),
			cmdRepoList(&fsCfg),
			cmdRepoDelete(&fsCfg),
		},
	}
}

func cmdRepoAdd(fsCfg *config.Firestore) *cli.Command {
	var (
		name      string
		kind      string
		localPath string
	)

	return &cli.Command{
		Name:  "add",
		Usage: "Register a repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Usage:       "Repository name (owner/repo)",
				Required:    true,
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "provider",
				Usage:       "Version-control provider (github, git)",
				Value:       string(model.ProviderGitHub),
				Destination: &kind,
			},
			&cli.StringFlag{
				Name:        "path",
				Usage:       "Local clone path for the git provider",
				Destination: &localPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			repository, err := newRepository(name, model.ProviderKind(kind), localPath)
			if err != nil {
				return err
			}

			repo, closeRepo, err := openRepository(ctx, fsCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			if err := repo.PutRepository(ctx, repository); err != nil {
				return err
			}
			okColor.Fprint(writerOf(c), "Registered ")
			printRepository(writerOf(c), repository)
			return nil
		},
	}
}

func cmdRepoList(fsCfg *config.Firestore) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered repositories",
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, closeRepo, err := openRepository(ctx, fsCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			repos, err := repo.ListRepositories(ctx)
			if err != nil {
				return err
			}
			w := writerOf(c)
			if len(repos) == 0 {
				warnColor.Fprintln(w, "No repositories registered")
				return nil
			}
			for _, r := range repos {
				printRepository(w, r)
			}
			return nil
		},
	}
}

func cmdRepoDelete(fsCfg *config.Firestore) *cli.Command {
	var name string

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a repository and deactivate its drafts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Usage:       "Repository name (owner/repo)",
				Required:    true,
				Destination: &name,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, closeRepo, err := openRepository(ctx, fsCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			target, err := repo.GetRepositoryByName(ctx, name)
			if err != nil {
				return err
			}
			if err := repo.DeleteRepository(ctx, target.ID); err != nil {
				return err
			}
			fmt.Fprintf(writerOf(c), "Deleted %s\n", target.Name)
			return nil
		},
	}
}
