package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdDraft() *cli.Command {
	var rtCfg runtimeConfig

	return &cli.Command{
		Name:  "draft",
		Usage: "Review and approve release note drafts",
		Flags: rtCfg.Flags(),
		Commands: []*cli.Command{
			cmdDraftList(&rtCfg),
			cmdDraftShow(&rtCfg),
			cmdDraftEdit(&rtCfg),
			cmdDraftTransition(&rtCfg, "approve", "Approve a draft and publish it",
				func(ctx context.Context, rt *runtime, id types.DraftID) (*model.Draft, error) {
					return rt.approval.Approve(ctx, id)
				}),
			cmdDraftTransition(&rtCfg, "reject", "Reject a draft",
				func(ctx context.Context, rt *runtime, id types.DraftID) (*model.Draft, error) {
					return rt.approval.Reject(ctx, id)
				}),
			cmdDraftTransition(&rtCfg, "regenerate", "Generate a new draft from the records of a rejected one",
				func(ctx context.Context, rt *runtime, id types.DraftID) (*model.Draft, error) {
					return rt.approval.Regenerate(ctx, id)
				}),
		},
	}
}

func draftIDFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "id",
		Usage:       "Draft ID",
		Required:    true,
		Destination: dst,
	}
}

func cmdDraftList(rtCfg *runtimeConfig) *cli.Command {
	var repoName string

	return &cli.Command{
		Name:  "list",
		Usage: "List drafts of a repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "repo",
				Usage:       "Repository name (owner/repo)",
				Required:    true,
				Destination: &repoName,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			store, closeRepo, err := openRepository(ctx, &rtCfg.firestore)
			if err != nil {
				return err
			}
			defer closeRepo()

			repo, err := store.GetRepositoryByName(ctx, repoName)
			if err != nil {
				return err
			}
			drafts, err := store.ListDrafts(ctx, repo.ID)
			if err != nil {
				return err
			}

			w := writerOf(c)
			if len(drafts) == 0 {
				warnColor.Fprintln(w, "No drafts")
				return nil
			}
			for _, d := range drafts {
				printDraftLine(w, d)
			}
			return nil
		},
	}
}

func cmdDraftShow(rtCfg *runtimeConfig) *cli.Command {
	var id string

	return &cli.Command{
		Name:  "show",
		Usage: "Show both summaries of a draft",
		Flags: []cli.Flag{draftIDFlag(&id)},
		Action: func(ctx context.Context, c *cli.Command) error {
			store, closeRepo, err := openRepository(ctx, &rtCfg.firestore)
			if err != nil {
				return err
			}
			defer closeRepo()

			d, err := store.GetDraft(ctx, types.DraftID(id))
			if err != nil {
				return err
			}
			printDraft(writerOf(c), d)
			return nil
		},
	}
}

func cmdDraftEdit(rtCfg *runtimeConfig) *cli.Command {
	var (
		id       string
		audience string
		text     string
		file     string
		editor   string
	)

	return &cli.Command{
		Name:  "edit",
		Usage: "Replace the internal or external summary of a draft",
		Flags: []cli.Flag{
			draftIDFlag(&id),
			&cli.StringFlag{
				Name:        "audience",
				Usage:       "Summary to replace (internal, external)",
				Required:    true,
				Destination: &audience,
			},
			&cli.StringFlag{
				Name:        "text",
				Usage:       "Replacement text",
				Destination: &text,
			},
			&cli.StringFlag{
				Name:        "file",
				Usage:       "File holding the replacement text",
				Destination: &file,
			},
			&cli.StringFlag{
				Name:        "editor",
				Usage:       "Name recorded in the edit history",
				Value:       os.Getenv("USER"),
				Destination: &editor,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return goerr.Wrap(err, "failed to read replacement text", goerr.V("file", file))
				}
				text = string(raw)
			}
			if text == "" {
				return goerr.Wrap(model.ErrInvalidArgument, "either --text or --file is required")
			}

			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := rt.approval.Edit(ctx, types.DraftID(id), &model.EditRequest{
				Audience: model.Audience(audience),
				Text:     text,
				Editor:   editor,
			})
			if err != nil {
				return err
			}
			printDraftLine(writerOf(c), d)
			return nil
		},
	}
}

func cmdDraftTransition(
	rtCfg *runtimeConfig,
	name, usage string,
	fn func(ctx context.Context, rt *runtime, id types.DraftID) (*model.Draft, error),
) *cli.Command {
	var id string

	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{draftIDFlag(&id)},
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := fn(ctx, rt, types.DraftID(id))
			if err != nil {
				return err
			}
			printDraftLine(writerOf(c), d)
			return nil
		},
	}
}
