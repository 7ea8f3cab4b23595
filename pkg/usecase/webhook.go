package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

type webhookUseCase struct {
	repo    interfaces.Repository
	trigger interfaces.RunTrigger
}

// NewWebhook creates a new instance of WebhookUseCase
func NewWebhook(repo interfaces.Repository, trigger interfaces.RunTrigger) *webhookUseCase {
	return &webhookUseCase{
		repo:    repo,
		trigger: trigger,
	}
}

// ProcessEvent triggers a pipeline run for supported events of registered
// repositories. Unsupported events, unknown repositories and coalesced
// triggers are not errors.
func (uc *webhookUseCase) ProcessEvent(ctx context.Context, event *model.WebhookEvent) error {
	logger := ctxlog.From(ctx)

	logger.Info("Processing webhook event",
		"id", event.ID,
		"type", event.Type,
		"action", event.Action,
		"repository", event.Repository,
		"sender", event.Sender,
		"supported", event.IsSupportedEvent(),
	)

	if !event.IsSupportedEvent() {
		logger.Debug("Ignoring unsupported event",
			"type", event.Type,
			"action", event.Action,
		)
		return nil
	}

	repo, err := uc.repo.GetRepositoryByName(ctx, event.Repository)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Ignoring event of unregistered repository", "repository", event.Repository)
			return nil
		}
		return goerr.Wrap(err, "failed to look up repository", goerr.V("repository", event.Repository))
	}

	run, err := uc.trigger.Trigger(ctx, repo.ID, event.TriggerName())
	if err != nil {
		if errors.Is(err, model.ErrRunCoalesced) {
			logger.Info("Trigger coalesced into pending run", "repository", repo.Name)
			return nil
		}
		return goerr.Wrap(err, "failed to trigger run", goerr.V("repository", repo.Name))
	}

	logger.Info("Run triggered by webhook",
		"run_id", run.ID,
		"status", run.Status,
		"repository", repo.Name,
	)
	return nil
}
