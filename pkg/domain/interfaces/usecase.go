package interfaces

//go:generate moq -out mocks/usecase_mock.go -pkg mocks . WebhookUseCase RunTrigger ApprovalUseCase

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// WebhookUseCase defines the interface for webhook event processing
type WebhookUseCase interface {
	// ProcessEvent processes a webhook event
	ProcessEvent(ctx context.Context, event *model.WebhookEvent) error
}

// RunTrigger starts (or queues) a pipeline run for a repository
type RunTrigger interface {
	Trigger(ctx context.Context, repoID types.RepositoryID, trigger string) (*model.Run, error)
}

// ApprovalUseCase drives the draft approval state machine
type ApprovalUseCase interface {
	Edit(ctx context.Context, id types.DraftID, req *model.EditRequest) (*model.Draft, error)
	Approve(ctx context.Context, id types.DraftID) (*model.Draft, error)
	Reject(ctx context.Context, id types.DraftID) (*model.Draft, error)
	Regenerate(ctx context.Context, id types.DraftID) (*model.Draft, error)
}
