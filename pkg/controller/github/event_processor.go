package github

import (
	"context"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// EventProcessor converts GitHub webhook payloads into webhook events and hands
// them to the webhook use case
type EventProcessor struct {
	webhookUC interfaces.WebhookUseCase
	now       func() time.Time
}

// NewEventProcessor creates a new GitHub event processor
func NewEventProcessor(webhookUC interfaces.WebhookUseCase) *EventProcessor {
	return &EventProcessor{
		webhookUC: webhookUC,
		now:       time.Now,
	}
}

// ProcessEvent parses a raw payload of eventType and processes it. Payloads of
// event types this service does not consume are passed on as unknown events.
func (p *EventProcessor) ProcessEvent(ctx context.Context, deliveryID, eventType string, body []byte) error {
	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "invalid webhook payload",
			goerr.V("event_type", eventType),
			goerr.V("cause", err.Error()),
		)
	}

	event := ToWebhookEvent(eventType, payload)
	event.ID = deliveryID
	event.ReceivedAt = p.now()
	event.RawPayload = body

	ctxlog.From(ctx).Debug("Parsed webhook payload",
		"delivery_id", deliveryID,
		"type", event.Type,
		"repository", event.Repository,
	)
	return p.webhookUC.ProcessEvent(ctx, event)
}

// ToWebhookEvent extracts the fields used for triggering from a parsed
// go-github payload
func ToWebhookEvent(eventType string, payload any) *model.WebhookEvent {
	event := &model.WebhookEvent{Type: model.WebhookEventType(eventType)}

	// Use Get*() helper methods for concise and nil-safe field access
	switch e := payload.(type) {
	case *github.PushEvent:
		event.Type = model.EventTypePush
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()
	case *github.PullRequestEvent:
		event.Type = model.EventTypePullRequest
		event.Action = e.GetAction()
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()
		event.Merged = e.GetPullRequest().GetMerged()
	case *github.ReleaseEvent:
		event.Type = model.EventTypeRelease
		event.Action = e.GetAction()
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()
	default:
		event.Type = model.EventTypeUnknown
	}
	return event
}
