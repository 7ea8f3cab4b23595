package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

func TestWebhookEvent_IsSupportedEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    *model.WebhookEvent
		expected bool
	}{
		{
			name:     "Push event - supported",
			event:    &model.WebhookEvent{Type: model.EventTypePush},
			expected: true,
		},
		{
			name:     "Pull Request merged - supported",
			event:    &model.WebhookEvent{Type: model.EventTypePullRequest, Action: "closed", Merged: true},
			expected: true,
		},
		{
			name:     "Pull Request closed without merge - not supported",
			event:    &model.WebhookEvent{Type: model.EventTypePullRequest, Action: "closed"},
			expected: false,
		},
		{
			name:     "Pull Request opened - not supported",
			event:    &model.WebhookEvent{Type: model.EventTypePullRequest, Action: "opened"},
			expected: false,
		},
		{
			name:     "Release released - supported",
			event:    &model.WebhookEvent{Type: model.EventTypeRelease, Action: "released"},
			expected: true,
		},
		{
			name:     "Release created - not supported",
			event:    &model.WebhookEvent{Type: model.EventTypeRelease, Action: "created"},
			expected: false,
		},
		{
			name:     "Unknown event type",
			event:    &model.WebhookEvent{Type: model.EventTypeUnknown, Action: "opened"},
			expected: false,
		},
		{
			name:     "Different event type",
			event:    &model.WebhookEvent{Type: model.WebhookEventType("issues"), Action: "opened"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Equal(t, tt.event.IsSupportedEvent(), tt.expected)
		})
	}
}

func TestWebhookEvent_TriggerName(t *testing.T) {
	gt.Equal(t, (&model.WebhookEvent{Type: model.EventTypePush}).TriggerName(), "webhook:push")
	gt.Equal(t, (&model.WebhookEvent{Type: model.EventTypeRelease, Action: "released"}).TriggerName(), "webhook:release.released")
}
