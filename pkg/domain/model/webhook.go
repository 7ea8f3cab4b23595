package model

import "time"

// WebhookEventType represents the type of webhook event received
type WebhookEventType string

const (
	EventTypePush        WebhookEventType = "push"
	EventTypePullRequest WebhookEventType = "pull_request"
	EventTypeRelease     WebhookEventType = "release"
	EventTypeUnknown     WebhookEventType = "unknown"
)

// WebhookEvent represents a webhook event received from GitHub
type WebhookEvent struct {
	ID         string           // Retrieved from X-GitHub-Delivery header
	Type       WebhookEventType // Retrieved from X-GitHub-Event header
	Action     string           // Event action (e.g., closed, released)
	Repository string           // Repository full name (owner/repo)
	Sender     string           // Sender username
	Merged     bool             // pull_request only: whether the PR was merged
	ReceivedAt time.Time        // Time when the event was received
	RawPayload []byte           // Raw JSON payload
}

// IsSupportedEvent reports whether the event should trigger a pipeline run
func (e *WebhookEvent) IsSupportedEvent() bool {
	switch e.Type {
	case EventTypePush:
		return true
	case EventTypePullRequest:
		return e.Action == "closed" && e.Merged
	case EventTypeRelease:
		return e.Action == "released"
	default:
		return false
	}
}

// TriggerName is the run trigger label derived from the event
func (e *WebhookEvent) TriggerName() string {
	if e.Action == "" {
		return "webhook:" + string(e.Type)
	}
	return "webhook:" + string(e.Type) + "." + e.Action
}
