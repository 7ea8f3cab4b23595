package http_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	controller "github.com/m-mizutani/relnote/pkg/controller/http"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces/mocks"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// generateSignature generates HMAC-SHA256 signature for testing
func generateSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRequest(t *testing.T, secret, eventType string, payload []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/hooks/github/app", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "test-delivery")
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", generateSignature(secret, payload))
	}
	return req
}

const mergedPR = `{"action":"closed","pull_request":{"id":1,"merged":true},"repository":{"full_name":"test/repo"},"sender":{"login":"testuser"}}`

func TestWebhookHandler_SignatureVerification(t *testing.T) {
	secret := "test-secret"

	tests := []struct {
		name           string
		signature      string
		sign           bool
		wantStatusCode int
		wantCalls      int
	}{
		{
			name:           "Valid signature",
			sign:           true,
			wantStatusCode: http.StatusOK,
			wantCalls:      1,
		},
		{
			name:           "Invalid signature",
			signature:      "sha256=invalid",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "Missing signature",
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mocks.WebhookUseCaseMock{
				ProcessEventFunc: func(ctx context.Context, event *model.WebhookEvent) error {
					return nil
				},
			}
			handler := controller.NewWebhookHandler(secret, uc)

			signWith := ""
			if tt.sign {
				signWith = secret
			}
			req := newWebhookRequest(t, signWith, "pull_request", []byte(mergedPR))
			if tt.signature != "" {
				req.Header.Set("X-Hub-Signature-256", tt.signature)
			}

			w := httptest.NewRecorder()
			handler.Handle(w, req)

			gt.Equal(t, w.Code, tt.wantStatusCode)
			gt.Equal(t, len(uc.ProcessEventCalls()), tt.wantCalls)
		})
	}
}

func TestWebhookHandler_EventParsing(t *testing.T) {
	secret := "test-secret"

	tests := []struct {
		name           string
		eventType      string
		payload        map[string]any
		ucErr          error
		wantStatusCode int
		wantType       model.WebhookEventType
	}{
		{
			name:      "Pull request merged",
			eventType: "pull_request",
			payload: map[string]any{
				"action":       "closed",
				"pull_request": map[string]any{"id": 1, "merged": true},
				"repository":   map[string]any{"full_name": "test/repo"},
				"sender":       map[string]any{"login": "testuser"},
			},
			wantStatusCode: http.StatusOK,
			wantType:       model.EventTypePullRequest,
		},
		{
			name:      "Release released",
			eventType: "release",
			payload: map[string]any{
				"action":     "released",
				"release":    map[string]any{"id": 1},
				"repository": map[string]any{"full_name": "test/repo"},
				"sender":     map[string]any{"login": "testuser"},
			},
			wantStatusCode: http.StatusOK,
			wantType:       model.EventTypeRelease,
		},
		{
			name:      "Use case failure",
			eventType: "push",
			payload: map[string]any{
				"repository": map[string]any{"full_name": "test/repo"},
			},
			ucErr:          goerr.New("storage down"),
			wantStatusCode: http.StatusInternalServerError,
			wantType:       model.EventTypePush,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mocks.WebhookUseCaseMock{
				ProcessEventFunc: func(ctx context.Context, event *model.WebhookEvent) error {
					return tt.ucErr
				},
			}
			handler := controller.NewWebhookHandler(secret, uc)

			payloadBytes, err := json.Marshal(tt.payload)
			gt.NoError(t, err)

			w := httptest.NewRecorder()
			handler.Handle(w, newWebhookRequest(t, secret, tt.eventType, payloadBytes))

			gt.Equal(t, w.Code, tt.wantStatusCode)
			calls := uc.ProcessEventCalls()
			gt.Equal(t, len(calls), 1)
			gt.Equal(t, calls[0].Event.Type, tt.wantType)
			gt.Equal(t, calls[0].Event.ID, "test-delivery")
			gt.Equal(t, calls[0].Event.Repository, "test/repo")

			if tt.wantStatusCode == http.StatusOK {
				var response map[string]string
				gt.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				gt.Equal(t, response["status"], "success")
			}
		})
	}
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	secret := "test-secret"
	uc := &mocks.WebhookUseCaseMock{}
	handler := controller.NewWebhookHandler(secret, uc)

	w := httptest.NewRecorder()
	handler.Handle(w, newWebhookRequest(t, secret, "pull_request", []byte(`{"action":`)))

	gt.Equal(t, w.Code, http.StatusBadRequest)
	gt.Equal(t, len(uc.ProcessEventCalls()), 0)
}

func TestWebhookHandler_Integration(t *testing.T) {
	ctx := context.Background()
	secret := "integration-test-secret"
	uc := &mocks.WebhookUseCaseMock{
		ProcessEventFunc: func(ctx context.Context, event *model.WebhookEvent) error {
			return nil
		},
	}

	server, err := controller.NewServer(
		ctx,
		uc,
		controller.WithAddr("localhost:0"),
		controller.WithWebhookSecret(secret),
	)
	gt.NoError(t, err)

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	payload := []byte(mergedPR)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/hooks/github/app", bytes.NewReader(payload))
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-GitHub-Delivery", "integration-test")
	req.Header.Set("X-Hub-Signature-256", generateSignature(secret, payload))

	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer func() {
		_ = resp.Body.Close() // Error ignored in test
	}()

	gt.Equal(t, resp.StatusCode, http.StatusOK)
	calls := uc.ProcessEventCalls()
	gt.Equal(t, len(calls), 1)
	gt.True(t, calls[0].Event.Merged)
}
