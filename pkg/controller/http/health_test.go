package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	controller "github.com/m-mizutani/relnote/pkg/controller/http"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces/mocks"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

func TestHealthEndpoint(t *testing.T) {
	ctx := context.Background()

	server, err := controller.NewServer(
		ctx,
		&mocks.WebhookUseCaseMock{},
		controller.WithAddr("localhost:0"),
		controller.WithWebhookSecret("test-secret"),
		controller.WithStorage("firestore"),
	)
	gt.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusOK)

	var status model.HealthStatus
	gt.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	gt.Equal(t, status.Status, "healthy")
	gt.Equal(t, status.Service, "relnote")
	gt.Equal(t, status.Storage, "firestore")
	gt.Value(t, status.Version).NotEqual("")
}

func TestMetricsEndpoint(t *testing.T) {
	server, err := controller.NewServer(context.Background(), &mocks.WebhookUseCaseMock{})
	gt.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.Handler.ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusOK)
	gt.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}
