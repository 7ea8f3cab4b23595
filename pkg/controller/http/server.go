package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// config holds internal HTTP server configuration
type config struct {
	addr          string
	webhookSecret string
	storage       string
	repo          interfaces.Repository
	approval      interfaces.ApprovalUseCase
	trigger       interfaces.RunTrigger
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the webhook secret
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// WithStorage sets the persistence backend name reported by /health
func WithStorage(name string) Option {
	return func(c *config) {
		c.storage = name
	}
}

// WithAPI enables the /api routes. Transition routes need approval and the
// run route needs trigger; either may be nil.
func WithAPI(repo interfaces.Repository, approval interfaces.ApprovalUseCase, trigger interfaces.RunTrigger) Option {
	return func(c *config) {
		c.repo = repo
		c.approval = approval
		c.trigger = trigger
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	webhookUC interfaces.WebhookUseCase,
	opts ...Option,
) (*Server, error) {
	cfg := &config{
		addr:    "localhost:8080",
		storage: "memory",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	router.Get("/health", newHealthHandler(cfg.storage))
	router.Handle("/metrics", promhttp.Handler())

	webhookHandler := NewWebhookHandler(cfg.webhookSecret, webhookUC)
	router.Post("/hooks/github/app", webhookHandler.Handle)

	if cfg.repo != nil {
		api := &apiHandler{
			repo:     cfg.repo,
			approval: cfg.approval,
			trigger:  cfg.trigger,
		}
		router.Route("/api", func(r chi.Router) {
			r.Get("/runs/{id}", api.getRun)
			r.Get("/drafts/{id}", api.getDraft)

			if cfg.trigger != nil {
				r.Post("/repositories/{id}/runs", api.triggerRun)
			}
			if cfg.approval != nil {
				r.Post("/drafts/{id}/edit", api.editDraft)
				r.Post("/drafts/{id}/approve", api.approveDraft)
				r.Post("/drafts/{id}/reject", api.rejectDraft)
				r.Post("/drafts/{id}/regenerate", api.regenerateDraft)
			}
		})
	}

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
