package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/cli/config"
	controller "github.com/m-mizutani/relnote/pkg/controller/http"
	"github.com/m-mizutani/relnote/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		rtCfg     runtimeConfig
	)

	flags := append(serverCfg.Flags(), rtCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server receiving webhooks and approval requests",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			if rtCfg.github.WebhookSecret == "" {
				return goerr.New("github-webhook-secret is required")
			}

			rt, err := rtCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			logger.Info("Starting relnote server",
				slog.String("addr", serverCfg.Addr),
				slog.String("storage", rt.storage),
			)

			webhookUC := usecase.NewWebhook(rt.repo, rt.scheduler)

			server, err := controller.NewServer(
				ctx,
				webhookUC,
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(rtCfg.github.WebhookSecret),
				controller.WithStorage(rt.storage),
				controller.WithAPI(rt.repo, rt.approval, rt.scheduler),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "HTTP server error")
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			case serveErr = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			// active and queued runs finish before storage is closed
			logger.Info("Waiting for pipeline runs")
			rt.scheduler.Wait()

			logger.Info("Server shutdown complete")
			return serveErr
		},
	}
}
