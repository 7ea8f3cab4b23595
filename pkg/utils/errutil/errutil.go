package errutil

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Handle logs err and reports it to Sentry. Values attached with goerr.V are
// sent as extras.
func Handle(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	ctxlog.From(ctx).Error(msg, "error", err)
	Report(ctx, err)
}

// Report sends err to Sentry without logging. It is a no-op when Sentry is
// not configured.
func Report(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if ge := goerr.Unwrap(err); ge != nil {
			extras := make(map[string]any)
			for k, v := range ge.Values() {
				extras[k] = v
			}
			scope.SetExtras(extras)
		}
	})
	hub.CaptureException(err)
}
