// Package async runs detached work that outlives the request which started it.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/relnote/pkg/utils/errutil"
)

// Group tracks detached handlers so that shutdown can wait for them. The zero
// value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go runs handler in a new goroutine. The handler gets a background context
// carrying the caller's logger, so cancelling ctx does not stop it. Returned
// errors and recovered panics go to errutil.
func (g *Group) Go(ctx context.Context, handler func(ctx context.Context) error) {
	detached := ctxlog.With(context.Background(), ctxlog.From(ctx))
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(detached, handler)
	}()
}

// Wait blocks until every handler started with Go has returned
func (g *Group) Wait() {
	g.wg.Wait()
}

func run(ctx context.Context, handler func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.From(ctx).Error("panic in async handler",
				"recover", r,
				"stack", string(debug.Stack()))
			errutil.Report(ctx, fmt.Errorf("panic in async handler: %v", r))
		}
	}()

	if err := handler(ctx); err != nil {
		errutil.Handle(ctx, "error in async handler", err)
	}
}
