package async_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/utils/async"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func loggingContext(buf *lockedBuffer) context.Context {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelError}))
	return ctxlog.With(context.Background(), logger)
}

func TestGroup_Wait(t *testing.T) {
	var g async.Group
	var mu sync.Mutex
	var finished int

	for range 3 {
		g.Go(context.Background(), func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			finished++
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	gt.Equal(t, finished, 3)
}

func TestGroup_Failures(t *testing.T) {
	t.Run("returned error is logged", func(t *testing.T) {
		buf := &lockedBuffer{}
		var g async.Group
		g.Go(loggingContext(buf), func(ctx context.Context) error {
			return errors.New("run store unavailable")
		})
		g.Wait()

		gt.True(t, strings.Contains(buf.String(), "error in async handler"))
		gt.True(t, strings.Contains(buf.String(), "run store unavailable"))
	})

	t.Run("panic is recovered with its stack", func(t *testing.T) {
		buf := &lockedBuffer{}
		var g async.Group
		g.Go(loggingContext(buf), func(ctx context.Context) error {
			panic("pipeline exploded")
		})

		waited := make(chan struct{})
		go func() {
			g.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(time.Second):
			t.Fatal("group did not drain")
		}

		out := buf.String()
		gt.True(t, strings.Contains(out, "panic in async handler"))
		gt.True(t, strings.Contains(out, "pipeline exploded"))
		gt.True(t, strings.Contains(out, "group_test.go"))
	})
}

func TestGroup_DetachedContext(t *testing.T) {
	buf := &lockedBuffer{}
	ctx, cancel := context.WithCancel(loggingContext(buf))

	var g async.Group
	g.Go(ctx, func(ctx context.Context) error {
		cancel()
		gt.NoError(t, ctx.Err())
		ctxlog.From(ctx).Error("still running")
		return nil
	})
	g.Wait()

	gt.True(t, strings.Contains(buf.String(), "still running"))
}
