package github_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
	githubinfra "github.com/m-mizutani/relnote/pkg/infra/github"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T, mux *http.ServeMux) *githubinfra.Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := githubinfra.NewClient(
		githubinfra.WithBaseURL(server.URL),
		githubinfra.WithRateLimit(1000, 100),
		githubinfra.WithClock(func() time.Time { return now }),
	)
	gt.NoError(t, err)
	return client
}

func testRepo() *model.Repository {
	return &model.Repository{ID: types.NewRepositoryID(), Name: "acme/app", Provider: model.ProviderGitHub}
}

func TestClient_FetchEvents(t *testing.T) {
	mux := http.NewServeMux()
	var commitQuery url.Values
	mux.HandleFunc("GET /repos/acme/app/commits", func(w http.ResponseWriter, r *http.Request) {
		commitQuery = r.URL.Query()
		fmt.Fprint(w, `[
			{"sha":"c1","html_url":"https://github.com/acme/app/commit/c1",
			 "commit":{"message":"fix: null pointer in parser\n\ndetails","author":{"name":"Alice","email":"alice@example.com","date":"2026-04-20T09:00:00Z"}},
			 "author":{"login":"alice"}},
			{"sha":"c2","html_url":"https://github.com/acme/app/commit/c2",
			 "commit":{"message":"docs: update readme","author":{"name":"Bob","date":"2026-04-21T09:00:00Z"}},
			 "author":{"login":"bob"}}
		]`)
	})
	mux.HandleFunc("GET /repos/acme/app/commits/c1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"c1","files":[{"filename":"internal/parser/lexer.go"}]}`)
	})
	mux.HandleFunc("GET /repos/acme/app/commits/c2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"c2","files":[{"filename":"README.md"}]}`)
	})
	mux.HandleFunc("GET /repos/acme/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number":42,"title":"Fix parser","body":"Closes #13","html_url":"https://github.com/acme/app/pull/42",
			 "user":{"login":"alice"},"merged_at":"2026-04-22T10:00:00Z","updated_at":"2026-04-22T10:00:00Z"},
			{"number":41,"title":"Abandoned","user":{"login":"bob"},"updated_at":"2026-04-21T10:00:00Z"},
			{"number":7,"title":"Ancient","user":{"login":"bob"},"merged_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}
		]`)
	})
	mux.HandleFunc("GET /repos/acme/app/pulls/42/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"filename":"internal/parser/lexer.go"}]`)
	})

	client := newServer(t, mux)
	ctx := context.Background()
	repo := testRepo()

	first, err := client.FetchEvents(ctx, &model.FetchRequest{Repository: repo})
	gt.NoError(t, err)
	gt.False(t, first.Done)
	gt.A(t, first.Events).Length(2)
	gt.Equal(t, commitQuery.Get("since"), "2026-04-01T12:00:00Z")

	c1 := first.Events[0]
	gt.Equal(t, c1.ExternalID, "c1")
	gt.Equal(t, c1.Kind, model.RawKindCommit)
	gt.Equal(t, c1.Title, "fix: null pointer in parser")
	gt.Equal(t, c1.Body, "details")
	gt.Equal(t, c1.Author.Login, "alice")
	gt.Equal(t, c1.Files, []string{"internal/parser/lexer.go"})
	gt.Equal(t, first.Events[1].Kind, model.RawKindDoc)

	second, err := client.FetchEvents(ctx, &model.FetchRequest{Repository: repo, Cursor: first.Next})
	gt.NoError(t, err)
	gt.True(t, second.Done)
	gt.A(t, second.Events).Length(1)
	gt.Equal(t, second.Events[0].ExternalID, "42")
	gt.Equal(t, second.Events[0].Kind, model.RawKindPR)
	gt.Equal(t, second.Events[0].Files, []string{"internal/parser/lexer.go"})

	next, err := url.ParseQuery(string(second.Next))
	gt.NoError(t, err)
	gt.Equal(t, next.Get("since"), "2026-05-01T12:00:00Z")
	gt.Equal(t, next.Get("phase"), "")
}

func TestClient_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/missing/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("GET /repos/acme/private/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	})
	mux.HandleFunc("GET /repos/acme/busy/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"slow down"}`)
	})
	mux.HandleFunc("GET /repos/acme/flaky/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"bad gateway"}`)
	})

	client := newServer(t, mux)
	ctx := context.Background()
	fetch := func(name string) error {
		_, err := client.FetchEvents(ctx, &model.FetchRequest{
			Repository: &model.Repository{ID: types.NewRepositoryID(), Name: name},
		})
		return err
	}

	t.Run("not found", func(t *testing.T) {
		gt.True(t, errors.Is(fetch("acme/missing"), model.ErrSourceNotFound))
	})

	t.Run("unauthorized", func(t *testing.T) {
		gt.True(t, errors.Is(fetch("acme/private"), model.ErrSourceUnauthorized))
	})

	t.Run("too many requests", func(t *testing.T) {
		rl, ok := model.IsRateLimit(fetch("acme/busy"))
		gt.True(t, ok)
		gt.Equal(t, rl.RetryAfter, 3*time.Second)
	})

	t.Run("server error is neither", func(t *testing.T) {
		err := fetch("acme/flaky")
		gt.Error(t, err)
		gt.False(t, model.IsPermanentSourceError(err))
		_, ok := model.IsRateLimit(err)
		gt.False(t, ok)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		_, err := client.FetchEvents(ctx, &model.FetchRequest{Repository: testRepo(), Cursor: "page=zero"})
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})
}

func TestClient_ResolveReference(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/app/issues/13", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":13,"title":"Parser crashes","html_url":"https://github.com/acme/app/issues/13"}`)
	})
	mux.HandleFunc("GET /repos/acme/app/issues/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":42,"title":"Fix parser","pull_request":{"url":"https://api.github.com/repos/acme/app/pulls/42"}}`)
	})

	client := newServer(t, mux)
	ctx := context.Background()

	ref, err := client.ResolveReference(ctx, testRepo(), 13)
	gt.NoError(t, err)
	gt.Equal(t, ref.ID, "acme/app#13")
	gt.Equal(t, ref.Title, "Parser crashes")
	gt.False(t, ref.IsPullRequest)

	ref, err = client.ResolveReference(ctx, testRepo(), 42)
	gt.NoError(t, err)
	gt.True(t, ref.IsPullRequest)

	_, err = client.ResolveReference(ctx, testRepo(), 99)
	gt.True(t, errors.Is(err, model.ErrSourceNotFound))
}
