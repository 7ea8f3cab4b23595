package usecase_test

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

func noBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

// fakeProvider serves pages keyed by cursor
type fakeProvider struct {
	mu    sync.Mutex
	pages map[model.Cursor]*model.FetchResult
	errs  []error // returned before serving pages, one per call
	calls []model.Cursor
}

func (p *fakeProvider) FetchEvents(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req.Cursor)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	if res, ok := p.pages[req.Cursor]; ok {
		return res, nil
	}
	return &model.FetchResult{Next: req.Cursor, Done: true}, nil
}

func (p *fakeProvider) Calls() []model.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Cursor(nil), p.calls...)
}

type fakeTracker struct {
	refs map[int]*model.CrossReference
}

func (t *fakeTracker) ResolveReference(ctx context.Context, repo *model.Repository, number int) (*model.CrossReference, error) {
	if ref, ok := t.refs[number]; ok {
		return ref, nil
	}
	return nil, model.ErrSourceNotFound
}

type fakeFactory struct {
	provider interfaces.VCSProvider
	tracker  interfaces.IssueTracker
}

func (f *fakeFactory) Provider(repo *model.Repository) (interfaces.VCSProvider, interfaces.IssueTracker, error) {
	return f.provider, f.tracker, nil
}

// fakeEmbedder hashes words into a small bag-of-words vector
type fakeEmbedder struct {
	dim int
	err error
}

func (e *fakeEmbedder) Dimension() int { return e.dim }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[int(h.Sum32())%e.dim]++
	}
	vec[0] += 0.01
	return vec, nil
}

// fakeGenerator answers prompts with fn and records every prompt
type fakeGenerator struct {
	mu      sync.Mutex
	fn      func(prompt string, attempt int) (string, error)
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	attempt := 0
	for _, p := range g.prompts {
		if audienceOf(p) == audienceOf(prompt) {
			attempt++
		}
	}
	g.mu.Unlock()
	return g.fn(prompt, attempt)
}

func (g *fakeGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func audienceOf(prompt string) model.Audience {
	if strings.Contains(prompt, "customer-facing") {
		return model.AudienceExternal
	}
	return model.AudienceInternal
}

type fakeCategoryModel struct {
	mu       sync.Mutex
	category model.Category
	err      error
	calls    int
}

func (m *fakeCategoryModel) Classify(ctx context.Context, text string) (model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.category, m.err
}

func (m *fakeCategoryModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	drafts []*model.Draft
}

func (p *fakePublisher) Publish(ctx context.Context, repo *model.Repository, draft *model.Draft) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drafts = append(p.drafts, draft.Clone())
	return p.err
}

func (p *fakePublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.drafts)
}

type fakeTrigger struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (t *fakeTrigger) Trigger(ctx context.Context, repoID types.RepositoryID, trigger string) (*model.Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, trigger)
	if t.err != nil {
		return nil, t.err
	}
	return model.NewRun(repoID, trigger, time.Now()), nil
}

func newTestRepo() *model.Repository {
	return &model.Repository{
		ID:       types.NewRepositoryID(),
		Name:     "acme/app",
		Provider: model.ProviderGitHub,
	}
}

func commitEvent(sha, title, login string, ts time.Time, files ...string) *model.RawEvent {
	return &model.RawEvent{
		ExternalID: sha,
		Kind:       model.RawKindCommit,
		Title:      title,
		Author:     model.Author{Login: login},
		Timestamp:  ts,
		URL:        "https://github.com/acme/app/commit/" + sha,
		Files:      files,
	}
}
