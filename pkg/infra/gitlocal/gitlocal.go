// Package gitlocal reads change history from a local git clone.
package gitlocal

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// Provider serves commits of the repository at model.Repository.LocalPath.
// The cursor holds the commits whose ancestry has been fully returned; a
// commit is unread when HEAD reaches it and no cursor commit does.
type Provider struct {
	pageSize int
	lookback time.Duration
	now      func() time.Time
}

var _ interfaces.VCSProvider = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithPageSize sets the number of commits per page
func WithPageSize(n int) Option {
	return func(p *Provider) { p.pageSize = n }
}

// WithLookback sets how far back the first run reads
func WithLookback(d time.Duration) Option {
	return func(p *Provider) { p.lookback = d }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a local git provider
func New(opts ...Option) *Provider {
	p := &Provider{
		pageSize: 200,
		lookback: 30 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchEvents returns the oldest unread commits reachable from HEAD, at most
// one page of them. Parents come before children, so a page never leaves an
// unread ancestor behind, and commits of a branch merged after the cursor are
// still delivered.
func (p *Provider) FetchEvents(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	repoPath := req.Repository.LocalPath
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, goerr.Wrap(model.ErrSourceNotFound, "git repository not found", goerr.V("path", repoPath))
		}
		return nil, goerr.Wrap(err, "failed to open git repository", goerr.V("path", repoPath))
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// empty repository
			return &model.FetchResult{Next: req.Cursor, Done: true}, nil
		}
		return nil, goerr.Wrap(err, "failed to resolve HEAD", goerr.V("path", repoPath))
	}

	frontier, since, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	// commits lost to a force push no longer bound anything
	frontier = slices.DeleteFunc(frontier, func(h plumbing.Hash) bool { return !hasCommit(repo, h) })

	seen, err := ancestors(ctx, repo, frontier)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk read history", goerr.V("path", repoPath))
	}

	if len(frontier) == 0 && since.IsZero() {
		since = p.now().Add(-p.lookback)
	}
	unread, err := collectUnread(ctx, repo, head.Hash(), seen, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk git log", goerr.V("path", repoPath))
	}

	ordered := parentsFirst(unread)
	done := len(ordered) <= p.pageSize
	if !done {
		ordered = ordered[:p.pageSize]
	}

	events := make([]*model.RawEvent, 0, len(ordered))
	for _, c := range ordered {
		ev, err := toEvent(c)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	next := req.Cursor
	switch {
	case done:
		next = encodeCursor([]plumbing.Hash{head.Hash()}, time.Time{})
	case len(ordered) > 0:
		// the lookback bound holds until the first full pass completes
		next = encodeCursor(advance(frontier, ordered), since)
	}

	ctxlog.From(ctx).Debug("Read local git commits",
		"path", repoPath,
		"commits", len(events),
		"done", done,
	)
	return &model.FetchResult{Events: events, Next: next, Done: done}, nil
}

// ancestors returns every commit reachable from roots, roots included
func ancestors(ctx context.Context, repo *git.Repository, roots []plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	seen := make(map[plumbing.Hash]struct{})
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read commit", goerr.V("commit", h.String()))
		}
		seen[h] = struct{}{}
		stack = append(stack, c.ParentHashes...)
	}
	return seen, nil
}

// collectUnread returns the commits reachable from head that are not in seen.
// A non-zero since also stops the walk at commits older than it.
func collectUnread(ctx context.Context, repo *git.Repository, head plumbing.Hash, seen map[plumbing.Hash]struct{}, since time.Time) (map[plumbing.Hash]*object.Commit, error) {
	unread := make(map[plumbing.Hash]*object.Commit)
	stack := []plumbing.Hash{head}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		if _, ok := unread[h]; ok {
			continue
		}
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read commit", goerr.V("commit", h.String()))
		}
		if !since.IsZero() && c.Committer.When.Before(since) {
			continue
		}
		unread[h] = c
		stack = append(stack, c.ParentHashes...)
	}
	return unread, nil
}

// parentsFirst orders commits so that each comes after its unread parents.
// Among commits that are ready, the older committer time goes first, then the
// hash.
func parentsFirst(commits map[plumbing.Hash]*object.Commit) []*object.Commit {
	pending := make(map[plumbing.Hash]int, len(commits))
	children := make(map[plumbing.Hash][]plumbing.Hash)
	var ready []*object.Commit
	for h, c := range commits {
		for _, parent := range c.ParentHashes {
			if _, ok := commits[parent]; ok {
				pending[h]++
				children[parent] = append(children[parent], h)
			}
		}
		if pending[h] == 0 {
			ready = append(ready, c)
		}
	}

	older := func(a, b *object.Commit) int {
		if c := a.Committer.When.Compare(b.Committer.When); c != 0 {
			return c
		}
		return strings.Compare(a.Hash.String(), b.Hash.String())
	}

	out := make([]*object.Commit, 0, len(commits))
	for len(ready) > 0 {
		i := 0
		for j := range ready {
			if older(ready[j], ready[i]) < 0 {
				i = j
			}
		}
		c := ready[i]
		ready = slices.Delete(ready, i, i+1)
		out = append(out, c)

		for _, child := range children[c.Hash] {
			pending[child]--
			if pending[child] == 0 {
				ready = append(ready, commits[child])
			}
		}
	}
	return out
}

// advance returns the cursor commits after page has been read: the previous
// ones plus the page commits that no other page commit has as a parent
func advance(frontier []plumbing.Hash, page []*object.Commit) []plumbing.Hash {
	covered := make(map[plumbing.Hash]struct{})
	for _, c := range page {
		for _, parent := range c.ParentHashes {
			covered[parent] = struct{}{}
		}
	}

	var next []plumbing.Hash
	for _, h := range frontier {
		if _, ok := covered[h]; !ok {
			next = append(next, h)
		}
	}
	for _, c := range page {
		if _, ok := covered[c.Hash]; !ok {
			next = append(next, c.Hash)
		}
	}
	return next
}

func hasCommit(repo *git.Repository, h plumbing.Hash) bool {
	_, err := repo.CommitObject(h)
	return err == nil
}

func toEvent(c *object.Commit) (*model.RawEvent, error) {
	title, body, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")

	ev := &model.RawEvent{
		ExternalID: c.Hash.String(),
		Kind:       model.RawKindCommit,
		Title:      strings.TrimSpace(title),
		Body:       strings.TrimSpace(body),
		Author: model.Author{
			Name:  c.Author.Name,
			Email: c.Author.Email,
		},
		Timestamp: c.Author.When,
	}

	// merge commits have no single diff; their content arrives via the merged commits
	if c.NumParents() <= 1 {
		stats, err := c.Stats()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compute commit stats", goerr.V("commit", c.Hash.String()))
		}
		for _, s := range stats {
			ev.Files = append(ev.Files, s.Name)
		}
		if model.IsDocumentationOnly(ev.Files) {
			ev.Kind = model.RawKindDoc
		}
	}
	return ev, nil
}

func decodeCursor(c model.Cursor) ([]plumbing.Hash, time.Time, error) {
	if c == "" {
		return nil, time.Time{}, nil
	}
	v, err := url.ParseQuery(string(c))
	if err != nil || len(v["last"]) == 0 {
		return nil, time.Time{}, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor", goerr.V("cursor", c))
	}

	hashes := make([]plumbing.Hash, 0, len(v["last"]))
	for _, s := range v["last"] {
		if !plumbing.IsHash(s) {
			return nil, time.Time{}, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor", goerr.V("cursor", c))
		}
		hashes = append(hashes, plumbing.NewHash(s))
	}

	var since time.Time
	if raw := v.Get("since"); raw != "" {
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, time.Time{}, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor", goerr.V("cursor", c))
		}
	}
	return hashes, since, nil
}

func encodeCursor(hashes []plumbing.Hash, since time.Time) model.Cursor {
	v := url.Values{}
	for _, h := range hashes {
		v.Add("last", h.String())
	}
	if !since.IsZero() {
		v.Set("since", since.UTC().Format(time.RFC3339))
	}
	return model.Cursor(v.Encode())
}
