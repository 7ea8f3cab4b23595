package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	phaseCommits = "commits"
	phasePulls   = "pulls"
)

// Client reads commits and merged pull requests of GitHub repositories and
// resolves issue references. Every API call waits on a client-side limiter.
type Client struct {
	gh        *github.Client
	limiter   *rate.Limiter
	perPage   int
	lookback  time.Duration
	fileLimit int
	now       func() time.Time
}

var (
	_ interfaces.VCSProvider  = (*Client)(nil)
	_ interfaces.IssueTracker = (*Client)(nil)
)

type options struct {
	transport http.RoundTripper
	appID     int64
	installID int64
	key       []byte
	token     string
	baseURL   string
	rps       float64
	burst     int
	perPage   int
	lookback  time.Duration
	fileLimit int
	now       func() time.Time
}

// Option configures a Client
type Option func(*options)

// WithAppAuth authenticates as a GitHub App installation
func WithAppAuth(appID, installationID int64, privateKey []byte) Option {
	return func(o *options) {
		o.appID = appID
		o.installID = installationID
		o.key = privateKey
	}
}

// WithToken authenticates with a personal access token
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithBaseURL points the client at another API endpoint (GitHub Enterprise, tests)
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithRateLimit sets the client-side request rate
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// WithPageSize sets the number of items per API page
func WithPageSize(n int) Option {
	return func(o *options) { o.perPage = n }
}

// WithLookback sets how far back the first run of a repository reads
func WithLookback(d time.Duration) Option {
	return func(o *options) { o.lookback = d }
}

// WithFileLimit caps the number of changed files fetched per change. Zero
// disables file lookups.
func WithFileLimit(n int) Option {
	return func(o *options) { o.fileLimit = n }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewClient creates a GitHub client. Without WithAppAuth or WithToken the
// client is unauthenticated.
func NewClient(opts ...Option) (*Client, error) {
	o := &options{
		transport: http.DefaultTransport,
		rps:       10,
		burst:     10,
		perPage:   100,
		lookback:  30 * 24 * time.Hour,
		fileLimit: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	httpClient := &http.Client{Transport: o.transport}
	switch {
	case o.appID != 0:
		itr, err := ghinstallation.New(o.transport, o.appID, o.installID, o.key)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub App transport",
				goerr.V("app_id", o.appID),
				goerr.V("installation_id", o.installID))
		}
		httpClient = &http.Client{Transport: itr}
	case o.token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.token})
		httpClient = &http.Client{Transport: &oauth2.Transport{Source: ts, Base: o.transport}}
	}

	gh := github.NewClient(httpClient)
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, goerr.Wrap(err, "invalid GitHub base URL", goerr.V("url", o.baseURL))
		}
		gh.BaseURL = u
	}

	return &Client{
		gh:        gh,
		limiter:   rate.NewLimiter(rate.Limit(o.rps), o.burst),
		perPage:   o.perPage,
		lookback:  o.lookback,
		fileLimit: o.fileLimit,
		now:       o.now,
	}, nil
}

// cursor is the decoded provider position: a time window, the listing phase
// within it and the next page
type cursor struct {
	phase string
	page  int
	since time.Time
	until time.Time
}

func (c *Client) decodeCursor(raw model.Cursor) (*cursor, error) {
	cur := &cursor{phase: phaseCommits, page: 1}
	if raw == "" {
		cur.since = c.now().Add(-c.lookback).UTC()
		return cur, nil
	}

	v, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor", goerr.V("cursor", raw))
	}
	if p := v.Get("phase"); p != "" {
		cur.phase = p
	}
	if p := v.Get("page"); p != "" {
		if cur.page, err = strconv.Atoi(p); err != nil || cur.page < 1 {
			return nil, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor page", goerr.V("cursor", raw))
		}
	}
	for key, dst := range map[string]*time.Time{"since": &cur.since, "until": &cur.until} {
		if s := v.Get(key); s != "" {
			if *dst, err = time.Parse(time.RFC3339, s); err != nil {
				return nil, goerr.Wrap(model.ErrInvalidArgument, "malformed cursor time", goerr.V("cursor", raw))
			}
		}
	}
	return cur, nil
}

func (cur *cursor) encode() model.Cursor {
	v := url.Values{}
	v.Set("since", cur.since.UTC().Format(time.RFC3339))
	if !cur.until.IsZero() {
		v.Set("phase", cur.phase)
		v.Set("page", strconv.Itoa(cur.page))
		v.Set("until", cur.until.UTC().Format(time.RFC3339))
	}
	return model.Cursor(v.Encode())
}

// FetchEvents returns one page of the repository's history. A window is read
// commits first, then merged pull requests. When the window is exhausted the
// result is Done and the cursor starts the next window where this one ended.
func (c *Client) FetchEvents(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	cur, err := c.decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	if cur.until.IsZero() {
		cur.until = c.now().UTC().Truncate(time.Second)
	}

	repo := req.Repository
	var events []*model.RawEvent
	var nextPage int
	switch cur.phase {
	case phaseCommits:
		events, nextPage, err = c.listCommits(ctx, repo, cur)
	case phasePulls:
		events, nextPage, err = c.listMergedPulls(ctx, repo, cur)
	default:
		return nil, goerr.Wrap(model.ErrInvalidArgument, "unknown cursor phase", goerr.V("phase", cur.phase))
	}
	if err != nil {
		return nil, err
	}

	next := *cur
	done := false
	switch {
	case nextPage > 0:
		next.page = nextPage
	case cur.phase == phaseCommits:
		next.phase, next.page = phasePulls, 1
	default:
		next = cursor{since: cur.until}
		done = true
	}

	ctxlog.From(ctx).Debug("Fetched GitHub events",
		"repository", repo.Name,
		"phase", cur.phase,
		"page", cur.page,
		"events", len(events),
	)
	return &model.FetchResult{Events: events, Next: next.encode(), Done: done}, nil
}

func (c *Client) listCommits(ctx context.Context, repo *model.Repository, cur *cursor) ([]*model.RawEvent, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, goerr.Wrap(err, "rate limiter wait cancelled")
	}
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, repo.Owner(), repo.Repo(), &github.CommitsListOptions{
		Since:       cur.since,
		Until:       cur.until,
		ListOptions: github.ListOptions{Page: cur.page, PerPage: c.perPage},
	})
	if err != nil {
		return nil, 0, mapError(err, resp, repo)
	}

	events := make([]*model.RawEvent, 0, len(commits))
	for _, rc := range commits {
		title, body, _ := strings.Cut(rc.GetCommit().GetMessage(), "\n")
		ts := rc.GetCommit().GetAuthor().GetDate().Time
		if ts.IsZero() {
			ts = rc.GetCommit().GetCommitter().GetDate().Time
		}

		ev := &model.RawEvent{
			ExternalID: rc.GetSHA(),
			Kind:       model.RawKindCommit,
			Title:      strings.TrimSpace(title),
			Body:       strings.TrimSpace(body),
			Author: model.Author{
				Name:  rc.GetCommit().GetAuthor().GetName(),
				Email: rc.GetCommit().GetAuthor().GetEmail(),
				Login: rc.GetAuthor().GetLogin(),
			},
			Timestamp: ts,
			URL:       rc.GetHTMLURL(),
		}

		if c.fileLimit > 0 {
			files, err := c.commitFiles(ctx, repo, rc.GetSHA())
			if err != nil {
				return nil, 0, err
			}
			ev.Files = files
			if model.IsDocumentationOnly(files) {
				ev.Kind = model.RawKindDoc
			}
		}
		events = append(events, ev)
	}
	return events, resp.NextPage, nil
}

func (c *Client) commitFiles(ctx context.Context, repo *model.Repository, sha string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "rate limiter wait cancelled")
	}
	commit, resp, err := c.gh.Repositories.GetCommit(ctx, repo.Owner(), repo.Repo(), sha, &github.ListOptions{PerPage: c.fileLimit})
	if err != nil {
		return nil, mapError(err, resp, repo)
	}

	files := make([]string, 0, len(commit.Files))
	for _, f := range commit.Files {
		if len(files) == c.fileLimit {
			break
		}
		files = append(files, f.GetFilename())
	}
	return files, nil
}

// listMergedPulls pages through closed pull requests by most recent update and
// keeps those merged inside the window. Paging stops once updates fall before
// the window.
func (c *Client) listMergedPulls(ctx context.Context, repo *model.Repository, cur *cursor) ([]*model.RawEvent, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, goerr.Wrap(err, "rate limiter wait cancelled")
	}
	pulls, resp, err := c.gh.PullRequests.List(ctx, repo.Owner(), repo.Repo(), &github.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{Page: cur.page, PerPage: c.perPage},
	})
	if err != nil {
		return nil, 0, mapError(err, resp, repo)
	}

	nextPage := resp.NextPage
	var events []*model.RawEvent
	for _, pr := range pulls {
		if pr.GetUpdatedAt().Before(cur.since) {
			nextPage = 0
			break
		}
		merged := pr.GetMergedAt().Time
		if merged.IsZero() || merged.Before(cur.since) || !merged.Before(cur.until) {
			continue
		}

		ev := &model.RawEvent{
			ExternalID: strconv.Itoa(pr.GetNumber()),
			Kind:       model.RawKindPR,
			Title:      strings.TrimSpace(pr.GetTitle()),
			Body:       strings.TrimSpace(pr.GetBody()),
			Author:     model.Author{Login: pr.GetUser().GetLogin()},
			Timestamp:  merged,
			URL:        pr.GetHTMLURL(),
		}
		if c.fileLimit > 0 {
			if ev.Files, err = c.pullFiles(ctx, repo, pr.GetNumber()); err != nil {
				return nil, 0, err
			}
		}
		events = append(events, ev)
	}
	return events, nextPage, nil
}

func (c *Client) pullFiles(ctx context.Context, repo *model.Repository, number int) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "rate limiter wait cancelled")
	}
	files, resp, err := c.gh.PullRequests.ListFiles(ctx, repo.Owner(), repo.Repo(), number, &github.ListOptions{PerPage: c.fileLimit})
	if err != nil {
		return nil, mapError(err, resp, repo)
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.GetFilename())
	}
	return out, nil
}

// ResolveReference looks up issue or pull request number in repo
func (c *Client) ResolveReference(ctx context.Context, repo *model.Repository, number int) (*model.CrossReference, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "rate limiter wait cancelled")
	}
	issue, resp, err := c.gh.Issues.Get(ctx, repo.Owner(), repo.Repo(), number)
	if err != nil {
		return nil, mapError(err, resp, repo)
	}

	return &model.CrossReference{
		ID:            fmt.Sprintf("%s#%d", repo.Name, number),
		Number:        number,
		Title:         issue.GetTitle(),
		URL:           issue.GetHTMLURL(),
		IsPullRequest: issue.IsPullRequest(),
	}, nil
}

// mapError converts go-github failures into the provider error contract
func mapError(err error, resp *github.Response, repo *model.Repository) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &model.RateLimitError{RetryAfter: time.Until(rle.Rate.Reset.Time), Cause: err}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &model.RateLimitError{RetryAfter: abuse.GetRetryAfter(), Cause: err}
	}

	if resp != nil && resp.Response != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return &model.RateLimitError{RetryAfter: retryAfter(resp), Cause: err}
		case http.StatusForbidden:
			if resp.Rate.Limit > 0 && resp.Rate.Remaining == 0 {
				return &model.RateLimitError{RetryAfter: time.Until(resp.Rate.Reset.Time), Cause: err}
			}
			return goerr.Wrap(model.ErrSourceUnauthorized, "GitHub denied access",
				goerr.V("repository", repo.Name), goerr.V("cause", err.Error()))
		case http.StatusUnauthorized:
			return goerr.Wrap(model.ErrSourceUnauthorized, "GitHub rejected credentials",
				goerr.V("repository", repo.Name), goerr.V("cause", err.Error()))
		case http.StatusNotFound:
			return goerr.Wrap(model.ErrSourceNotFound, "GitHub object not found",
				goerr.V("repository", repo.Name), goerr.V("cause", err.Error()))
		}
	}

	return goerr.Wrap(err, "GitHub API request failed", goerr.V("repository", repo.Name))
}

func retryAfter(resp *github.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Minute
}
