package interfaces

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// VCSProvider fetches raw version-control events page by page. Rate limiting must
// be surfaced as *model.RateLimitError, and missing or forbidden repositories as
// model.ErrSourceNotFound / model.ErrSourceUnauthorized.
type VCSProvider interface {
	FetchEvents(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error)
}

// IssueTracker resolves issue and pull request references
type IssueTracker interface {
	ResolveReference(ctx context.Context, repo *model.Repository, number int) (*model.CrossReference, error)
}

// ProviderFactory returns the provider and issue tracker serving a repository
type ProviderFactory interface {
	Provider(repo *model.Repository) (VCSProvider, IssueTracker, error)
}
