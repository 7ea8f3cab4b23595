// Package provider selects the version-control provider and issue tracker of
// a repository.
package provider

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/infra/github"
	"github.com/m-mizutani/relnote/pkg/infra/gitlocal"
)

// Factory serves GitHub repositories through the GitHub API and local clones
// through go-git. Issue references of local clones resolve through GitHub when
// a client is configured.
type Factory struct {
	github *github.Client
	local  *gitlocal.Provider
}

var _ interfaces.ProviderFactory = (*Factory)(nil)

// NewFactory creates a Factory. gh may be nil when GitHub is not configured.
func NewFactory(gh *github.Client, local *gitlocal.Provider) *Factory {
	return &Factory{github: gh, local: local}
}

func (f *Factory) Provider(repo *model.Repository) (interfaces.VCSProvider, interfaces.IssueTracker, error) {
	var tracker interfaces.IssueTracker
	if f.github != nil {
		tracker = f.github
	}

	switch repo.Provider {
	case model.ProviderGitHub:
		if f.github == nil {
			return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "GitHub client is not configured",
				goerr.V("repository", repo.Name))
		}
		return f.github, tracker, nil

	case model.ProviderGit:
		if f.local == nil {
			return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "local git provider is not configured",
				goerr.V("repository", repo.Name))
		}
		return f.local, tracker, nil

	default:
		return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "unknown provider",
			goerr.V("repository", repo.Name),
			goerr.V("provider", repo.Provider))
	}
}
