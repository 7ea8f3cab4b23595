package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// ProviderKind selects the version-control provider of a repository
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderGit    ProviderKind = "git"
)

// Repository is a registered source repository. Name is unique, e.g. "owner/repo".
type Repository struct {
	ID        types.RepositoryID
	Name      string
	Provider  ProviderKind
	LocalPath string
	CreatedAt time.Time
}

// Owner returns the owner part of Name
func (r *Repository) Owner() string {
	owner, _, _ := strings.Cut(r.Name, "/")
	return owner
}

// Repo returns the repository part of Name
func (r *Repository) Repo() string {
	_, repo, _ := strings.Cut(r.Name, "/")
	return repo
}

// Validate checks the registration fields
func (r *Repository) Validate() error {
	owner, repo, ok := strings.Cut(r.Name, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return goerr.Wrap(ErrInvalidArgument, "repository name must be owner/repo", goerr.V("name", r.Name))
	}

	switch r.Provider {
	case ProviderGitHub:
	case ProviderGit:
		if r.LocalPath == "" {
			return goerr.Wrap(ErrInvalidArgument, "git provider requires a local path", goerr.V("name", r.Name))
		}
	default:
		return goerr.Wrap(ErrInvalidArgument, "unknown provider", goerr.V("provider", r.Provider))
	}
	return nil
}
