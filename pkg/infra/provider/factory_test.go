package provider_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/infra/github"
	"github.com/m-mizutani/relnote/pkg/infra/gitlocal"
	"github.com/m-mizutani/relnote/pkg/infra/provider"
)

func TestFactory_Provider(t *testing.T) {
	gh, err := github.NewClient()
	gt.NoError(t, err)
	local := gitlocal.New()

	t.Run("github repository", func(t *testing.T) {
		p, tracker, err := provider.NewFactory(gh, local).Provider(&model.Repository{Name: "acme/app", Provider: model.ProviderGitHub})
		gt.NoError(t, err)
		gt.Value(t, p).NotNil()
		gt.Value(t, tracker).NotNil()
	})

	t.Run("local clone without GitHub has no tracker", func(t *testing.T) {
		p, tracker, err := provider.NewFactory(nil, local).Provider(&model.Repository{Name: "acme/app", Provider: model.ProviderGit})
		gt.NoError(t, err)
		gt.Value(t, p).NotNil()
		gt.True(t, tracker == nil)
	})

	t.Run("github repository without client", func(t *testing.T) {
		_, _, err := provider.NewFactory(nil, local).Provider(&model.Repository{Name: "acme/app", Provider: model.ProviderGitHub})
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, _, err := provider.NewFactory(gh, local).Provider(&model.Repository{Name: "acme/app", Provider: "svn"})
		gt.True(t, errors.Is(err, model.ErrInvalidArgument))
	})
}
