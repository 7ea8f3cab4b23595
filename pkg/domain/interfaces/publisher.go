package interfaces

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/model"
)

// Publisher is the external publish hook, invoked once per successful approval
type Publisher interface {
	Publish(ctx context.Context, repo *model.Repository, draft *model.Draft) error
}
