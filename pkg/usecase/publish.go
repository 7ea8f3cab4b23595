package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/m-mizutani/relnote/pkg/utils/metrics"
)

type publishTarget struct {
	name      string
	publisher interfaces.Publisher
}

// MultiPublisher fans an approved draft out to every configured publisher.
// All targets are attempted; failures are joined.
type MultiPublisher struct {
	targets []publishTarget
}

var _ interfaces.Publisher = (*MultiPublisher)(nil)

// NewMultiPublisher creates an empty publisher; publishing with no targets is a no-op
func NewMultiPublisher() *MultiPublisher {
	return &MultiPublisher{}
}

// Add registers a named publish target
func (m *MultiPublisher) Add(name string, p interfaces.Publisher) {
	m.targets = append(m.targets, publishTarget{name: name, publisher: p})
}

// Len returns the number of targets
func (m *MultiPublisher) Len() int {
	return len(m.targets)
}

func (m *MultiPublisher) Publish(ctx context.Context, repo *model.Repository, draft *model.Draft) error {
	logger := ctxlog.From(ctx)

	var errs []error
	for _, t := range m.targets {
		if err := t.publisher.Publish(ctx, repo, draft); err != nil {
			metrics.PublishTotal.WithLabelValues(t.name, "error").Inc()
			errs = append(errs, goerr.Wrap(err, "publish failed", goerr.V("publisher", t.name)))
			continue
		}
		metrics.PublishTotal.WithLabelValues(t.name, "ok").Inc()
		logger.Info("Published release notes",
			"publisher", t.name,
			"repository", repo.Name,
			"draft_id", draft.ID,
		)
	}
	return errors.Join(errs...)
}
