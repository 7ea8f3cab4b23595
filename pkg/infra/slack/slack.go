package slack

import (
	"context"
	"fmt"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/slack-go/slack"
)

// Publisher posts approved external release notes to a Slack channel
type Publisher struct {
	client  *slack.Client
	channel string
}

var _ interfaces.Publisher = (*Publisher)(nil)

// Option configures a Publisher
type Option func(*options)

type options struct {
	apiURL string
}

// WithAPIURL overrides the Slack API endpoint
func WithAPIURL(u string) Option {
	return func(o *options) { o.apiURL = u }
}

// New creates a Slack publisher posting to channel with a bot token
func New(token, channel string, opts ...Option) *Publisher {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var slackOpts []slack.Option
	if o.apiURL != "" {
		slackOpts = append(slackOpts, slack.OptionAPIURL(o.apiURL))
	}
	return &Publisher{
		client:  slack.New(token, slackOpts...),
		channel: channel,
	}
}

func (p *Publisher) Publish(ctx context.Context, repo *model.Repository, draft *model.Draft) error {
	header := fmt.Sprintf("Release notes for %s", repo.Name)

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, toMrkdwn(draft.External), false, false), nil, nil),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("draft `%s`", draft.ID), false, false)),
	}

	channel, ts, err := p.client.PostMessageContext(ctx, p.channel,
		slack.MsgOptionText(header, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post release notes to Slack",
			goerr.V("channel", p.channel),
			goerr.V("draft_id", draft.ID),
		)
	}

	ctxlog.From(ctx).Info("Posted release notes to Slack",
		"channel", channel,
		"ts", ts,
		"draft_id", draft.ID,
	)
	return nil
}
