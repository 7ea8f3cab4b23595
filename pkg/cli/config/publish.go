package config

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/infra/gcs"
	"github.com/m-mizutani/relnote/pkg/infra/slack"
	"github.com/m-mizutani/relnote/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Slack holds configuration of the Slack publish target
type Slack struct {
	Token   string `masq:"secret"`
	Channel string
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-token",
			Usage:       "Slack bot token for publishing approved release notes",
			Destination: &c.Token,
			Sources:     cli.EnvVars("RELNOTE_SLACK_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Slack channel receiving approved release notes",
			Destination: &c.Channel,
			Sources:     cli.EnvVars("RELNOTE_SLACK_CHANNEL"),
		},
	}
}

// Storage holds configuration of the Cloud Storage archive target
type Storage struct {
	Bucket string
	Prefix string
}

// Flags returns CLI flags for Cloud Storage configuration
func (c *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket archiving approved release notes",
			Destination: &c.Bucket,
			Sources:     cli.EnvVars("RELNOTE_STORAGE_BUCKET"),
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object prefix in the archive bucket",
			Value:       "release-notes",
			Destination: &c.Prefix,
			Sources:     cli.EnvVars("RELNOTE_STORAGE_PREFIX"),
		},
	}
}

// NewPublisher builds the publish hook from the configured targets. The
// returned closer releases the storage client.
func NewPublisher(ctx context.Context, slackCfg *Slack, storageCfg *Storage) (*usecase.MultiPublisher, func(), error) {
	pub := usecase.NewMultiPublisher()
	closer := func() {}

	if slackCfg.Token != "" {
		if slackCfg.Channel == "" {
			return nil, nil, goerr.New("slack-channel is required with slack-token")
		}
		pub.Add("slack", slack.New(slackCfg.Token, slackCfg.Channel))
	}

	if storageCfg.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create Cloud Storage client")
		}
		pub.Add("gcs", gcs.New(client, storageCfg.Bucket, storageCfg.Prefix))
		closer = func() { _ = client.Close() }
	}

	return pub, closer, nil
}
