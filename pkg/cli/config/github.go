package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/infra/github"
	"github.com/urfave/cli/v3"
)

// GitHub holds GitHub configuration. An App installation takes precedence
// over a token; with neither the client is unauthenticated.
type GitHub struct {
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
	PrivateKeyFile string
	Token          string `masq:"secret"`
	WebhookSecret  string `masq:"secret"`
	BaseURL        string
	RateLimit      float64
	Lookback       time.Duration
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-private-key",
			Usage:       "GitHub App private key (PEM)",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:        "github-private-key-file",
			Usage:       "Path to the GitHub App private key (PEM)",
			Destination: &c.PrivateKeyFile,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_PRIVATE_KEY_FILE"),
		},
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub personal access token",
			Destination: &c.Token,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "github-webhook-secret",
			Usage:       "GitHub webhook secret",
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_WEBHOOK_SECRET"),
		},
		&cli.StringFlag{
			Name:        "github-base-url",
			Usage:       "GitHub API base URL (GitHub Enterprise)",
			Destination: &c.BaseURL,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_BASE_URL"),
		},
		&cli.FloatFlag{
			Name:        "github-rate-limit",
			Usage:       "Maximum GitHub API requests per second",
			Value:       10,
			Destination: &c.RateLimit,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_RATE_LIMIT"),
		},
		&cli.DurationFlag{
			Name:        "github-lookback",
			Usage:       "How far back the first run of a repository reads",
			Value:       30 * 24 * time.Hour,
			Destination: &c.Lookback,
			Sources:     cli.EnvVars("RELNOTE_GITHUB_LOOKBACK"),
		},
	}
}

func (c *GitHub) privateKey() ([]byte, error) {
	if c.PrivateKey != "" {
		return []byte(c.PrivateKey), nil
	}
	if c.PrivateKeyFile == "" {
		return nil, goerr.New("GitHub App requires a private key", goerr.V("app_id", c.AppID))
	}
	key, err := os.ReadFile(c.PrivateKeyFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read GitHub App private key", goerr.V("path", c.PrivateKeyFile))
	}
	return key, nil
}

// NewClient creates the GitHub provider and issue tracker
func (c *GitHub) NewClient() (*github.Client, error) {
	opts := []github.Option{
		github.WithRateLimit(c.RateLimit, max(1, int(c.RateLimit))),
		github.WithLookback(c.Lookback),
	}
	if c.BaseURL != "" {
		opts = append(opts, github.WithBaseURL(c.BaseURL))
	}

	switch {
	case c.AppID != 0:
		key, err := c.privateKey()
		if err != nil {
			return nil, err
		}
		opts = append(opts, github.WithAppAuth(c.AppID, c.InstallationID, key))
	case c.Token != "":
		opts = append(opts, github.WithToken(c.Token))
	}

	return github.NewClient(opts...)
}
