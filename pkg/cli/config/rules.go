package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Rules holds the path of the classification rules file
type Rules struct {
	Path string
}

// Flags returns CLI flags for classification rules
func (c *Rules) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "rules",
			Usage:       "TOML file of classification rules ([[rule]] name, pattern, category)",
			Destination: &c.Path,
			Sources:     cli.EnvVars("RELNOTE_RULES"),
		},
	}
}

// Load reads the rules file. No file means no user rules.
func (c *Rules) Load() ([]model.ClassificationRule, error) {
	if c.Path == "" {
		return nil, nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open rules file", goerr.V("path", c.Path))
	}
	defer f.Close()

	var set model.ClassificationRuleSet
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&set); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "failed to parse rules file",
			goerr.V("path", c.Path),
			goerr.V("error", err.Error()),
		)
	}
	return set.Rules, nil
}
