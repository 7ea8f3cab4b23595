package config

import (
	"context"

	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/repository/firestore"
	"github.com/m-mizutani/relnote/pkg/repository/memory"
	"github.com/urfave/cli/v3"
)

// Firestore holds persistence configuration. Without a project ID state is
// kept in memory and lost on exit.
type Firestore struct {
	ProjectID  string
	DatabaseID string
}

// Flags returns CLI flags for Firestore configuration
func (c *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Google Cloud Project ID for Firestore (in-memory storage when empty)",
			Destination: &c.ProjectID,
			Sources:     cli.EnvVars("RELNOTE_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Destination: &c.DatabaseID,
			Sources:     cli.EnvVars("RELNOTE_FIRESTORE_DATABASE_ID"),
		},
	}
}

// Backend names the configured storage for health reporting
func (c *Firestore) Backend() string {
	if c.ProjectID == "" {
		return "memory"
	}
	return "firestore"
}

// NewRepository opens the configured repository. fs is nil for in-memory storage.
func (c *Firestore) NewRepository(ctx context.Context) (repo interfaces.Repository, fs *firestore.Repository, err error) {
	if c.ProjectID == "" {
		return memory.New(), nil, nil
	}

	fs, err = firestore.New(ctx, c.ProjectID, c.DatabaseID)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs, nil
}
