package config

import (
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/interfaces"
	"github.com/m-mizutani/relnote/pkg/repository/firestore"
	"github.com/m-mizutani/relnote/pkg/infra/vector/chromem"
	vectorfs "github.com/m-mizutani/relnote/pkg/infra/vector/firestore"
	"github.com/m-mizutani/relnote/pkg/infra/vector/memory"
	"github.com/urfave/cli/v3"
)

const (
	IndexMemory    = "memory"
	IndexChromem   = "chromem"
	IndexFirestore = "firestore"
)

// Index holds similarity index configuration
type Index struct {
	Backend    string
	Dimension  int
	PersistDir string
	Compress   bool
}

// Flags returns CLI flags for similarity index configuration
func (c *Index) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index-backend",
			Usage:       "Similarity index backend (memory, chromem, firestore)",
			Value:       IndexMemory,
			Destination: &c.Backend,
			Sources:     cli.EnvVars("RELNOTE_INDEX_BACKEND"),
		},
		&cli.IntFlag{
			Name:        "index-dimension",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Destination: &c.Dimension,
			Sources:     cli.EnvVars("RELNOTE_INDEX_DIMENSION"),
		},
		&cli.StringFlag{
			Name:        "index-persist-dir",
			Usage:       "Directory of the persistent chromem index (in-memory when empty)",
			Destination: &c.PersistDir,
			Sources:     cli.EnvVars("RELNOTE_INDEX_PERSIST_DIR"),
		},
		&cli.BoolFlag{
			Name:        "index-compress",
			Usage:       "Compress the persistent chromem index",
			Destination: &c.Compress,
			Sources:     cli.EnvVars("RELNOTE_INDEX_COMPRESS"),
		},
	}
}

// NewIndexes opens the records and summaries indexes. fs is required for
// the firestore backend.
func (c *Index) NewIndexes(fs *firestore.Repository) (records, summaries interfaces.SimilarityIndex, err error) {
	if c.Dimension <= 0 {
		return nil, nil, goerr.New("index dimension must be positive", goerr.V("dimension", c.Dimension))
	}

	switch c.Backend {
	case IndexMemory:
		return memory.New(c.Dimension), memory.New(c.Dimension), nil

	case IndexChromem:
		open := func(name string) (*chromem.Index, error) {
			var opts []chromem.Option
			if c.PersistDir != "" {
				opts = append(opts, chromem.WithPersistDir(filepath.Join(c.PersistDir, name), c.Compress))
			}
			return chromem.New(name, c.Dimension, opts...)
		}
		r, err := open("records")
		if err != nil {
			return nil, nil, err
		}
		s, err := open("summaries")
		if err != nil {
			return nil, nil, err
		}
		return r, s, nil

	case IndexFirestore:
		if fs == nil {
			return nil, nil, goerr.New("firestore index requires firestore storage")
		}
		return vectorfs.New(fs.Client(), "record_vectors", c.Dimension),
			vectorfs.New(fs.Client(), "summary_vectors", c.Dimension), nil

	default:
		return nil, nil, goerr.New("unknown index backend", goerr.V("backend", c.Backend))
	}
}
