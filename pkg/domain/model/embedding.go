package model

import (
	"cmp"
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Metadata keys stored alongside embeddings
const (
	MetaRepositoryID = "repository_id"
	MetaTimestamp    = "timestamp"
	MetaText         = "text"
	MetaKind         = "kind"
	MetaCategory     = "category"
)

// EmbeddingEntry is a stored vector keyed by record (or draft) id
type EmbeddingEntry struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is a single similarity query result
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Timestamp parses the timestamp metadata; zero if absent or malformed
func (m *Match) Timestamp() time.Time {
	t, err := time.Parse(time.RFC3339, m.Metadata[MetaTimestamp])
	if err != nil {
		return time.Time{}
	}
	return t
}

// CheckDimension validates vector length against the index dimension
func CheckDimension(dim int, vec []float32) error {
	if len(vec) != dim {
		return goerr.Wrap(ErrDimensionMismatch, "vector length differs from index dimension",
			goerr.V("expected", dim),
			goerr.V("actual", len(vec)),
		)
	}
	return nil
}

// SortMatches orders by descending score, then most recent timestamp, then id
func SortMatches(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := b.Timestamp().Compare(a.Timestamp()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
