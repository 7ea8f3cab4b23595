package types

import "github.com/google/uuid"

// RepositoryID identifies a registered repository
type RepositoryID string

// NewRepositoryID generates a new UUID v4 RepositoryID
func NewRepositoryID() RepositoryID {
	return RepositoryID(uuid.New().String())
}

func (x RepositoryID) String() string { return string(x) }

// DraftID identifies a release note draft
type DraftID string

// NewDraftID generates a new UUID v4 DraftID
func NewDraftID() DraftID {
	return DraftID(uuid.New().String())
}

func (x DraftID) String() string { return string(x) }

// RunID identifies a single pipeline run
type RunID string

// NewRunID generates a new UUID v4 RunID
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func (x RunID) String() string { return string(x) }

// RecordID is the stable external identity of a change record, such as
// "commit:<sha>" or "pr:<number>"
type RecordID string

func (x RecordID) String() string { return string(x) }
