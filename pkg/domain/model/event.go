package model

import (
	"slices"
	"strings"
	"time"
)

// Cursor is an opaque provider position marker. The empty cursor starts the
// provider's default lookback window.
type Cursor string

// RawEvent is a version-control signal as returned by a provider
type RawEvent struct {
	ExternalID string // commit SHA, PR number, issue number
	Kind       RawKind
	Title      string
	Body       string
	Author     Author
	Timestamp  time.Time
	URL        string
	Files      []string
}

// FetchRequest is a single page request to a provider
type FetchRequest struct {
	Repository *Repository
	Cursor     Cursor
}

// FetchResult is a single page of provider events
type FetchResult struct {
	Events []*RawEvent
	Next   Cursor
	Done   bool
}

// EventBatch is one page yielded by the extractor together with the cursor that
// must be persisted once the batch is recorded
type EventBatch struct {
	Records []*ChangeRecord
	Next    Cursor
	Done    bool
}

var docExtensions = []string{".md", ".markdown", ".rst", ".adoc", ".txt"}

// IsDocumentationOnly reports whether every file of a change is documentation.
// A change without files is not documentation.
func IsDocumentationOnly(files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		lower := strings.ToLower(f)
		if strings.HasPrefix(lower, "docs/") || strings.Contains(lower, "/docs/") {
			continue
		}
		if !slices.ContainsFunc(docExtensions, func(ext string) bool { return strings.HasSuffix(lower, ext) }) {
			return false
		}
	}
	return true
}
