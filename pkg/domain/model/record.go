package model

import (
	"slices"
	"time"

	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// RawKind is the kind of version-control signal a record was built from
type RawKind string

const (
	RawKindCommit RawKind = "commit"
	RawKindPR     RawKind = "pr"
	RawKindDoc    RawKind = "doc"
	RawKindIssue  RawKind = "issue"
)

// Priority orders kinds when choosing a representative record; lower wins
func (k RawKind) Priority() int {
	switch k {
	case RawKindPR:
		return 0
	case RawKindCommit:
		return 1
	case RawKindIssue:
		return 2
	case RawKindDoc:
		return 3
	default:
		return 4
	}
}

// ClassifiedBy records which stage of the classification engine assigned the category
type ClassifiedBy string

const (
	ClassifiedByRule     ClassifiedBy = "rule"
	ClassifiedByModel    ClassifiedBy = "model"
	ClassifiedByFallback ClassifiedBy = "fallback"
)

// Author is the authorship of a change
type Author struct {
	Name  string
	Email string
	Login string
}

// SourceRef points at one provider signal that contributed to a record
type SourceRef struct {
	Kind       RawKind
	ExternalID string
	URL        string
}

// ChangeRecord is the normalized form of one change. The category is assigned by
// the classification engine; after enrichment only cross references may be added.
type ChangeRecord struct {
	ID             types.RecordID
	RepositoryID   types.RepositoryID
	Kind           RawKind
	Text           string
	Author         Author
	Timestamp      time.Time
	Category       Category
	Fingerprint    string
	ClassifiedBy   ClassifiedBy
	ClassifiedHash string
	Sources        []SourceRef
	Files          []string
}

// Clone returns a deep copy of the record
func (r *ChangeRecord) Clone() *ChangeRecord {
	c := *r
	c.Sources = slices.Clone(r.Sources)
	c.Files = slices.Clone(r.Files)
	return &c
}

// HasSource reports whether ref is already part of the record's sources
func (r *ChangeRecord) HasSource(ref SourceRef) bool {
	for _, s := range r.Sources {
		if s.Kind == ref.Kind && s.ExternalID == ref.ExternalID {
			return true
		}
	}
	return false
}

// CrossReference is a resolved (or broken) reference to an issue or PR found in record text
type CrossReference struct {
	ID            string
	Number        int
	Title         string
	URL           string
	IsPullRequest bool
	Broken        bool
	Reason        string
}

// EnrichedRecord is a classified representative record with cross references attached
type EnrichedRecord struct {
	ChangeRecord
	CrossRefs []CrossReference
	Relevance float64
	// DraftID is set once the record has been summarized into a draft
	DraftID types.DraftID
}

// Clone returns a deep copy of the enriched record
func (r *EnrichedRecord) Clone() *EnrichedRecord {
	c := &EnrichedRecord{
		ChangeRecord: *r.ChangeRecord.Clone(),
		CrossRefs:    slices.Clone(r.CrossRefs),
		Relevance:    r.Relevance,
		DraftID:      r.DraftID,
	}
	return c
}

// CategoriesOf returns the distinct categories of records in rendering order
func CategoriesOf(records []*EnrichedRecord) []Category {
	seen := make(map[Category]bool)
	for _, r := range records {
		seen[r.Category] = true
	}
	var out []Category
	for _, c := range Categories {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// NormalizeTime converts t to the canonical representation: UTC with second precision
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
