package model

import (
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// DraftStatus is the approval status of a release note draft
type DraftStatus string

const (
	DraftStatusDraft    DraftStatus = "draft"
	DraftStatusEdited   DraftStatus = "edited"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible
func (s DraftStatus) IsTerminal() bool {
	return s == DraftStatusApproved || s == DraftStatusRejected
}

// Audience is the target reader of a summary
type Audience string

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

// Audiences lists all audiences
var Audiences = []Audience{AudienceInternal, AudienceExternal}

// IsValid reports whether a is a known audience
func (a Audience) IsValid() bool {
	return a == AudienceInternal || a == AudienceExternal
}

// DraftAction is a requested transition of the approval state machine
type DraftAction string

const (
	DraftActionEdit    DraftAction = "edit"
	DraftActionApprove DraftAction = "approve"
	DraftActionReject  DraftAction = "reject"
)

// draftTransitions is the single source of truth for allowed transitions
var draftTransitions = map[DraftAction]map[DraftStatus]DraftStatus{
	DraftActionEdit: {
		DraftStatusDraft:  DraftStatusEdited,
		DraftStatusEdited: DraftStatusEdited,
	},
	DraftActionApprove: {
		DraftStatusDraft:  DraftStatusApproved,
		DraftStatusEdited: DraftStatusApproved,
	},
	DraftActionReject: {
		DraftStatusDraft:  DraftStatusRejected,
		DraftStatusEdited: DraftStatusRejected,
	},
}

// DraftVersion is a prior text version kept in the edit history
type DraftVersion struct {
	Internal  string      `json:"internal"`
	External  string      `json:"external"`
	Status    DraftStatus `json:"status"`
	Editor    string      `json:"editor,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Draft is a pair of generated release notes awaiting approval
type Draft struct {
	ID              types.DraftID      `json:"id"`
	RepositoryID    types.RepositoryID `json:"repository_id"`
	Internal        string             `json:"internal"`
	External        string             `json:"external"`
	TemplateVersion string             `json:"template_version"`
	RecordIDs       []types.RecordID   `json:"record_ids"`
	Status          DraftStatus        `json:"status"`
	History         []DraftVersion     `json:"history,omitempty"`
	Active          bool               `json:"active"`
	RegeneratedFrom types.DraftID      `json:"regenerated_from,omitempty"`
	RegeneratedTo   types.DraftID      `json:"regenerated_to,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	PublishedAt     time.Time          `json:"published_at,omitzero"`
}

// Text returns the summary for the given audience
func (d *Draft) Text(a Audience) string {
	if a == AudienceExternal {
		return d.External
	}
	return d.Internal
}

// Clone returns a deep copy of the draft
func (d *Draft) Clone() *Draft {
	c := *d
	c.RecordIDs = slices.Clone(d.RecordIDs)
	c.History = slices.Clone(d.History)
	return &c
}

// EditRequest carries the replacement text of an edit transition
type EditRequest struct {
	Audience Audience
	Text     string
	Editor   string
}

// Apply performs a state machine transition in place. It is the only place where
// draft status changes; callers must not mutate Status directly.
func (d *Draft) Apply(action DraftAction, edit *EditRequest, now time.Time) error {
	if !d.Active {
		return goerr.Wrap(ErrInvalidTransition, "draft is inactive",
			goerr.V("draft_id", d.ID),
			goerr.V("action", action),
		)
	}

	next, ok := draftTransitions[action][d.Status]
	if !ok {
		return goerr.Wrap(ErrInvalidTransition, "transition not allowed",
			goerr.V("draft_id", d.ID),
			goerr.V("status", d.Status),
			goerr.V("action", action),
		)
	}

	if action == DraftActionEdit {
		if edit == nil || !edit.Audience.IsValid() {
			return goerr.Wrap(ErrInvalidArgument, "edit requires a valid audience",
				goerr.V("draft_id", d.ID))
		}
		d.History = append(d.History, DraftVersion{
			Internal:  d.Internal,
			External:  d.External,
			Status:    d.Status,
			Editor:    edit.Editor,
			CreatedAt: now,
		})
		switch edit.Audience {
		case AudienceInternal:
			d.Internal = edit.Text
		case AudienceExternal:
			d.External = edit.Text
		}
	}

	d.Status = next
	d.UpdatedAt = now
	return nil
}
