package model

import (
	"time"

	"github.com/m-mizutani/relnote/pkg/domain/types"
)

// RunStatus is the lifecycle status of a pipeline run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run has completed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Run is one end-to-end execution of the pipeline for one repository and trigger
type Run struct {
	ID           types.RunID        `json:"id"`
	RepositoryID types.RepositoryID `json:"repository_id"`
	Trigger      string             `json:"trigger"`
	Status       RunStatus          `json:"status"`
	Reason       string             `json:"reason,omitempty"`
	DraftID      types.DraftID      `json:"draft_id,omitempty"`
	Records      int                `json:"records"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    time.Time          `json:"started_at,omitzero"`
	FinishedAt   time.Time          `json:"finished_at,omitzero"`
}

// NewRun creates a queued run
func NewRun(repoID types.RepositoryID, trigger string, now time.Time) *Run {
	return &Run{
		ID:           types.NewRunID(),
		RepositoryID: repoID,
		Trigger:      trigger,
		Status:       RunStatusQueued,
		CreatedAt:    now,
	}
}

// Succeed marks the run as succeeded with a human-readable reason
func (r *Run) Succeed(reason string, now time.Time) {
	r.Status = RunStatusSucceeded
	r.Reason = reason
	r.FinishedAt = now
}

// Fail marks the run as failed with the error as reason
func (r *Run) Fail(err error, now time.Time) {
	r.Status = RunStatusFailed
	r.Reason = err.Error()
	r.FinishedAt = now
}
