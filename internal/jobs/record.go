// Package jobs tracks the lifecycle of render jobs reported by the external
// render worker and fans every accepted status change out to live observers.
package jobs

import (
	"strings"
	"time"

	"cutline/internal/pkg/errors"
)

// Status is the progress state of a render job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the latest known state of one job.
type Record struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the record has reached completed or failed.
func (r Record) Terminal() bool {
	return r.Status.Terminal()
}

// Update is a status event delivered by the render worker webhook.
type Update struct {
	JobID    string `json:"jobId"`
	Status   Status `json:"status"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Validate checks the update before it is allowed to touch any state.
func (u Update) Validate() error {
	if strings.TrimSpace(u.JobID) == "" {
		return errors.ValidationField("jobId", "jobId is required")
	}
	if !u.Status.Valid() {
		return errors.ValidationField("status", "status must be one of pending, processing, completed, failed").
			WithField("value", string(u.Status))
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return errors.ValidationField("progress", "progress must be between 0 and 100")
	}
	return nil
}

// Apply merges u into prev. The boolean is false when prev is terminal, in
// which case prev is returned untouched.
func Apply(prev Record, exists bool, u Update, now time.Time) (Record, bool) {
	if exists && prev.Terminal() {
		return prev, false
	}

	next := Record{
		ID:        strings.TrimSpace(u.JobID),
		Status:    u.Status,
		Message:   u.Message,
		UpdatedAt: now.UTC(),
	}

	switch {
	case u.Status == StatusCompleted:
		next.Progress = 100
	case u.Progress != nil:
		next.Progress = *u.Progress
	}
	if exists && next.Progress < prev.Progress {
		next.Progress = prev.Progress
	}

	switch u.Status {
	case StatusCompleted:
		next.VideoURL = u.VideoURL
	case StatusFailed:
		next.Error = u.Error
	}

	return next, true
}
