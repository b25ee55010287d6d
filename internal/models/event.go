package models

import "time"

// RenderEvent is one journaled webhook delivery, whether or not it changed
// the job's record.
type RenderEvent struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Progress   *int      `json:"progress,omitempty"`
	Message    string    `json:"message,omitempty"`
	VideoURL   string    `json:"video_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Applied    bool      `json:"applied"`
	Origin     string    `json:"origin"`
	ReceivedAt time.Time `json:"received_at"`
}
