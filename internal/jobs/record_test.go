package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		valid    bool
		terminal bool
	}{
		{StatusPending, true, false},
		{StatusProcessing, true, false},
		{StatusCompleted, true, true},
		{StatusFailed, true, true},
		{Status("queued"), false, false},
		{Status(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestUpdateValidate(t *testing.T) {
	tests := []struct {
		name  string
		u     Update
		field string
	}{
		{"missing job id", Update{Status: StatusPending}, "jobId"},
		{"blank job id", Update{JobID: "   ", Status: StatusPending}, "jobId"},
		{"unknown status", Update{JobID: "J1", Status: "done"}, "status"},
		{"negative progress", Update{JobID: "J1", Status: StatusProcessing, Progress: intPtr(-1)}, "progress"},
		{"progress over 100", Update{JobID: "J1", Status: StatusProcessing, Progress: intPtr(101)}, "progress"},
		{"valid", Update{JobID: "J1", Status: StatusProcessing, Progress: intPtr(40)}, ""},
		{"valid without progress", Update{JobID: "J1", Status: StatusCompleted}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.u.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	t.Run("first update defaults progress to zero", func(t *testing.T) {
		rec, applied := Apply(Record{}, false, Update{JobID: "J1", Status: StatusPending}, now)
		require.True(t, applied)
		assert.Equal(t, "J1", rec.ID)
		assert.Equal(t, StatusPending, rec.Status)
		assert.Equal(t, 0, rec.Progress)
		assert.Equal(t, now, rec.UpdatedAt)
	})

	t.Run("completed forces progress to 100", func(t *testing.T) {
		rec, applied := Apply(Record{}, false, Update{JobID: "J1", Status: StatusCompleted, Progress: intPtr(80), VideoURL: "https://x/y.mp4"}, now)
		require.True(t, applied)
		assert.Equal(t, 100, rec.Progress)
		assert.Equal(t, "https://x/y.mp4", rec.VideoURL)
	})

	t.Run("progress never decreases while non-terminal", func(t *testing.T) {
		prev := Record{ID: "J1", Status: StatusProcessing, Progress: 60}
		rec, applied := Apply(prev, true, Update{JobID: "J1", Status: StatusProcessing, Progress: intPtr(30)}, now)
		require.True(t, applied)
		assert.Equal(t, 60, rec.Progress)

		rec, _ = Apply(prev, true, Update{JobID: "J1", Status: StatusProcessing, Message: "encoding"}, now)
		assert.Equal(t, 60, rec.Progress)
		assert.Equal(t, "encoding", rec.Message)
	})

	t.Run("status regression is last write wins", func(t *testing.T) {
		prev := Record{ID: "J1", Status: StatusProcessing, Progress: 40}
		rec, applied := Apply(prev, true, Update{JobID: "J1", Status: StatusPending}, now)
		require.True(t, applied)
		assert.Equal(t, StatusPending, rec.Status)
	})

	t.Run("video url only kept for completed", func(t *testing.T) {
		rec, _ := Apply(Record{}, false, Update{JobID: "J1", Status: StatusProcessing, VideoURL: "https://x/y.mp4", Error: "nope"}, now)
		assert.Empty(t, rec.VideoURL)
		assert.Empty(t, rec.Error)
	})

	t.Run("error only kept for failed", func(t *testing.T) {
		rec, _ := Apply(Record{}, false, Update{JobID: "J1", Status: StatusFailed, Error: "ffmpeg exited 1", VideoURL: "https://x/y.mp4"}, now)
		assert.Equal(t, "ffmpeg exited 1", rec.Error)
		assert.Empty(t, rec.VideoURL)
		assert.Equal(t, 0, rec.Progress)
	})

	t.Run("terminal record is immutable", func(t *testing.T) {
		prev := Record{ID: "J1", Status: StatusCompleted, Progress: 100, VideoURL: "https://x/y.mp4", UpdatedAt: now}
		for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
			rec, applied := Apply(prev, true, Update{JobID: "J1", Status: s, VideoURL: "https://x/other.mp4"}, now.Add(time.Minute))
			assert.False(t, applied)
			assert.Equal(t, prev, rec)
		}
	})
}
