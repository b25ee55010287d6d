package relay

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/jobs"
	"cutline/internal/pkg/logger"
)

func progress(v int) *int { return &v }

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		Origin: "api-a",
		Update: jobs.Update{JobID: "J1", Status: jobs.StatusProcessing, Progress: progress(40), Message: "encoding"},
		SentAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
	payload, err := encode(in)
	require.NoError(t, err)

	out, err := decode(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeRejectsMissingOrigin(t *testing.T) {
	_, err := decode(`{"update":{"jobId":"J1","status":"pending"}}`)
	assert.Error(t, err)

	_, err = decode(`not json`)
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	tr := jobs.NewTracker(jobs.Config{Log: logger.Discard()})
	r := New(nil, "cutline:test", "api-a", logger.Discard())

	own, _ := encode(Envelope{Origin: "api-a", Update: jobs.Update{JobID: "J1", Status: jobs.StatusPending}})
	assert.False(t, r.apply(tr, own), "own messages are skipped")
	_, ok := tr.Status("J1")
	assert.False(t, ok)

	peer, _ := encode(Envelope{Origin: "api-b", Update: jobs.Update{JobID: "J1", Status: jobs.StatusProcessing, Progress: progress(20)}})
	assert.True(t, r.apply(tr, peer))
	rec, ok := tr.Status("J1")
	require.True(t, ok)
	assert.Equal(t, 20, rec.Progress)

	invalid, _ := encode(Envelope{Origin: "api-b", Update: jobs.Update{JobID: "J1", Status: "bogus"}})
	assert.False(t, r.apply(tr, invalid))

	assert.False(t, r.apply(tr, "{"))
}

// TestRelayRedis needs a reachable Redis at TEST_REDIS_ADDR.
func TestRelayRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	channel := "cutline:test:" + uuid.NewString()
	a := New(rdb, channel, "api-a", logger.Discard())
	b := New(rdb, channel, "api-b", logger.Discard())
	trB := jobs.NewTracker(jobs.Config{Log: logger.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, trB) }()

	require.Eventually(t, func() bool {
		_ = a.Publish(ctx, jobs.Update{JobID: "J1", Status: jobs.StatusCompleted, VideoURL: "https://x/y.mp4"})
		rec, ok := trB.Status("J1")
		return ok && rec.Status == jobs.StatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
