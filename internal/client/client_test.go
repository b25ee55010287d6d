package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/captions"
	"cutline/internal/gateway"
	"cutline/internal/httpapi"
	"cutline/internal/httpapi/handlers"
	"cutline/internal/jobs"
	"cutline/internal/pkg/errors"
	"cutline/internal/pkg/logger"
	"cutline/internal/push"
)

func newAPI(t *testing.T) (*jobs.Tracker, *httptest.Server) {
	t.Helper()
	tr := jobs.NewTracker(jobs.Config{GraceWindow: 20 * time.Millisecond, Log: logger.Discard()})
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{Tracker: tr, Stream: push.Options{Heartbeat: 10 * time.Millisecond}},
		Log:      logger.Discard(),
	}))
	t.Cleanup(srv.Close)
	return tr, srv
}

func newClient(url string) *Client {
	return New(url, WithLogger(logger.Discard()), WithPollInterval(10*time.Millisecond))
}

func progress(v int) *int { return &v }

// recorder collects records delivered to a callback.
type recorder struct {
	mu   sync.Mutex
	seen []jobs.Record
}

func (r *recorder) add(rec jobs.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, rec)
}

func (r *recorder) records() []jobs.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Record(nil), r.seen...)
}

func TestStatusAndNotify(t *testing.T) {
	_, srv := newAPI(t)
	c := newClient(srv.URL)
	ctx := context.Background()

	_, err := c.Status(ctx, "J2")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	applied, err := c.Notify(ctx, jobs.Update{JobID: "J1", Status: jobs.StatusProcessing, Progress: progress(25)})
	require.NoError(t, err)
	assert.True(t, applied)

	rec, err := c.Status(ctx, "J1")
	require.NoError(t, err)
	assert.Equal(t, 25, rec.Progress)

	_, err = c.Notify(ctx, jobs.Update{JobID: "J1", Status: "bogus"})
	assert.True(t, errors.IsValidation(err))
}

func TestPollUntilTerminal(t *testing.T) {
	tr, srv := newAPI(t)
	c := newClient(srv.URL)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = tr.Ingest(jobs.Update{JobID: "J1", Status: jobs.StatusProcessing, Progress: progress(50)})
		time.Sleep(30 * time.Millisecond)
		_, _ = tr.Ingest(jobs.Update{JobID: "J1", Status: jobs.StatusCompleted, VideoURL: "https://x/y.mp4"})
	}()

	var rec recorder
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := c.Poll(ctx, "J1", rec.add)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, final.Status)
	assert.Equal(t, "https://x/y.mp4", final.VideoURL)

	seen := rec.records()
	require.NotEmpty(t, seen)
	assert.Equal(t, final, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i], "only changes are reported")
	}
}

func TestPollHonorsContext(t *testing.T) {
	_, srv := newAPI(t)
	c := newClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Poll(ctx, "never", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamSkipsHeartbeats(t *testing.T) {
	tr, srv := newAPI(t)
	c := newClient(srv.URL)
	_, err := tr.Ingest(jobs.Update{JobID: "J1", Status: jobs.StatusPending})
	require.NoError(t, err)

	go func() {
		assert.Eventually(t, func() bool { return tr.Subscribers("J1") == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond) // let a few heartbeats through
		_, _ = tr.Ingest(jobs.Update{JobID: "J1", Status: jobs.StatusFailed, Error: "disk full"})
	}()

	var rec recorder
	final, err := c.Stream(context.Background(), "J1", rec.add)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, final.Status)
	assert.Equal(t, "disk full", final.Error)

	seen := rec.records()
	require.Len(t, seen, 2)
	assert.Equal(t, jobs.StatusPending, seen[0].Status)
}

func TestStreamEndedEarly(t *testing.T) {
	tr, srv := newAPI(t)
	c := newClient(srv.URL)

	go func() {
		assert.Eventually(t, func() bool { return tr.Subscribers("J1") == 1 }, time.Second, 5*time.Millisecond)
		tr.Close()
	}()

	_, err := c.Stream(context.Background(), "J1", nil)
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestWatchFallsBackToPoll(t *testing.T) {
	done := jobs.Record{ID: "J1", Status: jobs.StatusCompleted, Progress: 100}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/render/stream/") {
			http.Error(w, `{"error":{"code":"UNAVAILABLE","message":"streams disabled"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"J1","status":"completed","progress":100,"updatedAt":"0001-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	final, err := newClient(srv.URL).Watch(context.Background(), "J1", nil)
	require.NoError(t, err)
	assert.Equal(t, done.Status, final.Status)
	assert.Equal(t, 100, final.Progress)
}

func TestWatchFallbackSkipsLastStreamedRecord(t *testing.T) {
	const processing = `{"id":"J1","status":"processing","progress":40,"updatedAt":"2026-01-02T03:04:05Z"}`
	const completed = `{"id":"J1","status":"completed","progress":100,"updatedAt":"2026-01-02T03:05:00Z"}`

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/render/stream/") {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("data: " + processing + "\n\n"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(processing))
			return
		}
		_, _ = w.Write([]byte(completed))
	}))
	defer srv.Close()

	var rec recorder
	final, err := newClient(srv.URL).Watch(context.Background(), "J1", rec.add)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, final.Status)

	seen := rec.records()
	require.Len(t, seen, 2, "the record already streamed must not be delivered again")
	assert.Equal(t, jobs.StatusProcessing, seen[0].Status)
	assert.Equal(t, jobs.StatusCompleted, seen[1].Status)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestExport(t *testing.T) {
	_, srv := newAPI(t)
	c := newClient(srv.URL)

	out, err := c.Export(context.Background(), []captions.Caption{{ID: "c1", Start: 1, End: 2, Text: "hi"}}, captions.FormatVTT)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n", out)
}

func TestSubmitWithoutGateway(t *testing.T) {
	_, srv := newAPI(t)

	_, err := newClient(srv.URL).Submit(context.Background(), gateway.RenderRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestReadEvents(t *testing.T) {
	body := ": keep-alive\n\n" +
		"data: {\"a\":1}\n\n" +
		"event: ignored\n" +
		"data: line1\n" +
		"data: line2\n\n" +
		": keep-alive\n\n"

	var got []string
	err := readEvents(strings.NewReader(body), func(data []byte) error {
		got = append(got, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, "line1\nline2"}, got)
}
