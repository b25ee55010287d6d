package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/pkg/logger"
)

func newTestRegistry(grace time.Duration, queue int) *Registry {
	return NewRegistry(RegistryConfig{GraceWindow: grace, QueueSize: queue, Log: logger.Discard()})
}

// drain reads every record until the subscription's channel is closed.
func drain(t *testing.T, sub *Subscription, timeout time.Duration) []Record {
	t.Helper()
	var got []Record
	deadline := time.After(timeout)
	for {
		select {
		case rec, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, rec)
		case <-deadline:
			t.Fatalf("subscription for %s not closed after %v", sub.JobID(), timeout)
			return got
		}
	}
}

func TestRegistryInitialRecord(t *testing.T) {
	r := newTestRegistry(time.Minute, 4)

	initial := Record{ID: "J1", Status: StatusProcessing, Progress: 40}
	sub := r.Subscribe("J1", &initial)
	defer sub.Close()

	select {
	case rec := <-sub.Events():
		assert.Equal(t, initial, rec)
	default:
		t.Fatal("initial record was not queued")
	}

	empty := r.Subscribe("J1", nil)
	defer empty.Close()
	select {
	case rec := <-empty.Events():
		t.Fatalf("unexpected record %+v", rec)
	default:
	}
	assert.Equal(t, 2, r.Count("J1"))
}

func TestRegistryNotifyOnlyMatchingJob(t *testing.T) {
	r := newTestRegistry(time.Minute, 4)
	a := r.Subscribe("J1", nil)
	b := r.Subscribe("J2", nil)
	defer a.Close()
	defer b.Close()

	r.Notify("J1", Record{ID: "J1", Status: StatusProcessing})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 0)
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	r := newTestRegistry(time.Minute, 4)
	sub := r.Subscribe("J1", nil)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, ReasonUnsubscribed, sub.Reason())
	assert.Equal(t, 0, r.Count("J1"))
	assert.Equal(t, 0, r.Jobs(), "empty observer sets are pruned")

	// notifying after close must not panic on the closed channel
	r.Notify("J1", Record{ID: "J1", Status: StatusProcessing})
}

func TestRegistryOverflowDropsOnlySlowObserver(t *testing.T) {
	r := newTestRegistry(time.Minute, 2)
	slow := r.Subscribe("J1", nil)
	fast := r.Subscribe("J1", nil)
	defer fast.Close()

	for p := 10; p <= 30; p += 10 {
		r.Notify("J1", Record{ID: "J1", Status: StatusProcessing, Progress: p})
		<-fast.Events()
	}

	got := drain(t, slow, time.Second)
	assert.Len(t, got, 2, "buffered records are still readable after overflow")
	assert.Equal(t, ReasonOverflow, slow.Reason())
	assert.Equal(t, 1, r.Count("J1"))
	assert.Empty(t, fast.Reason())
}

func TestRegistryTerminalGraceWindow(t *testing.T) {
	grace := 30 * time.Millisecond
	r := newTestRegistry(grace, 4)
	sub := r.Subscribe("J1", nil)

	start := time.Now()
	r.Notify("J1", Record{ID: "J1", Status: StatusCompleted, Progress: 100})

	got := drain(t, sub, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, StatusCompleted, got[0].Status)
	assert.GreaterOrEqual(t, time.Since(start), grace)
	assert.Equal(t, ReasonTerminal, sub.Reason())
	assert.Equal(t, 0, r.Jobs())
}

func TestRegistryTerminalInitialRecordArmsGrace(t *testing.T) {
	r := newTestRegistry(20*time.Millisecond, 4)
	done := Record{ID: "J1", Status: StatusFailed, Error: "boom"}

	sub := r.Subscribe("J1", &done)

	got := drain(t, sub, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, ReasonTerminal, sub.Reason())
}

func TestRegistryCloseAll(t *testing.T) {
	r := newTestRegistry(time.Minute, 4)
	subs := []*Subscription{
		r.Subscribe("J1", nil),
		r.Subscribe("J1", nil),
		r.Subscribe("J2", nil),
	}
	subs[1].Close()

	n := r.CloseAll(ReasonShutdown)

	assert.Equal(t, 2, n)
	assert.Equal(t, 0, r.Jobs())
	assert.Equal(t, ReasonUnsubscribed, subs[1].Reason())
	assert.Equal(t, ReasonShutdown, subs[0].Reason())
	assert.Equal(t, ReasonShutdown, subs[2].Reason())
}

func TestRegistrySubscribeAfterCloseAll(t *testing.T) {
	r := newTestRegistry(time.Minute, 4)
	r.CloseAll(ReasonShutdown)

	initial := Record{ID: "J1", Status: StatusProcessing}
	sub := r.Subscribe("J1", &initial)

	assert.Empty(t, drain(t, sub, 100*time.Millisecond))
	assert.Equal(t, ReasonShutdown, sub.Reason())
	assert.Equal(t, 0, r.Jobs())

	r.Notify("J1", Record{ID: "J1", Status: StatusCompleted})
	sub.Close()
	assert.Equal(t, ReasonShutdown, sub.Reason(), "closing a refused subscription keeps its reason")
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	assert.Equal(t, DefaultGraceWindow, r.grace)
	assert.Equal(t, DefaultQueueSize, r.queueSize)
}
