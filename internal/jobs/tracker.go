package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"cutline/internal/pkg/logger"
)

// lockStripes is the number of mutexes serializing ingest and subscribe per
// job id. Two ids may share a stripe; one id always maps to the same stripe.
const lockStripes = 64

// Config configures a Tracker.
type Config struct {
	GraceWindow time.Duration
	QueueSize   int
	Log         *logger.Logger
	// Now overrides the merge clock. Defaults to time.Now.
	Now func() time.Time
}

// Result describes the outcome of one ingest.
type Result struct {
	Record  Record
	Applied bool
}

// Stats is a point-in-time view of tracker occupancy.
type Stats struct {
	Records        int `json:"records"`
	Tombstones     int `json:"tombstones"`
	SubscribedJobs int `json:"subscribed_jobs"`
}

// Tracker owns the record store and the subscription registry. All mutation
// of either goes through it.
type Tracker struct {
	store    *Store
	registry *Registry
	stripes  [lockStripes]sync.Mutex
	log      *logger.Logger
	now      func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store: NewStore(),
		registry: NewRegistry(RegistryConfig{
			GraceWindow: cfg.GraceWindow,
			QueueSize:   cfg.QueueSize,
			Log:         log,
		}),
		log: log.WithComponent("jobs.tracker"),
		now: now,
	}
}

func (t *Tracker) stripe(jobID string) *sync.Mutex {
	return &t.stripes[xxhash.Sum64String(jobID)%lockStripes]
}

// Ingest validates u, merges it into the stored record and notifies every
// live subscription before returning. Updates for a terminal job are
// accepted without error and leave the record untouched.
func (t *Tracker) Ingest(u Update) (Result, error) {
	if err := u.Validate(); err != nil {
		return Result{}, err
	}
	id := strings.TrimSpace(u.JobID)
	u.JobID = id
	log := t.log.WithJobID(id)

	mu := t.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	prev, exists := t.store.Get(id)
	if !exists {
		if status, ok := t.store.Tombstone(id); ok {
			log.Warn("ignoring update for evicted terminal job",
				"evicted_status", string(status),
				"incoming_status", string(u.Status),
			)
			return Result{Record: Record{ID: id, Status: status}}, nil
		}
	}
	next, applied := Apply(prev, exists, u, t.now())
	if !applied {
		log.Warn("ignoring update for terminal job",
			"current_status", string(prev.Status),
			"incoming_status", string(u.Status),
		)
		return Result{Record: prev}, nil
	}

	t.store.Put(id, next)
	t.registry.Notify(id, next)

	log.Debug("status merged",
		"status", string(next.Status),
		"progress", next.Progress,
	)
	return Result{Record: next, Applied: true}, nil
}

// Subscribe registers an observer for jobID. If a record already exists it is
// the first value delivered on the subscription.
func (t *Tracker) Subscribe(jobID string) *Subscription {
	mu := t.stripe(jobID)
	mu.Lock()
	defer mu.Unlock()

	var initial *Record
	if rec, ok := t.store.Get(jobID); ok {
		initial = &rec
	}
	return t.registry.Subscribe(jobID, initial)
}

// Status returns the current record for jobID.
func (t *Tracker) Status(jobID string) (Record, bool) {
	return t.store.Get(jobID)
}

// Subscribers returns the number of live subscriptions for jobID.
func (t *Tracker) Subscribers(jobID string) int {
	return t.registry.Count(jobID)
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Records:        t.store.Len(),
		Tombstones:     t.store.Tombstones(),
		SubscribedJobs: t.registry.Jobs(),
	}
}

// Evict removes terminal records older than ttl and returns how many. Each
// evicted id is remembered for another ttl so late updates for it are still
// ignored.
func (t *Tracker) Evict(ttl time.Duration) int {
	now := t.now()
	evicted := t.store.Evict(now.Add(-ttl), now)
	for _, id := range evicted {
		t.log.WithJobID(id).Debug("evicted terminal record")
	}
	if n := t.store.PurgeTombstones(now.Add(-ttl)); n > 0 {
		t.log.Debug("purged tombstones", "count", n)
	}
	return len(evicted)
}

// RunJanitor evicts expired terminal records every interval until ctx is
// done. A non-positive ttl disables eviction.
func (t *Tracker) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Evict(ttl); n > 0 {
				t.log.Info("janitor sweep", "evicted", n, "remaining", t.store.Len())
			}
		}
	}
}

// Close releases every live subscription.
func (t *Tracker) Close() {
	n := t.registry.CloseAll(ReasonShutdown)
	t.log.Info("tracker closed", "subscriptions", n)
}
