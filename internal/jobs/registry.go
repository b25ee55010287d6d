package jobs

import (
	"sync"
	"time"

	"cutline/internal/pkg/logger"
)

const (
	// DefaultGraceWindow is how long a subscription stays open after it
	// received a terminal record.
	DefaultGraceWindow = time.Second
	// DefaultQueueSize bounds the per-subscription outbound queue.
	DefaultQueueSize = 64
)

// CloseReason records why a subscription stopped receiving records.
type CloseReason string

const (
	ReasonUnsubscribed CloseReason = "unsubscribed"
	ReasonTerminal     CloseReason = "terminal"
	ReasonOverflow     CloseReason = "overflow"
	ReasonShutdown     CloseReason = "shutdown"
)

// Subscription is one observer bound to one job. Records arrive on Events in
// notify order; the channel is closed once the subscription is released.
type Subscription struct {
	jobID  string
	events chan Record
	reg    *Registry

	// guarded by reg.mu
	closed bool
	reason CloseReason
	grace  *time.Timer
}

func (s *Subscription) JobID() string { return s.jobID }

// Events returns the receive side of the bounded outbound queue.
func (s *Subscription) Events() <-chan Record { return s.events }

// Close releases the subscription. Calling it more than once, or after the
// registry already released it, is a no-op.
func (s *Subscription) Close() {
	s.reg.remove(s, ReasonUnsubscribed)
}

// Reason is empty while the subscription is live.
func (s *Subscription) Reason() CloseReason {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.reason
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	GraceWindow time.Duration
	QueueSize   int
	Log         *logger.Logger
}

// Registry owns the per-job observer sets. Notify never blocks on an
// observer: records are handed to each subscription's bounded queue and a
// full queue drops only that subscription.
type Registry struct {
	mu        sync.Mutex
	subs      map[string]map[*Subscription]struct{}
	closed    bool
	grace     time.Duration
	queueSize int
	log       *logger.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Registry{
		subs:      make(map[string]map[*Subscription]struct{}),
		grace:     cfg.GraceWindow,
		queueSize: cfg.QueueSize,
		log:       log.WithComponent("jobs.registry"),
	}
}

// Subscribe registers a new observer for jobID. When initial is non-nil it is
// queued before any later notification. After CloseAll the returned
// subscription is already closed with ReasonShutdown.
func (r *Registry) Subscribe(jobID string, initial *Record) *Subscription {
	sub := &Subscription{
		jobID:  jobID,
		events: make(chan Record, r.queueSize),
		reg:    r,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		sub.closed = true
		sub.reason = ReasonShutdown
		close(sub.events)
		r.log.WithJobID(jobID).Debug("subscription refused after shutdown")
		return sub
	}

	set, ok := r.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[jobID] = set
	}
	set[sub] = struct{}{}

	if initial != nil {
		r.deliverLocked(sub, *initial)
	}
	return sub
}

// Notify hands rec to every live subscription for jobID.
func (r *Registry) Notify(jobID string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.subs[jobID] {
		r.deliverLocked(sub, rec)
	}
}

// Count returns the number of live subscriptions for jobID.
func (r *Registry) Count(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[jobID])
}

// Jobs returns the number of jobs with at least one live subscription.
func (r *Registry) Jobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// CloseAll releases every subscription with the given reason. Later
// subscriptions are refused.
func (r *Registry) CloseAll(reason CloseReason) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	n := 0
	for _, set := range r.subs {
		for sub := range set {
			if r.removeLocked(sub, reason) {
				n++
			}
		}
	}
	return n
}

func (r *Registry) deliverLocked(sub *Subscription, rec Record) {
	if sub.closed {
		return
	}

	select {
	case sub.events <- rec:
	default:
		r.log.WithJobID(sub.jobID).Warn("observer queue full, dropping subscription",
			"queue_size", r.queueSize,
			"status", string(rec.Status),
		)
		r.removeLocked(sub, ReasonOverflow)
		return
	}

	if rec.Terminal() && sub.grace == nil {
		sub.grace = time.AfterFunc(r.grace, func() {
			r.remove(sub, ReasonTerminal)
		})
	}
}

func (r *Registry) remove(sub *Subscription, reason CloseReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sub, reason)
}

func (r *Registry) removeLocked(sub *Subscription, reason CloseReason) bool {
	if sub.closed {
		return false
	}
	sub.closed = true
	sub.reason = reason
	if sub.grace != nil {
		sub.grace.Stop()
	}
	close(sub.events)

	if set, ok := r.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sub.jobID)
		}
	}

	r.log.WithJobID(sub.jobID).Debug("subscription closed", "reason", string(reason))
	return true
}
