package jobs

import (
	"sync"
	"time"
)

// Store holds the latest record per job id. It performs no I/O and triggers
// no notifications; callers sequence fanout themselves.
//
// An evicted terminal record leaves a tombstone behind so late deliveries
// for that id can still be recognized as belonging to a finished job.
type Store struct {
	mu         sync.RWMutex
	records    map[string]Record
	tombstones map[string]tombstone
}

type tombstone struct {
	status    Status
	evictedAt time.Time
}

func NewStore() *Store {
	return &Store{
		records:    make(map[string]Record),
		tombstones: make(map[string]tombstone),
	}
}

// Put inserts or overwrites the record for id, clearing any tombstone.
func (s *Store) Put(id string, rec Record) {
	s.mu.Lock()
	s.records[id] = rec
	delete(s.tombstones, id)
	s.mu.Unlock()
}

// Get returns the current record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	return rec, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Tombstone reports the terminal status of an evicted record.
func (s *Store) Tombstone(id string) (Status, bool) {
	s.mu.RLock()
	ts, ok := s.tombstones[id]
	s.mu.RUnlock()
	return ts.status, ok
}

// Tombstones returns how many evicted ids are still remembered.
func (s *Store) Tombstones() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tombstones)
}

// Evict replaces terminal records last updated before cutoff with tombstones
// stamped now, and returns the evicted ids. Non-terminal records are never
// evicted.
func (s *Store) Evict(cutoff, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, rec := range s.records {
		if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			s.tombstones[id] = tombstone{status: rec.Status, evictedAt: now}
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// PurgeTombstones forgets ids evicted before cutoff and returns how many.
func (s *Store) PurgeTombstones(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, ts := range s.tombstones {
		if ts.evictedAt.Before(cutoff) {
			delete(s.tombstones, id)
			n++
		}
	}
	return n
}
