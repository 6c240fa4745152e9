package lockout

import (
	"context"
	"sync"
	"time"
)

type failureRow struct {
	action string
	meta   FailureMeta
	at     time.Time
}

// MemoryStore is an in-process Store. It backs tests and single-node
// development setups; production uses the Postgres store so that counters
// survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	failures map[string][]failureRow
	lockouts []Lockout
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{failures: make(map[string][]failureRow)}
}

func (s *MemoryStore) RecordFailure(_ context.Context, identity, action string, meta FailureMeta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[identity] = append(s.failures[identity], failureRow{action: action, meta: meta, at: at})
	return nil
}

func (s *MemoryStore) CountFailures(_ context.Context, identity, action string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.failures[identity] {
		if row.action == action && row.at.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) InsertLockout(_ context.Context, lockout Lockout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockouts = append(s.lockouts, lockout)
	return nil
}

func (s *MemoryStore) ActiveLockout(_ context.Context, identity string, now time.Time) (*Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Lockout
	for i := range s.lockouts {
		lock := s.lockouts[i]
		if lock.Identity != identity || !lock.LockedUntil.After(now) {
			continue
		}
		if latest == nil || lock.LockedUntil.After(latest.LockedUntil) {
			latest = &lock
		}
	}
	return latest, nil
}
