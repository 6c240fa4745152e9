package password

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts []ChangeAttempt
	history  []HistoryEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordAttempt(_ context.Context, attempt ChangeAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *MemoryStore) CountFailedAttempts(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	for _, a := range s.attempts {
		if a.UserID == userID && !a.Success && a.AttemptedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountChanges(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	for _, h := range s.history {
		if h.UserID == userID && h.ChangedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListRecentHashes(_ context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hashes []string
	for _, h := range s.history {
		if h.UserID == userID && h.ChangedAt.After(since) {
			hashes = append(hashes, h.PasswordHash)
		}
	}
	return hashes, nil
}

func (s *MemoryStore) InsertHistory(_ context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

// Attempts returns recorded attempts for userID. Test helper.
func (s *MemoryStore) Attempts(userID uuid.UUID) []ChangeAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ChangeAttempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}
