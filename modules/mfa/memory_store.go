package mfa

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[uuid.UUID]Settings
	usage    map[uuid.UUID][]BackupCodeUsage
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[uuid.UUID]Settings),
		usage:    make(map[uuid.UUID][]BackupCodeUsage),
	}
}

func (s *MemoryStore) GetSettings(_ context.Context, userID uuid.UUID) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[userID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	out := settings
	out.BackupCodeHashes = slices.Clone(settings.BackupCodeHashes)
	return &out, nil
}

func (s *MemoryStore) UpsertSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.BackupCodeHashes = slices.Clone(settings.BackupCodeHashes)
	s.settings[settings.UserID] = settings
	return nil
}

func (s *MemoryStore) DisableSettings(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.settings[userID]
	if !ok {
		return nil
	}
	settings.Enabled = false
	settings.TOTPSecret = ""
	settings.BackupCodeHashes = nil
	settings.UpdatedAt = at
	s.settings[userID] = settings
	return nil
}

func (s *MemoryStore) ListUsedCodeHashes(_ context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]string, 0, len(s.usage[userID]))
	for _, u := range s.usage[userID] {
		hashes = append(hashes, u.CodeHash)
	}
	return hashes, nil
}

func (s *MemoryStore) InsertUsage(_ context.Context, usage BackupCodeUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usage.UserID] = append(s.usage[usage.UserID], usage)
	return nil
}

func (s *MemoryStore) DeleteUsage(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.usage, userID)
	return nil
}

// Usage returns recorded usage rows. Test helper.
func (s *MemoryStore) Usage(userID uuid.UUID) []BackupCodeUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.usage[userID])
}
