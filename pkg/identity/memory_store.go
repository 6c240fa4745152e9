package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type refreshRow struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// MemoryStorage is an in-process Storage used by tests.
type MemoryStorage struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
	refresh map[string]refreshRow
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[uuid.UUID]*User),
		byEmail: make(map[string]uuid.UUID),
		refresh: make(map[string]refreshRow),
	}
}

func (s *MemoryStorage) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrUserExists
	}
	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[key] = user.ID
	return nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

func (s *MemoryStorage) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *MemoryStorage) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byEmail, strings.ToLower(user.Email))
	delete(s.users, id)
	return nil
}

func (s *MemoryStorage) StoreRefreshToken(_ context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStorage) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[tokenHash]
	if !ok || !row.expiresAt.After(now) {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	delete(s.refresh, tokenHash)
	return row.userID, nil
}
