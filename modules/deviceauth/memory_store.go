package deviceauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nannyagent/authcore/pkg/lockout"
)

// MemoryStore is the in-memory Store used by tests.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*Session
	consumptions map[string]Consumption
	agents       map[uuid.UUID]Agent

	// Failed attempts live in the lockout store in production; the memory
	// fake keeps just enough to exercise the sweeper.
	failedAttempts []failedAttempt
}

type failedAttempt struct {
	action      string
	userCode    string
	attemptedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[uuid.UUID]*Session),
		consumptions: make(map[string]Consumption),
		agents:       make(map[uuid.UUID]Agent),
	}
}

// AddFailedAttempt seeds a device failure row for sweeper tests.
func (m *MemoryStore) AddFailedAttempt(userCode string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedAttempts = append(m.failedAttempts, failedAttempt{
		action:      lockout.ActionDeviceApprove,
		userCode:    userCode,
		attemptedAt: at,
	})
}

// AddFailedAttemptForAction seeds a failure row under another ledger's
// action label, for tests of sweep scoping.
func (m *MemoryStore) AddFailedAttemptForAction(action string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedAttempts = append(m.failedAttempts, failedAttempt{action: action, attemptedAt: at})
}

// FailedAttemptCount reports remaining failure rows across all actions.
// Test helper.
func (m *MemoryStore) FailedAttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failedAttempts)
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPendingByUserCode(ctx context.Context, userCode string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.UserCode == userCode && session.Status == StatusPending {
			cp := *session
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) GetByDeviceCodeHash(ctx context.Context, hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.DeviceCodeHash == hash {
			cp := *session
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) MarkApproved(ctx context.Context, sessionID, approvedBy, agentID uuid.UUID, agentEmail, agentPassword string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.Status = StatusApproved
	session.ApprovedBy = approvedBy
	session.ApprovedAt = at
	session.AgentID = agentID
	session.AgentEmail = agentEmail
	session.AgentPassword = agentPassword
	return nil
}

func (m *MemoryStore) ClearAgentPassword(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[sessionID]; ok {
		session.AgentPassword = ""
	}
	return nil
}

func (m *MemoryStore) InsertConsumption(ctx context.Context, c Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.consumptions[c.UserCode]; exists {
		return ErrCodeConsumed
	}
	m.consumptions[c.UserCode] = c
	return nil
}

func (m *MemoryStore) GetConsumption(ctx context.Context, userCode string) (*Consumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.consumptions[userCode]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListAgentNames(ctx context.Context, owner uuid.UUID, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, agent := range m.agents {
		if agent.Owner == owner && strings.HasPrefix(agent.Name, prefix) {
			names = append(names, agent.Name)
		}
	}
	return names, nil
}

func (m *MemoryStore) CreateAgent(ctx context.Context, agent Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
	return nil
}

func (m *MemoryStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, id)
	return nil
}

func (m *MemoryStore) ListExpiredUnapproved(ctx context.Context, before time.Time) ([]ExpiredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []ExpiredSession
	for _, session := range m.sessions {
		if session.Status != StatusApproved && session.ExpiresAt.Before(before) {
			expired = append(expired, ExpiredSession{ID: session.ID, UserCode: session.UserCode})
		}
	}
	return expired, nil
}

func (m *MemoryStore) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.sessions[id]; ok {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) DeleteFailedAttemptsByUserCodes(ctx context.Context, userCodes []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make(map[string]struct{}, len(userCodes))
	for _, c := range userCodes {
		codes[c] = struct{}{}
	}
	kept := m.failedAttempts[:0]
	deleted := 0
	for _, fa := range m.failedAttempts {
		if _, ok := codes[fa.userCode]; ok && fa.action == lockout.ActionDeviceApprove {
			deleted++
			continue
		}
		kept = append(kept, fa)
	}
	m.failedAttempts = kept
	return deleted, nil
}

func (m *MemoryStore) DeleteFailedAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.failedAttempts[:0]
	deleted := 0
	for _, fa := range m.failedAttempts {
		if fa.action == lockout.ActionDeviceApprove && fa.attemptedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, fa)
	}
	m.failedAttempts = kept
	return deleted, nil
}

// AgentByID returns the stored agent record. Test helper.
func (m *MemoryStore) AgentByID(id uuid.UUID) (Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	return agent, ok
}

// SessionByID returns the stored session. Test helper.
func (m *MemoryStore) SessionByID(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *session
	return &cp, true
}
