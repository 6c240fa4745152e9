package deviceauth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session statuses. Sessions only ever move pending → approved; everything
// else is handled by expiry and the sweeper.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Session is one device pairing attempt. The raw device code is never
// stored, only its peppered hash.
type Session struct {
	ID              uuid.UUID
	DeviceCodeHash  string
	UserCode        string
	ClientID        string
	Scopes          []string
	Status          string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	IntervalSeconds int

	// Set on approval. AgentPassword is transient: the token exchange
	// uses it once and clears it.
	ApprovedBy    uuid.UUID
	ApprovedAt    time.Time
	AgentID       uuid.UUID
	AgentEmail    string
	AgentPassword string
}

// Consumption binds a user code to the single agent that consumed it.
// Append-only; a UNIQUE constraint on UserCode is the double-approval guard.
type Consumption struct {
	UserCode   string
	AgentID    uuid.UUID
	ConsumedAt time.Time
}

// Agent is the fleet-facing record of a paired machine.
type Agent struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	Name      string
	Hostname  string
	ClientID  string
	Status    string
	CreatedAt time.Time
}

// ExpiredSession is the sweeper's view of a session to delete.
type ExpiredSession struct {
	ID       uuid.UUID
	UserCode string
}

// Store persists sessions, the consumption ledger and agent records.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error

	// GetPendingByUserCode returns the pending session for userCode, or
	// ErrSessionNotFound.
	GetPendingByUserCode(ctx context.Context, userCode string) (*Session, error)

	// GetByDeviceCodeHash returns the session regardless of status, or
	// ErrSessionNotFound.
	GetByDeviceCodeHash(ctx context.Context, hash string) (*Session, error)

	// MarkApproved flips the session to approved and stores the agent's
	// transient credentials.
	MarkApproved(ctx context.Context, sessionID, approvedBy, agentID uuid.UUID, agentEmail, agentPassword string, at time.Time) error

	// ClearAgentPassword nulls the stored password after the first
	// successful token exchange.
	ClearAgentPassword(ctx context.Context, sessionID uuid.UUID) error

	// InsertConsumption appends a ledger row. Returns ErrCodeConsumed when
	// the user code already has one; concurrent approvals race on this.
	InsertConsumption(ctx context.Context, c Consumption) error

	// GetConsumption returns the ledger row for userCode, or nil.
	GetConsumption(ctx context.Context, userCode string) (*Consumption, error)

	// ListAgentNames returns names of owner's agents starting with prefix.
	ListAgentNames(ctx context.Context, owner uuid.UUID, prefix string) ([]string, error)

	CreateAgent(ctx context.Context, agent Agent) error
	DeleteAgent(ctx context.Context, id uuid.UUID) error

	// Sweeper support. The failed-attempt deletes touch device-approve
	// failures only; rows recorded under other lockout actions are not
	// this module's to prune.
	ListExpiredUnapproved(ctx context.Context, before time.Time) ([]ExpiredSession, error)
	DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error)
	DeleteFailedAttemptsByUserCodes(ctx context.Context, userCodes []string) (int, error)
	DeleteFailedAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
