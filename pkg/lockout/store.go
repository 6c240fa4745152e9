package lockout

import (
	"context"
	"time"
)

// FailureMeta is audit context recorded with every failed attempt.
type FailureMeta struct {
	UserCode  string // attempted pairing code, device actions only
	IP        string
	UserAgent string
}

// Lockout is a timed denial of all gated actions for an identity.
type Lockout struct {
	Identity    string
	LockedUntil time.Time
	Reason      string
	IP          string
	FailCount   int
}

// Store persists the failure ledger and lockout rows. The Postgres
// implementation lives in storage/postgres; MemoryStore backs tests.
type Store interface {
	// RecordFailure appends one failure row stamped with at.
	RecordFailure(ctx context.Context, identity, action string, meta FailureMeta, at time.Time) error

	// CountFailures counts failure rows for identity+action newer than since.
	CountFailures(ctx context.Context, identity, action string, since time.Time) (int, error)

	// InsertLockout adds a lockout row. Rows are append-only; an identity may
	// accumulate several, and only the latest unexpired one matters.
	InsertLockout(ctx context.Context, lockout Lockout) error

	// ActiveLockout returns the lockout with the latest locked_until that is
	// still in the future, or nil when the identity is not locked.
	ActiveLockout(ctx context.Context, identity string, now time.Time) (*Lockout, error)
}
