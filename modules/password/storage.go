package password

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeAttempt is one validation attempt, successful or not. Failed
// attempts feed the account lockout threshold.
type ChangeAttempt struct {
	UserID      uuid.UUID
	IP          string
	Success     bool
	AttemptedAt time.Time
}

// HistoryEntry is one accepted password, stored as a hash so reuse can be
// detected without keeping plaintext.
type HistoryEntry struct {
	UserID         uuid.UUID
	PasswordHash   string
	IP             string
	UserAgent      string
	ChangedByAgent bool
	ChangedAt      time.Time
}

// Store persists password change attempts and history.
type Store interface {
	RecordAttempt(ctx context.Context, attempt ChangeAttempt) error

	// CountFailedAttempts counts unsuccessful attempts since the cutoff.
	CountFailedAttempts(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// CountChanges counts accepted password changes since the cutoff.
	CountChanges(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// ListRecentHashes returns hashes of passwords accepted since the
	// cutoff.
	ListRecentHashes(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error)

	InsertHistory(ctx context.Context, entry HistoryEntry) error
}
