package mfa

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Settings holds a user's TOTP enrollment. Backup code hashes are stored
// in enrollment order; a code's position is its index.
type Settings struct {
	UserID           uuid.UUID
	Enabled          bool
	TOTPSecret       string
	BackupCodeHashes []string
	UpdatedAt        time.Time
}

// BackupCodeUsage is one spent backup code. Rows are only ever deleted
// when enrollment is replaced or disabled.
type BackupCodeUsage struct {
	UserID    uuid.UUID
	CodeHash  string
	CodeIndex int
	IP        string
	UserAgent string
	UsedAt    time.Time
}

// Store persists MFA settings and backup code usage.
type Store interface {
	// GetSettings returns the user's settings or ErrSettingsNotFound.
	GetSettings(ctx context.Context, userID uuid.UUID) (*Settings, error)

	// UpsertSettings creates or replaces the user's enrollment.
	UpsertSettings(ctx context.Context, settings Settings) error

	// DisableSettings clears enabled, secret and hashes. No-op for users
	// without settings.
	DisableSettings(ctx context.Context, userID uuid.UUID, at time.Time) error

	// ListUsedCodeHashes returns hashes of spent backup codes.
	ListUsedCodeHashes(ctx context.Context, userID uuid.UUID) ([]string, error)

	InsertUsage(ctx context.Context, usage BackupCodeUsage) error

	// DeleteUsage wipes the user's usage history.
	DeleteUsage(ctx context.Context, userID uuid.UUID) error
}
