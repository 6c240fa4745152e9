package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the stored account record.
type User struct {
	ID           uuid.UUID
	Email        string
	Role         string
	PasswordHash []byte
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Storage persists accounts and refresh tokens. Implementations return
// ErrUserNotFound / ErrUserExists / ErrInvalidRefreshToken for the
// corresponding misses.
type Storage interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// StoreRefreshToken records a hashed refresh token for the user.
	StoreRefreshToken(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error

	// ConsumeRefreshToken atomically deletes an unexpired token row and
	// returns its user, so each refresh token is redeemable exactly once.
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
}
