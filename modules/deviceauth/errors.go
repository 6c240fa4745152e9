package deviceauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCodeFormat    = errors.New("code must be 10 alphanumeric characters (A-Z, 0-9)")
	ErrSessionNotFound      = errors.New("device code not found or already used")
	ErrSessionExpired       = errors.New("device code has expired")
	ErrAuthorizationPending = errors.New("user has not approved the device yet")
	ErrInvalidGrant         = errors.New("invalid device code")
	ErrInvalidRequest       = errors.New("missing required field")
	ErrUnsupportedGrantType = errors.New("supported grant types: urn:ietf:params:oauth:grant-type:device_code, refresh_token")
	ErrCredentialsConsumed  = errors.New("agent credentials not available")

	// ErrCodeConsumed is returned by Store.InsertConsumption on a unique
	// violation. The service wraps it into a CodeConsumedError.
	ErrCodeConsumed = errors.New("user code already consumed")
)

// RateLimitError reports a denied approval attempt with the failure count
// the caller has accumulated.
type RateLimitError struct {
	AttemptCount int
	Limit        int
	LockedUntil  time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d failed attempts, maximum %d allowed in 24 hours", e.AttemptCount, e.Limit)
}

// CodeConsumedError reports which agent won the code.
type CodeConsumedError struct {
	AgentID uuid.UUID
}

func (e *CodeConsumedError) Error() string {
	return "device code has already been consumed by another agent"
}
