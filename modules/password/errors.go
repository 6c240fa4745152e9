package password

import (
	"errors"
	"fmt"
	"time"
)

var ErrPasswordRequired = errors.New("password is required")

// LockedError denies validation until LockedUntil passes. Reason is set
// when the lock was placed by this request (threshold crossings), empty
// when a pre-existing lock short-circuited it.
type LockedError struct {
	LockedUntil time.Time
	Reason      string
}

func (e *LockedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "account is locked, try again later"
}

// ReusedError rejects a password seen in the recent change history.
type ReusedError struct {
	WindowHours int
}

func (e *ReusedError) Error() string {
	return fmt.Sprintf("password was used within the last %d hours, choose a different one", e.WindowHours)
}
