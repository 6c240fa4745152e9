package mfa

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownAction       = errors.New("invalid action")
	ErrSecretRequired      = errors.New("secret required")
	ErrCodeRequired        = errors.New("code required")
	ErrBackupCodesRequired = errors.New("backup codes required")
	ErrInvalidTOTPFormat   = errors.New("TOTP code must be 6 digits")
	ErrInvalidTOTPCode     = errors.New("invalid code")
	ErrInvalidBackupCode   = errors.New("invalid backup code")
	ErrBackupCodeReused    = errors.New("backup code already used")
	ErrNotEnabled          = errors.New("MFA not enabled")
	ErrSettingsNotFound    = errors.New("MFA settings not found")
)

// LockedError denies all verification actions until LockedUntil passes.
type LockedError struct {
	LockedUntil time.Time
	FailCount   int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("MFA is locked due to too many failed attempts, try again after %s", e.LockedUntil.Format(time.RFC3339))
}
