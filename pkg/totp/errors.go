package totp

import "errors"

var (
	ErrInvalidSecret      = errors.New("invalid base32 secret")
	ErrMissingSecret      = errors.New("missing secret")
	ErrMissingAccountName = errors.New("missing account name")
	ErrMissingIssuer      = errors.New("missing issuer")
)
