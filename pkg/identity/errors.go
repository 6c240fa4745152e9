package identity

import "errors"

var (
	ErrInvalidToken        = errors.New("identity: invalid or expired access token")
	ErrInvalidCredentials  = errors.New("identity: invalid email or password")
	ErrInvalidRefreshToken = errors.New("identity: invalid or expired refresh token")
	ErrUserExists          = errors.New("identity: user already exists")
	ErrUserNotFound        = errors.New("identity: user not found")
)
