// Package totp implements RFC 6238 time-based one-time passwords over the
// shared secrets produced by pkg/codes.
//
// Verify is deliberately a plain boolean: a malformed secret, a decode
// failure and a wrong code are indistinguishable to the caller. The 6-digit
// format check runs before any base32 or HMAC work so that response timing
// does not reveal whether a stored secret exists or parses.
package totp
