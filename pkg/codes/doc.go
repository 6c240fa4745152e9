// Package codes generates and hashes the secrets used by the device pairing
// flow and the MFA subsystem: device codes, human-readable user codes, TOTP
// secrets and one-time backup codes.
//
// Raw device codes are never stored; only their peppered SHA-256 hash is.
// All comparisons of user-supplied codes go through HashCode so that
// normalization (uppercase, trim) happens in exactly one place.
package codes
