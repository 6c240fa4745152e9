package codes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// userCodeAlphabet is read aloud and typed by humans, so it avoids
	// lowercase entirely. 36 symbols (not a power of two) means generation
	// must reject out-of-range bytes instead of using modulo.
	userCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	userCodeLength   = 10

	// base32Alphabet is the RFC 4648 alphabet used for TOTP secrets and
	// backup codes: no 0/1, no lowercase.
	base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

	deviceCodeBytes = 24
	totpSecretBytes = 32
)

// deviceCodePepper is a static pepper mixed into device code hashes so that a
// leaked device_sessions table alone is not enough to forge a token exchange.
const deviceCodePepper = "device-auth-pepper"

var ErrRandomSource = errors.New("failed to read random source")

// DeviceCode returns a new high-entropy device code, hex-encoded. The raw
// value is shown to the polling device exactly once; persist only
// HashDeviceCode of it.
func DeviceCode() (string, error) {
	buf := make([]byte, deviceCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrRandomSource, err)
	}
	return hex.EncodeToString(buf), nil
}

// HashDeviceCode returns the peppered SHA-256 hex digest of a raw device
// code. Equality checks hash the presented value and compare digests.
func HashDeviceCode(raw string) string {
	sum := sha256.Sum256([]byte(raw + deviceCodePepper))
	return hex.EncodeToString(sum[:])
}

// UserCode returns a 10-character code drawn uniformly from [A-Z0-9].
// Uniformity matters: the user code is the sole search key for approval, so
// any bias narrows the effective keyspace an attacker has to guess.
func UserCode() (string, error) {
	var b strings.Builder
	b.Grow(userCodeLength)

	// Rejection sampling: accept bytes below the largest multiple of 36
	// that fits in a byte (216), discard the rest.
	const limit = byte(len(userCodeAlphabet) * (256 / len(userCodeAlphabet)))
	buf := make([]byte, 32)
	for b.Len() < userCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Join(ErrRandomSource, err)
		}
		for _, c := range buf {
			if c >= limit {
				continue
			}
			b.WriteByte(userCodeAlphabet[int(c)%len(userCodeAlphabet)])
			if b.Len() == userCodeLength {
				break
			}
		}
	}
	return b.String(), nil
}

// TOTPSecret returns a new base32 secret ([A-Z2-7]) built from 32 random
// bytes. The alphabet has 32 symbols, so a plain modulo map is unbiased.
func TOTPSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrRandomSource, err)
	}
	var b strings.Builder
	b.Grow(totpSecretBytes)
	for _, c := range buf {
		b.WriteByte(base32Alphabet[int(c)%len(base32Alphabet)])
	}
	return b.String(), nil
}

// BackupCode returns an 8-character one-time code over [A-Z2-7]. Five random
// bytes are packed into 5-bit groups (40 bits / 5 = 8 symbols). The packing
// keeps the generator unbiased for any alphabet size, not just powers of two.
func BackupCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrRandomSource, err)
	}

	var b strings.Builder
	b.Grow(8)
	var bits, nbits uint
	for _, c := range buf {
		bits = bits<<8 | uint(c)
		nbits += 8
		for nbits >= 5 {
			nbits -= 5
			b.WriteByte(base32Alphabet[(bits>>nbits)&0x1f])
		}
	}
	return b.String(), nil
}

// BackupCodes returns count fresh backup codes.
func BackupCodes(count int) ([]string, error) {
	out := make([]string, count)
	for i := range out {
		code, err := BackupCode()
		if err != nil {
			return nil, err
		}
		out[i] = code
	}
	return out, nil
}

// HashCode normalizes a user-supplied code (uppercase, trim) and returns its
// SHA-256 hex digest. Backup codes and password-history entries are stored
// and compared only through this path.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

// HashRaw returns the SHA-256 hex digest of s with no normalization.
// Used for case-sensitive secrets such as password-history entries.
func HashRaw(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
