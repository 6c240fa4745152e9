package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	Digits = 6  // standard 6-digit codes
	Period = 30 // 30-second validity window (RFC 6238)

	// DefaultWindow accepts the previous, current and next time step to
	// absorb clock drift between the server and the authenticator app.
	DefaultWindow = 1
)

var (
	// secretRegex ensures Base32 format: uppercase A-Z, digits 2-7,
	// optional padding.
	secretRegex = regexp.MustCompile("^[A-Z2-7]+=*$")
	codeRegex   = regexp.MustCompile(`^\d{6}$`)
)

// Verify reports whether code is valid for secret at the current time,
// accepting codes within window steps of clock drift in either direction.
// Any decode or format failure yields false, never an error.
func Verify(code, secret string, window int) bool {
	return VerifyAt(code, secret, window, time.Now())
}

// VerifyAt is Verify against an explicit reference time.
func VerifyAt(code, secret string, window int, t time.Time) bool {
	code = strings.TrimSpace(code)
	if !codeRegex.MatchString(code) {
		return false
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return false
	}

	counter := t.Unix() / Period
	for offset := -int64(window); offset <= int64(window); offset++ {
		if fmt.Sprintf("%06d", hotp(key, counter+offset)) == code {
			return true
		}
	}
	return false
}

// GenerateCode returns the code for secret at the time step containing t.
// Used by enrollment tests and by callers that render codes for support
// tooling; verification never needs it.
func GenerateCode(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", hotp(key, t.Unix()/Period)), nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(strings.ToUpper(secret))
	if !secretRegex.MatchString(secret) {
		return nil, ErrInvalidSecret
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// hotp implements RFC 4226: HMAC-SHA1 over the big-endian counter, dynamic
// truncation to a 31-bit integer, reduced mod 10^6.
func hotp(key []byte, counter int64) int {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	v := (int(sum[offset]&0x7f) << 24) |
		(int(sum[offset+1]) << 16) |
		(int(sum[offset+2]) << 8) |
		int(sum[offset+3])

	return v % 1_000_000
}

// Params describes an otpauth:// provisioning URI for authenticator apps.
type Params struct {
	Secret      string // base32 TOTP secret (required)
	AccountName string // user identifier, typically email (required)
	Issuer      string // service name shown in the app (required)
}

// URI renders params in the Key Uri Format understood by authenticator apps:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func URI(params Params) (string, error) {
	switch {
	case params.Secret == "":
		return "", ErrMissingSecret
	case !secretRegex.MatchString(params.Secret):
		return "", ErrInvalidSecret
	case params.AccountName == "":
		return "", ErrMissingAccountName
	case params.Issuer == "":
		return "", ErrMissingIssuer
	}

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", fmt.Sprintf("%d", Digits))
	query.Set("period", fmt.Sprintf("%d", Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}
