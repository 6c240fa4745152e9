package codes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nannyagent/authcore/pkg/codes"
)

func TestDeviceCode(t *testing.T) {
	t.Parallel()

	code, err := codes.DeviceCode()
	require.NoError(t, err)
	assert.Len(t, code, 48)
	assert.Regexp(t, `^[0-9a-f]{48}$`, code)

	other, err := codes.DeviceCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestHashDeviceCode(t *testing.T) {
	t.Parallel()

	h := codes.HashDeviceCode("abc123")
	assert.Regexp(t, `^[0-9a-f]{64}$`, h)
	assert.Equal(t, h, codes.HashDeviceCode("abc123"))
	assert.NotEqual(t, h, codes.HashDeviceCode("abc124"))

	// Peppered hash must differ from a plain SHA-256 of the input.
	assert.NotEqual(t, codes.HashCode("abc123"), h)
}

func TestUserCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		code, err := codes.UserCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{10}$`, code)
		assert.False(t, seen[code], "duplicate user code generated")
		seen[code] = true
	}
}

func TestTOTPSecret(t *testing.T) {
	t.Parallel()

	secret, err := codes.TOTPSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
	assert.Regexp(t, `^[A-Z2-7]{32}$`, secret)
}

func TestBackupCode(t *testing.T) {
	t.Parallel()

	for range 50 {
		code, err := codes.BackupCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z2-7]{8}$`, code)
	}
}

func TestBackupCodes(t *testing.T) {
	t.Parallel()

	list, err := codes.BackupCodes(8)
	require.NoError(t, err)
	require.Len(t, list, 8)
	seen := make(map[string]bool)
	for _, code := range list {
		assert.Regexp(t, `^[A-Z2-7]{8}$`, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestHashCode_Normalization(t *testing.T) {
	t.Parallel()

	ref := codes.HashCode("ABCD2345")
	assert.Equal(t, ref, codes.HashCode("abcd2345"))
	assert.Equal(t, ref, codes.HashCode("  ABCD2345  "))
	assert.NotEqual(t, ref, codes.HashCode("ABCD2346"))
}

func TestHashRaw_CaseSensitive(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, codes.HashRaw("Secret!1"), codes.HashRaw("secret!1"))
	assert.Equal(t, codes.HashRaw("Secret!1"), codes.HashRaw("Secret!1"))
	assert.Len(t, codes.HashRaw(""), 64)
}
