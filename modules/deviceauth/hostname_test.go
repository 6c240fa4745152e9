package deviceauth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nannyagent/authcore/modules/deviceauth"
)

func TestDeriveHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		clientID string
		want     string
	}{
		{"prefixed", "nannyagent-db01", "db01"},
		{"prefixed with spaces", "nannyagent- db01 ", "db01"},
		{"prefix only", "nannyagent-", "nannyagent"},
		{"empty", "", "nannyagent"},
		{"unprefixed passes through", "custom-host", "custom-host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, deviceauth.DeriveHostname(tt.clientID))
		})
	}
}

func TestSanitizeHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		hostname string
		want     string
	}{
		{"clean", "db01", "db01"},
		{"underscores and dashes kept", "db_01-a", "db_01-a"},
		{"specials replaced", "db.01!x", "db-01-x"},
		{"diacritics stripped", "büro-ñ1", "buro-n1"},
		{"only specials", "...", "---"},
		{"empty falls back", "", "nannyagent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, deviceauth.SanitizeHostname(tt.hostname))
		})
	}
}

func TestSanitizeHostname_Truncates(t *testing.T) {
	t.Parallel()

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, deviceauth.SanitizeHostname(string(long)), 50)
}
