package lockout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/sysconfig"
)

type staticConfig map[string]string

func (s staticConfig) Get(_ context.Context, key string) (string, error) {
	if value, ok := s[key]; ok {
		return value, nil
	}
	return "", sysconfig.ErrNotFound
}

func newEngine(t *testing.T, cfg staticConfig, now *time.Time) (*lockout.Engine, *lockout.MemoryStore) {
	t.Helper()
	store := lockout.NewMemoryStore()
	reader := sysconfig.NewReader(cfg)
	engine := lockout.NewEngine(store, reader, lockout.WithClock(func() time.Time { return *now }))
	return engine, store
}

func TestEngine_FailBelowLimit(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)

	ctx := context.Background()
	for i := 1; i < 5; i++ {
		status, err := engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{IP: "10.0.0.1"})
		require.NoError(t, err)
		assert.False(t, status.Locked)
		assert.Equal(t, i, status.FailCount)
	}

	locked, _, err := engine.Locked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestEngine_FailAtLimitLocks(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	var status lockout.Status
	var err error
	for range 5 { // default security.mfa_failed_attempts_limit is 5
		status, err = engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{})
		require.NoError(t, err)
	}
	assert.True(t, status.Locked)
	assert.Equal(t, now.Add(time.Hour), status.LockedUntil)

	locked, until, err := engine.Locked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, now.Add(time.Hour), until)
}

func TestEngine_LockoutExpiresByClock(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	for range 5 {
		_, err := engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{})
		require.NoError(t, err)
	}

	locked, _, err := engine.Locked(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, locked)

	now = now.Add(61 * time.Minute)
	locked, _, err = engine.Locked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked, "lockout must expire by wall clock alone")
}

func TestEngine_ActionNamespacesAreDisjoint(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	for range 4 {
		_, err := engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{})
		require.NoError(t, err)
	}

	// Backup-code failures start from zero despite four TOTP failures.
	status, err := engine.Fail(ctx, "user-1", lockout.VerifyBackupCode, lockout.FailureMeta{})
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 1, status.FailCount)
}

func TestEngine_WindowRollsForward(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	for range 4 {
		_, err := engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{})
		require.NoError(t, err)
	}

	// 25 hours later the old failures have left the 24h window.
	now = now.Add(25 * time.Hour)
	status, err := engine.Fail(ctx, "user-1", lockout.VerifyTOTP, lockout.FailureMeta{})
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 1, status.FailCount)
}

func TestEngine_ThresholdOnlyPolicy(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, store := newEngine(t, staticConfig{sysconfig.KeyDeviceFailLimit: "3"}, &now)
	ctx := context.Background()

	identity := "nannyagent-db01:203.0.113.9"
	var status lockout.Status
	var err error
	for range 3 {
		status, err = engine.Fail(ctx, identity, lockout.DeviceApprove, lockout.FailureMeta{UserCode: "ABCDEFGH23"})
		require.NoError(t, err)
	}
	assert.True(t, status.Locked)
	assert.True(t, status.LockedUntil.IsZero(), "threshold-only policy writes no lockout row")

	// No lockout row means Locked stays false; the Allowed count is the gate.
	locked, _, err := engine.Locked(ctx, identity)
	require.NoError(t, err)
	assert.False(t, locked)

	allowed, count, err := engine.Allowed(ctx, identity, lockout.DeviceApprove)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)

	lock, err := store.ActiveLockout(ctx, identity, now)
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestEngine_AllowedDoesNotRecord(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	allowed, count, err := engine.Allowed(ctx, "client:ip", lockout.DeviceApprove)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, count)

	// Calling Allowed repeatedly never increments anything.
	allowed, count, err = engine.Allowed(ctx, "client:ip", lockout.DeviceApprove)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, count)
}

func TestEngine_ExplicitLock(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	engine, _ := newEngine(t, staticConfig{}, &now)
	ctx := context.Background()

	until, err := engine.Lock(ctx, "user-9", "too many password changes", "10.0.0.2", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), until)

	locked, lockedUntil, err := engine.Locked(ctx, "user-9")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, until, lockedUntil)
}
