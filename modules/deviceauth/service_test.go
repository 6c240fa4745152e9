package deviceauth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nannyagent/authcore/modules/deviceauth"
	"github.com/nannyagent/authcore/pkg/codes"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/sysconfig"
)

type mapConfigStore map[string]string

func (m mapConfigStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", sysconfig.ErrNotFound
}

type fixture struct {
	svc      *deviceauth.Service
	store    *deviceauth.MemoryStore
	provider *identity.Service
	approver *identity.Identity
	now      *time.Time
}

func newFixture(t *testing.T, overrides mapConfigStore) *fixture {
	t.Helper()

	store := deviceauth.NewMemoryStore()
	cfg := sysconfig.NewReader(overrides)

	now := time.Now()
	clock := func() time.Time { return now }

	idStorage := identity.NewMemoryStorage()
	provider, err := identity.NewService(identity.Config{
		SigningKey:      "device-flow-test-signing-key-32b!!!!",
		Issuer:          "authcore-test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}, idStorage, identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	engine := lockout.NewEngine(lockout.NewMemoryStore(), cfg, lockout.WithClock(clock))
	svc := deviceauth.NewService(store, engine, cfg, provider, deviceauth.WithClock(clock))

	return &fixture{
		svc:      svc,
		store:    store,
		provider: provider,
		approver: &identity.Identity{ID: uuid.New(), Email: "owner@example.com", Role: identity.RoleUser},
		now:      &now,
	}
}

func TestAuthorize_CreatesPendingSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	result, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	assert.Len(t, result.DeviceCode, 48)
	assert.Regexp(t, `^[A-Z0-9]{10}$`, result.UserCode)
	assert.Equal(t, 600, result.ExpiresIn)
	assert.Equal(t, 5, result.Interval)
	assert.NotEmpty(t, result.VerificationURI)

	session, err := f.store.GetPendingByUserCode(ctx, result.UserCode)
	require.NoError(t, err)
	assert.NotEqual(t, result.DeviceCode, session.DeviceCodeHash)
	assert.Equal(t, []string{"agent:register"}, session.Scopes)
}

func TestApprove_FullFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)

	// Device polls before approval.
	_, err = f.svc.ExchangeDeviceCode(ctx, authz.DeviceCode)
	assert.ErrorIs(t, err, deviceauth.ErrAuthorizationPending)

	approved, err := f.svc.Approve(ctx, f.approver, authz.UserCode, "nannyagent-db01", "203.0.113.9", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, "db01", approved.AgentName)
	assert.Equal(t, "db01", approved.Hostname)

	agent, ok := f.store.AgentByID(approved.AgentID)
	require.True(t, ok)
	assert.Equal(t, f.approver.ID, agent.Owner)

	// Exchange succeeds exactly once; the stored password is cleared.
	token, err := f.svc.ExchangeDeviceCode(ctx, authz.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, approved.AgentID, token.AgentID)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, []string{"agent:register"}, token.Scope)
	assert.NotEmpty(t, token.RefreshToken)

	who, err := f.provider.VerifyAccessToken(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.True(t, who.IsAgent())

	_, err = f.svc.ExchangeDeviceCode(ctx, authz.DeviceCode)
	assert.ErrorIs(t, err, deviceauth.ErrCredentialsConsumed)
}

func TestApprove_NameDeduplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	for i, want := range []string{"db01", "db01-1", "db01-2"} {
		authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
		require.NoError(t, err)
		approved, err := f.svc.Approve(ctx, f.approver, authz.UserCode, "nannyagent-db01", "203.0.113.9", "")
		require.NoError(t, err, "approval %d", i)
		assert.Equal(t, want, approved.AgentName)
	}

	// A different owner gets the base name again.
	other := &identity.Identity{ID: uuid.New(), Email: "other@example.com", Role: identity.RoleUser}
	authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	approved, err := f.svc.Approve(ctx, other, authz.UserCode, "nannyagent-db01", "203.0.113.9", "")
	require.NoError(t, err)
	assert.Equal(t, "db01", approved.AgentName)
}

func TestApprove_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid format before anything else", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, mapConfigStore{})
		_, err := f.svc.Approve(context.Background(), f.approver, "short", "c", "ip", "")
		assert.ErrorIs(t, err, deviceauth.ErrInvalidCodeFormat)
		_, err = f.svc.Approve(context.Background(), f.approver, "lowercase1", "c", "ip", "")
		assert.ErrorIs(t, err, deviceauth.ErrInvalidCodeFormat)
	})

	t.Run("unknown code records failure and 404s", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, mapConfigStore{"security.device_failed_attempts_limit": "2"})
		ctx := context.Background()

		_, err := f.svc.Approve(ctx, f.approver, "AAAAAAAAAA", "cli", "1.2.3.4", "")
		assert.ErrorIs(t, err, deviceauth.ErrSessionNotFound)
		_, err = f.svc.Approve(ctx, f.approver, "BBBBBBBBBB", "cli", "1.2.3.4", "")
		assert.ErrorIs(t, err, deviceauth.ErrSessionNotFound)

		// Limit reached: the next attempt is throttled before any lookup.
		var rateErr *deviceauth.RateLimitError
		_, err = f.svc.Approve(ctx, f.approver, "CCCCCCCCCC", "cli", "1.2.3.4", "")
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 2, rateErr.AttemptCount)

		// Another client identity is unaffected.
		_, err = f.svc.Approve(ctx, f.approver, "CCCCCCCCCC", "cli", "5.6.7.8", "")
		assert.ErrorIs(t, err, deviceauth.ErrSessionNotFound)
	})

	t.Run("expired session is not a failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, mapConfigStore{"security.device_failed_attempts_limit": "1"})
		ctx := context.Background()

		authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
		require.NoError(t, err)
		*f.now = f.now.Add(11 * time.Minute)

		_, err = f.svc.Approve(ctx, f.approver, authz.UserCode, "cli", "1.2.3.4", "")
		assert.ErrorIs(t, err, deviceauth.ErrSessionExpired)

		// Expiry did not consume the 1-attempt budget.
		authz2, err := f.svc.Authorize(ctx, "nannyagent-db02", nil)
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, f.approver, authz2.UserCode, "cli", "1.2.3.4", "")
		require.NoError(t, err)
	})

	t.Run("consumed code is rejected with the winner", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, mapConfigStore{})
		ctx := context.Background()

		authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
		require.NoError(t, err)
		winner := uuid.New()
		require.NoError(t, f.store.InsertConsumption(ctx, deviceauth.Consumption{
			UserCode: authz.UserCode, AgentID: winner, ConsumedAt: *f.now,
		}))

		var consumedErr *deviceauth.CodeConsumedError
		_, err = f.svc.Approve(ctx, f.approver, authz.UserCode, "cli", "1.2.3.4", "")
		require.ErrorAs(t, err, &consumedErr)
		assert.Equal(t, winner, consumedErr.AgentID)
	})
}

// raceStore makes the fixture lose the consumption race: a competing
// approval lands between the ledger check and the ledger insert.
type raceStore struct {
	*deviceauth.MemoryStore
	winner uuid.UUID
}

func (r *raceStore) InsertConsumption(ctx context.Context, c deviceauth.Consumption) error {
	_ = r.MemoryStore.InsertConsumption(ctx, deviceauth.Consumption{
		UserCode: c.UserCode, AgentID: r.winner, ConsumedAt: c.ConsumedAt,
	})
	return r.MemoryStore.InsertConsumption(ctx, c)
}

func TestApprove_ConsumptionRaceRollsBack(t *testing.T) {
	t.Parallel()

	inner := deviceauth.NewMemoryStore()
	winner := uuid.New()
	store := &raceStore{MemoryStore: inner, winner: winner}

	cfg := sysconfig.NewReader(mapConfigStore{})
	idStorage := identity.NewMemoryStorage()
	provider, err := identity.NewService(identity.Config{
		SigningKey:      "device-flow-test-signing-key-32b!!!!",
		Issuer:          "authcore-test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}, idStorage, identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	engine := lockout.NewEngine(lockout.NewMemoryStore(), cfg)
	svc := deviceauth.NewService(store, engine, cfg, provider)
	ctx := context.Background()

	authz, err := svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)

	approver := &identity.Identity{ID: uuid.New(), Email: "owner@example.com", Role: identity.RoleUser}
	var consumedErr *deviceauth.CodeConsumedError
	_, err = svc.Approve(ctx, approver, authz.UserCode, "cli", "1.2.3.4", "")
	require.ErrorAs(t, err, &consumedErr)
	assert.Equal(t, winner, consumedErr.AgentID)

	// The loser's provisioning was rolled back.
	session, err := inner.GetByDeviceCodeHash(ctx, codes.HashDeviceCode(authz.DeviceCode))
	require.NoError(t, err)
	_, ok := inner.AgentByID(session.AgentID)
	assert.False(t, ok, "loser's agent record should be gone")
	_, _, err = provider.SignInWithPassword(ctx, session.AgentEmail, "anything")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestToken_InvalidGrant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	_, err := f.svc.ExchangeDeviceCode(ctx, "not-a-real-code")
	assert.ErrorIs(t, err, deviceauth.ErrInvalidGrant)

	_, err = f.svc.ExchangeDeviceCode(ctx, "")
	assert.ErrorIs(t, err, deviceauth.ErrInvalidRequest)

	_, err = f.svc.Refresh(ctx, "bogus")
	assert.ErrorIs(t, err, deviceauth.ErrInvalidGrant)
}

func TestToken_ExpiredSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	*f.now = f.now.Add(11 * time.Minute)

	_, err = f.svc.ExchangeDeviceCode(ctx, authz.DeviceCode)
	assert.ErrorIs(t, err, deviceauth.ErrSessionExpired)
}

func TestRefresh_RotatesAgentSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.approver, authz.UserCode, "cli", "1.2.3.4", "")
	require.NoError(t, err)
	token, err := f.svc.ExchangeDeviceCode(ctx, authz.DeviceCode)
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, token.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, token.AgentID, next.AgentID)
	assert.NotEqual(t, token.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, token.RefreshToken)
	assert.ErrorIs(t, err, deviceauth.ErrInvalidGrant)
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	// One session that will expire, one approved, one fresh.
	stale, err := f.svc.Authorize(ctx, "nannyagent-old", nil)
	require.NoError(t, err)
	approvedAuthz, err := f.svc.Authorize(ctx, "nannyagent-keep", nil)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.approver, approvedAuthz.UserCode, "cli", "1.2.3.4", "")
	require.NoError(t, err)

	f.store.AddFailedAttempt(stale.UserCode, *f.now)
	f.store.AddFailedAttempt("ZZZZZZZZZZ", f.now.Add(-25*time.Hour))
	f.store.AddFailedAttempt("YYYYYYYYYY", *f.now)

	*f.now = f.now.Add(21 * time.Minute)
	fresh, err := f.svc.Authorize(ctx, "nannyagent-new", nil)
	require.NoError(t, err)

	report, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sessions)
	assert.Equal(t, 1, report.RelatedFailedAttempts)
	assert.Equal(t, 1, report.OldFailedAttempts)
	assert.Equal(t, 3, report.Total)

	// Approved and fresh sessions survive.
	_, err = f.store.GetPendingByUserCode(ctx, fresh.UserCode)
	require.NoError(t, err)
	_, err = f.store.GetPendingByUserCode(ctx, stale.UserCode)
	assert.ErrorIs(t, err, deviceauth.ErrSessionNotFound)
}

func TestCleanup_LeavesOtherLockoutLedgers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	// Aged MFA and password failures share the table but belong to other
	// modules' counting windows; the device sweep must not touch them.
	f.store.AddFailedAttempt("ZZZZZZZZZZ", f.now.Add(-25*time.Hour))
	f.store.AddFailedAttemptForAction(lockout.ActionVerifyTOTP, f.now.Add(-25*time.Hour))
	f.store.AddFailedAttemptForAction(lockout.ActionPasswordChange, f.now.Add(-25*time.Hour))

	report, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OldFailedAttempts)
	assert.Equal(t, 2, f.store.FailedAttemptCount())
}

func TestApproveAfterCleanupNotPossible(t *testing.T) {
	t.Parallel()

	f := newFixture(t, mapConfigStore{})
	ctx := context.Background()

	authz, err := f.svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	*f.now = f.now.Add(21 * time.Minute)
	_, err = f.svc.Cleanup(ctx)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.approver, authz.UserCode, "cli", "1.2.3.4", "")
	assert.ErrorIs(t, err, deviceauth.ErrSessionNotFound)
}

var errBoom = errors.New("boom")

// failingAgentStore fails agent record creation, exercising the
// compensation path.
type failingAgentStore struct {
	*deviceauth.MemoryStore
}

func (f *failingAgentStore) CreateAgent(ctx context.Context, agent deviceauth.Agent) error {
	return fmt.Errorf("insert agent: %w", errBoom)
}

func TestApprove_ProvisioningFailureCompensates(t *testing.T) {
	t.Parallel()

	inner := deviceauth.NewMemoryStore()
	store := &failingAgentStore{MemoryStore: inner}
	cfg := sysconfig.NewReader(mapConfigStore{})

	idStorage := identity.NewMemoryStorage()
	provider, err := identity.NewService(identity.Config{
		SigningKey:      "device-flow-test-signing-key-32b!!!!",
		Issuer:          "authcore-test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}, idStorage, identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	engine := lockout.NewEngine(lockout.NewMemoryStore(), cfg)
	svc := deviceauth.NewService(store, engine, cfg, provider)
	ctx := context.Background()

	authz, err := svc.Authorize(ctx, "nannyagent-db01", nil)
	require.NoError(t, err)
	approver := &identity.Identity{ID: uuid.New(), Email: "owner@example.com", Role: identity.RoleUser}

	_, err = svc.Approve(ctx, approver, authz.UserCode, "cli", "1.2.3.4", "")
	assert.ErrorIs(t, err, errBoom)

	// The synthetic identity did not survive the failed approval.
	session, serr := inner.GetByDeviceCodeHash(ctx, codes.HashDeviceCode(authz.DeviceCode))
	require.NoError(t, serr)
	assert.Equal(t, deviceauth.StatusPending, session.Status)
}
