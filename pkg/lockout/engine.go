package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nannyagent/authcore/pkg/sysconfig"
)

// Action labels. Failures recorded under one label never count against
// another.
const (
	ActionVerifyTOTP       = "verify-totp"
	ActionVerifyBackupCode = "verify-backup-code"
	ActionDeviceApprove    = "device-approve"
	ActionPasswordChange   = "password-change"
)

// Policy binds an action to its config-driven thresholds. An empty
// LockoutKey marks a threshold-only policy: crossing the limit denies the
// request but writes no lockout row (the device-approve behavior, where the
// rolling window itself is the penalty).
type Policy struct {
	Action     string
	LimitKey   string        // sysconfig key for the failure limit
	WindowKey  string        // sysconfig key for the check window, in hours
	Window     time.Duration // fixed window used when WindowKey is empty
	LockoutKey string        // sysconfig key for the lockout duration, in hours
}

var (
	VerifyTOTP = Policy{
		Action:     ActionVerifyTOTP,
		LimitKey:   sysconfig.KeyMFAFailLimit,
		WindowKey:  sysconfig.KeyMFACheckWindowHours,
		LockoutKey: sysconfig.KeyMFALockoutHours,
	}
	VerifyBackupCode = Policy{
		Action:     ActionVerifyBackupCode,
		LimitKey:   sysconfig.KeyMFAFailLimit,
		WindowKey:  sysconfig.KeyMFACheckWindowHours,
		LockoutKey: sysconfig.KeyMFALockoutHours,
	}
	DeviceApprove = Policy{
		Action:    ActionDeviceApprove,
		LimitKey:  sysconfig.KeyDeviceFailLimit,
		WindowKey: sysconfig.KeyDeviceCheckWindowHours,
	}
	PasswordChange = Policy{
		Action:     ActionPasswordChange,
		LimitKey:   sysconfig.KeyFailedLoginLimit,
		Window:     24 * time.Hour,
		LockoutKey: sysconfig.KeyAccountLockoutHours,
	}
)

// Status is the outcome of recording a failure.
type Status struct {
	Locked      bool
	FailCount   int
	LockedUntil time.Time // zero for threshold-only policies
}

// Engine evaluates lockout policies against a Store.
type Engine struct {
	store Store
	cfg   *sysconfig.Reader
	now   func() time.Time
	log   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source. Test hook.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger for lockout events.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine returns an Engine over store with thresholds read through cfg.
func NewEngine(store Store, cfg *sysconfig.Reader, opts ...EngineOption) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Locked reports whether identity currently has an unexpired lockout.
// Callers check this before any security-sensitive work, including before
// validating the supplied credential.
func (e *Engine) Locked(ctx context.Context, identity string) (bool, time.Time, error) {
	lock, err := e.store.ActiveLockout(ctx, identity, e.now())
	if err != nil {
		return false, time.Time{}, err
	}
	if lock == nil {
		return false, time.Time{}, nil
	}
	return true, lock.LockedUntil, nil
}

// Fail records a failed attempt, counts failures within the policy window
// and, when the limit is reached, inserts a lockout row (unless the policy
// is threshold-only). Recording is synchronous so lockout decisions are
// never based on stale counts.
func (e *Engine) Fail(ctx context.Context, identity string, policy Policy, meta FailureMeta) (Status, error) {
	now := e.now()
	if err := e.store.RecordFailure(ctx, identity, policy.Action, meta, now); err != nil {
		return Status{}, err
	}

	limit := e.cfg.Int(ctx, policy.LimitKey)
	count, err := e.store.CountFailures(ctx, identity, policy.Action, now.Add(-e.window(ctx, policy)))
	if err != nil {
		return Status{}, err
	}
	if count < limit {
		return Status{FailCount: count}, nil
	}

	if policy.LockoutKey == "" {
		return Status{Locked: true, FailCount: count}, nil
	}

	lockedUntil := now.Add(e.cfg.Hours(ctx, policy.LockoutKey))
	lock := Lockout{
		Identity:    identity,
		LockedUntil: lockedUntil,
		Reason:      fmt.Sprintf("too many failed %s attempts (%d)", policy.Action, count),
		IP:          meta.IP,
		FailCount:   count,
	}
	if err := e.store.InsertLockout(ctx, lock); err != nil {
		return Status{}, err
	}
	e.log.WarnContext(ctx, "lockout triggered",
		slog.String("identity", identity),
		slog.String("action", policy.Action),
		slog.Int("fail_count", count),
		slog.Time("locked_until", lockedUntil))
	return Status{Locked: true, FailCount: count, LockedUntil: lockedUntil}, nil
}

// Allowed reports whether identity is still under the policy's failure limit
// without recording anything. Used where a successful check must not itself
// count as a failure.
func (e *Engine) Allowed(ctx context.Context, identity string, policy Policy) (bool, int, error) {
	count, err := e.store.CountFailures(ctx, identity, policy.Action, e.now().Add(-e.window(ctx, policy)))
	if err != nil {
		return false, 0, err
	}
	return count < e.cfg.Int(ctx, policy.LimitKey), count, nil
}

// Lock inserts an explicit lockout row outside the failure-count path, for
// policy violations that are not credential guesses (e.g. too many password
// changes in a day).
func (e *Engine) Lock(ctx context.Context, identity, reason, ip string, duration time.Duration) (time.Time, error) {
	lockedUntil := e.now().Add(duration)
	err := e.store.InsertLockout(ctx, Lockout{
		Identity:    identity,
		LockedUntil: lockedUntil,
		Reason:      reason,
		IP:          ip,
	})
	if err != nil {
		return time.Time{}, err
	}
	return lockedUntil, nil
}

func (e *Engine) window(ctx context.Context, policy Policy) time.Duration {
	if policy.WindowKey != "" {
		return e.cfg.Hours(ctx, policy.WindowKey)
	}
	return policy.Window
}
