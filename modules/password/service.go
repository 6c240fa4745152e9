// Package password validates password change requests against strength
// requirements, reuse history and abuse thresholds.
package password

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nannyagent/authcore/pkg/codes"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/logger"
	"github.com/nannyagent/authcore/pkg/sysconfig"
)

var (
	uppercaseRegex   = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex   = regexp.MustCompile(`[a-z]`)
	numberRegex      = regexp.MustCompile(`[0-9]`)
	specialCharRegex = regexp.MustCompile(`[!@#$%^&*()_+\-={}\[\];':"\\|,.<>/?]`)
)

const minPasswordLength = 8

// Attempts and changes are counted over a fixed day regardless of the
// configurable history window.
const abuseWindow = 24 * time.Hour

// Requirements reports which strength rules a password satisfied.
type Requirements struct {
	MinLength      bool `json:"minLength"`
	HasUppercase   bool `json:"hasUppercase"`
	HasLowercase   bool `json:"hasLowercase"`
	HasNumber      bool `json:"hasNumber"`
	HasSpecialChar bool `json:"hasSpecialChar"`
}

// ValidationResult is the outcome of a validation attempt.
type ValidationResult struct {
	IsValid      bool         `json:"isValid"`
	Errors       []string     `json:"errors"`
	Requirements Requirements `json:"requirements"`
}

// CheckRequirements evaluates the strength rules alone, with no history
// or rate limiting.
func CheckRequirements(password string) ValidationResult {
	req := Requirements{
		MinLength:      len(password) >= minPasswordLength,
		HasUppercase:   uppercaseRegex.MatchString(password),
		HasLowercase:   lowercaseRegex.MatchString(password),
		HasNumber:      numberRegex.MatchString(password),
		HasSpecialChar: specialCharRegex.MatchString(password),
	}

	errs := []string{}
	if !req.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}
	if !req.HasUppercase {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !req.HasLowercase {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !req.HasNumber {
		errs = append(errs, "Password must contain at least one number")
	}
	if !req.HasSpecialChar {
		errs = append(errs, "Password must contain at least one special character (!@#$%^&*)")
	}

	return ValidationResult{
		IsValid:      len(errs) == 0,
		Errors:       errs,
		Requirements: req,
	}
}

// Service runs the full validation pipeline over a Store.
type Service struct {
	store    Store
	lockouts *lockout.Engine
	cfg      *sysconfig.Reader
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, lockouts *lockout.Engine, cfg *sysconfig.Reader, opts ...Option) *Service {
	s := &Service{
		store:    store,
		lockouts: lockouts,
		cfg:      cfg,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a candidate password for userID. The pipeline runs
// lockout and abuse checks before touching the password itself, rejects
// reuse inside the history window, then evaluates strength. Every
// attempt that reaches the strength check is recorded; accepted
// passwords also land in the history.
func (s *Service) Validate(ctx context.Context, userID uuid.UUID, password, ip, userAgent string) (*ValidationResult, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}

	identity := userID.String()

	locked, until, err := s.lockouts.Locked(ctx, identity)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, &LockedError{LockedUntil: until}
	}

	now := s.now()
	lockoutHours := s.cfg.Hours(ctx, sysconfig.KeyAccountLockoutHours)

	failLimit := s.cfg.Int(ctx, sysconfig.KeyFailedLoginLimit)
	failed, err := s.store.CountFailedAttempts(ctx, userID, now.Add(-abuseWindow))
	if err != nil {
		return nil, err
	}
	if failed >= failLimit {
		reason := fmt.Sprintf("too many failed password validation attempts (%d+)", failLimit)
		lockedUntil, err := s.lockouts.Lock(ctx, identity, reason, ip, lockoutHours)
		if err != nil {
			return nil, err
		}
		s.log.WarnContext(ctx, "account locked after failed attempts",
			logger.UserID(userID), slog.Int("failed_count", failed))
		return nil, &LockedError{LockedUntil: lockedUntil, Reason: reason}
	}

	changeLimit := s.cfg.Int(ctx, sysconfig.KeyPasswordChangeLimit)
	changes, err := s.store.CountChanges(ctx, userID, now.Add(-abuseWindow))
	if err != nil {
		return nil, err
	}
	if changes >= changeLimit {
		reason := fmt.Sprintf("too many password changes (more than %d in 24h)", changeLimit)
		lockedUntil, err := s.lockouts.Lock(ctx, identity, reason, ip, lockoutHours)
		if err != nil {
			return nil, err
		}
		s.log.WarnContext(ctx, "account locked after change frequency limit",
			logger.UserID(userID), slog.Int("change_count", changes))
		return nil, &LockedError{LockedUntil: lockedUntil, Reason: reason}
	}

	historyHours := s.cfg.Int(ctx, sysconfig.KeyPasswordHistoryHours)
	hash := codes.HashRaw(password)
	recent, err := s.store.ListRecentHashes(ctx, userID, now.Add(-time.Duration(historyHours)*time.Hour))
	if err != nil {
		return nil, err
	}
	if slices.Contains(recent, hash) {
		return nil, &ReusedError{WindowHours: historyHours}
	}

	result := CheckRequirements(password)

	if err := s.store.RecordAttempt(ctx, ChangeAttempt{
		UserID:      userID,
		IP:          ip,
		Success:     result.IsValid,
		AttemptedAt: now,
	}); err != nil {
		return nil, err
	}

	if result.IsValid {
		if err := s.store.InsertHistory(ctx, HistoryEntry{
			UserID:       userID,
			PasswordHash: hash,
			IP:           ip,
			UserAgent:    userAgent,
			ChangedAt:    now,
		}); err != nil {
			return nil, err
		}
	}

	return &result, nil
}
