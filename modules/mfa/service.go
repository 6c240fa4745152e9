// Package mfa manages TOTP enrollment and verification with a durable
// per-user failure ledger behind it.
package mfa

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nannyagent/authcore/pkg/codes"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/logger"
	"github.com/nannyagent/authcore/pkg/qrcode"
	"github.com/nannyagent/authcore/pkg/sysconfig"
	"github.com/nannyagent/authcore/pkg/totp"
)

var totpCodeFormat = regexp.MustCompile(`^\d{6}$`)

// Service implements the MFA actions over a Store.
type Service struct {
	store    Store
	lockouts *lockout.Engine
	cfg      *sysconfig.Reader
	issuer   string
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the issuer shown in authenticator apps.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

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
		issuer:   "NannyAgent",
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupResult carries fresh, not-yet-persisted enrollment material. The
// client must confirm with a live code before anything is stored.
type SetupResult struct {
	TOTPSecret       string   `json:"totp_secret"`
	BackupCodes      []string `json:"backup_codes"`
	BackupCodesCount int      `json:"backup_codes_count"`
	OTPAuthURI       string   `json:"otpauth_uri"`
	QRCode           string   `json:"qr_code"`
}

// Setup generates a secret and backup codes. Nothing is persisted until
// Confirm proves the user's authenticator produces matching codes.
func (s *Service) Setup(ctx context.Context, user *identity.Identity) (*SetupResult, error) {
	secret, err := codes.TOTPSecret()
	if err != nil {
		return nil, err
	}

	count := s.cfg.Int(ctx, sysconfig.KeyBackupCodesCount)
	backupCodes, err := codes.BackupCodes(count)
	if err != nil {
		return nil, err
	}

	uri, err := totp.URI(totp.Params{Secret: secret, AccountName: user.Email, Issuer: s.issuer})
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.GenerateBase64Image(uri, 256)
	if err != nil {
		return nil, err
	}

	return &SetupResult{
		TOTPSecret:       secret,
		BackupCodes:      backupCodes,
		BackupCodesCount: count,
		OTPAuthURI:       uri,
		QRCode:           qr,
	}, nil
}

// Confirm enables MFA after verifying a live code against the supplied
// secret. Prior backup code usage is wiped so the new set starts clean.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, secret, code string, backupCodes []string) error {
	if secret == "" {
		return ErrSecretRequired
	}
	if code == "" {
		return ErrCodeRequired
	}
	if len(backupCodes) == 0 {
		return ErrBackupCodesRequired
	}
	if !totp.VerifyAt(code, secret, totp.DefaultWindow, s.now()) {
		return ErrInvalidTOTPCode
	}

	hashes := make([]string, len(backupCodes))
	for i, c := range backupCodes {
		hashes[i] = codes.HashCode(c)
	}

	if err := s.store.DeleteUsage(ctx, userID); err != nil {
		return err
	}
	if err := s.store.UpsertSettings(ctx, Settings{
		UserID:           userID,
		Enabled:          true,
		TOTPSecret:       secret,
		BackupCodeHashes: hashes,
		UpdatedAt:        s.now(),
	}); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "mfa enabled", logger.UserID(userID))
	return nil
}

// VerifyTOTP checks a code, optionally against a caller-supplied secret
// (the pre-confirmation path). A wrong code is (false, nil): only
// transport and policy failures are errors.
func (s *Service) VerifyTOTP(ctx context.Context, userID uuid.UUID, code, secret, ip, userAgent string) (bool, error) {
	if err := s.checkLocked(ctx, userID); err != nil {
		return false, err
	}
	if !totpCodeFormat.MatchString(code) {
		return false, ErrInvalidTOTPFormat
	}

	if secret == "" {
		settings, err := s.store.GetSettings(ctx, userID)
		if err != nil || !settings.Enabled || settings.TOTPSecret == "" {
			return false, ErrNotEnabled
		}
		secret = settings.TOTPSecret
	}

	if totp.VerifyAt(code, secret, totp.DefaultWindow, s.now()) {
		return true, nil
	}

	if err := s.recordFailure(ctx, userID, lockout.VerifyTOTP, ip, userAgent); err != nil {
		return false, err
	}
	return false, nil
}

// VerifyBackupCode spends a backup code. Reuse counts as a failed attempt
// on top of being rejected.
func (s *Service) VerifyBackupCode(ctx context.Context, userID uuid.UUID, code, ip, userAgent string) (int, error) {
	if err := s.checkLocked(ctx, userID); err != nil {
		return 0, err
	}
	if code == "" {
		return 0, ErrCodeRequired
	}

	// No shape check beyond presence: a malformed guess against an
	// enrolled user still counts as a failed attempt below.
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil || !settings.Enabled || len(settings.BackupCodeHashes) == 0 {
		return 0, ErrNotEnabled
	}

	hash := codes.HashCode(code)

	used, err := s.store.ListUsedCodeHashes(ctx, userID)
	if err != nil {
		return 0, err
	}
	if slices.Contains(used, hash) {
		if err := s.recordFailure(ctx, userID, lockout.VerifyBackupCode, ip, userAgent); err != nil {
			return 0, err
		}
		return 0, ErrBackupCodeReused
	}

	idx := slices.Index(settings.BackupCodeHashes, hash)
	if idx < 0 {
		if err := s.recordFailure(ctx, userID, lockout.VerifyBackupCode, ip, userAgent); err != nil {
			return 0, err
		}
		return 0, ErrInvalidBackupCode
	}

	if err := s.store.InsertUsage(ctx, BackupCodeUsage{
		UserID:    userID,
		CodeHash:  hash,
		CodeIndex: idx,
		IP:        ip,
		UserAgent: userAgent,
		UsedAt:    s.now(),
	}); err != nil {
		return 0, err
	}

	remaining := len(settings.BackupCodeHashes) - len(used) - 1
	return remaining, nil
}

// Disable turns MFA off and wipes all backup code state. Idempotent.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DisableSettings(ctx, userID, s.now()); err != nil {
		return err
	}
	if err := s.store.DeleteUsage(ctx, userID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "mfa disabled", logger.UserID(userID))
	return nil
}

// CheckBackupCodes reports how many backup codes are still unspent.
func (s *Service) CheckBackupCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil || !settings.Enabled || len(settings.BackupCodeHashes) == 0 {
		return 0, ErrNotEnabled
	}
	used, err := s.store.ListUsedCodeHashes(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(settings.BackupCodeHashes) - len(used), nil
}

func (s *Service) checkLocked(ctx context.Context, userID uuid.UUID) error {
	locked, until, err := s.lockouts.Locked(ctx, userID.String())
	if err != nil {
		return err
	}
	if locked {
		return &LockedError{LockedUntil: until}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, userID uuid.UUID, policy lockout.Policy, ip, userAgent string) error {
	status, err := s.lockouts.Fail(ctx, userID.String(), policy, lockout.FailureMeta{IP: ip, UserAgent: userAgent})
	if err != nil {
		return err
	}
	if status.Locked {
		return &LockedError{LockedUntil: status.LockedUntil, FailCount: status.FailCount}
	}
	return nil
}
