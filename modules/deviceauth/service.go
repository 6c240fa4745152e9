// Package deviceauth implements the OAuth-style device pairing flow:
// a device requests a code pair, a human approves the user code, and the
// device exchanges its device code for agent credentials.
package deviceauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/nannyagent/authcore/pkg/codes"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/logger"
	"github.com/nannyagent/authcore/pkg/mailer"
	"github.com/nannyagent/authcore/pkg/sysconfig"
)

var userCodeFormat = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// GrantTypeDeviceCode is the RFC 8628 device grant URN.
const GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

const defaultScope = "agent:register"

// Service drives the pairing state machine over a Store.
type Service struct {
	store    Store
	lockouts *lockout.Engine
	cfg      *sysconfig.Reader
	provider identity.Provider
	mail     mailer.Sender
	log      *slog.Logger
	now      func() time.Time

	verificationURI string
}

// Option configures a Service.
type Option func(*Service)

// WithMailer enables the best-effort pairing notification email.
func WithMailer(m mailer.Sender) Option {
	return func(s *Service) { s.mail = m }
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

// WithVerificationURI sets the URI returned to devices for the human
// approval step.
func WithVerificationURI(uri string) Option {
	return func(s *Service) {
		if uri != "" {
			s.verificationURI = uri
		}
	}
}

// NewService wires the pairing flow together.
func NewService(store Store, lockouts *lockout.Engine, cfg *sysconfig.Reader, provider identity.Provider, opts ...Option) *Service {
	s := &Service{
		store:           store,
		lockouts:        lockouts,
		cfg:             cfg,
		provider:        provider,
		log:             slog.New(slog.DiscardHandler),
		now:             time.Now,
		verificationURI: "https://app.nannyagent.dev/device/verify",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthorizeResult is returned to the device requesting pairing. DeviceCode
// is shown raw exactly once; only its hash is stored.
type AuthorizeResult struct {
	DeviceCode      string   `json:"device_code"`
	UserCode        string   `json:"user_code"`
	VerificationURI string   `json:"verification_uri"`
	ExpiresIn       int      `json:"expires_in"`
	Interval        int      `json:"interval"`
	Scopes          []string `json:"-"`
}

// Authorize creates a pending session. Unauthenticated: the security
// boundary is the human approval, not code issuance.
func (s *Service) Authorize(ctx context.Context, clientID string, scopes []string) (*AuthorizeResult, error) {
	if clientID == "" {
		clientID = "unknown"
	}
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}

	deviceCode, err := codes.DeviceCode()
	if err != nil {
		return nil, err
	}
	userCode, err := codes.UserCode()
	if err != nil {
		return nil, err
	}

	ttl := int(s.cfg.Seconds(ctx, sysconfig.KeyDeviceSessionTTLSeconds).Seconds())
	interval := int(s.cfg.Seconds(ctx, sysconfig.KeyDevicePollIntervalSeconds).Seconds())

	now := s.now()
	session := &Session{
		ID:              uuid.New(),
		DeviceCodeHash:  codes.HashDeviceCode(deviceCode),
		UserCode:        userCode,
		ClientID:        clientID,
		Scopes:          scopes,
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(ttl) * time.Second),
		IntervalSeconds: interval,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURI: s.verificationURI,
		ExpiresIn:       ttl,
		Interval:        interval,
		Scopes:          scopes,
	}, nil
}

// ApproveResult reports the provisioned agent.
type ApproveResult struct {
	AgentID   uuid.UUID
	AgentName string
	Hostname  string
}

// Approve consumes a user code on behalf of the authenticated human and
// provisions the agent identity. The ordering is load-bearing: format and
// limiter checks precede any session read, expiry never counts as a
// failure, and the consumption insert is the last write so its unique
// constraint settles concurrent approvals.
func (s *Service) Approve(ctx context.Context, approver *identity.Identity, userCode, clientID, ip, userAgent string) (*ApproveResult, error) {
	if !userCodeFormat.MatchString(userCode) {
		return nil, ErrInvalidCodeFormat
	}

	devIdentity := clientID + ":" + ip
	allowed, count, err := s.lockouts.Allowed(ctx, devIdentity, lockout.DeviceApprove)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &RateLimitError{
			AttemptCount: count,
			Limit:        s.cfg.Int(ctx, sysconfig.KeyDeviceFailLimit),
		}
	}

	meta := lockout.FailureMeta{UserCode: userCode, IP: ip, UserAgent: userAgent}

	session, err := s.store.GetPendingByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			if _, ferr := s.lockouts.Fail(ctx, devIdentity, lockout.DeviceApprove, meta); ferr != nil {
				s.log.ErrorContext(ctx, "failed to record approval failure", logger.Error(ferr), logger.ClientID(clientID))
			}
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	// Expiry is not an attack signal; no failure is recorded.
	if session.ExpiresAt.Before(s.now()) {
		return nil, ErrSessionExpired
	}

	if consumed, err := s.store.GetConsumption(ctx, userCode); err != nil {
		return nil, err
	} else if consumed != nil {
		return nil, &CodeConsumedError{AgentID: consumed.AgentID}
	}

	hostname := DeriveHostname(session.ClientID)
	base := SanitizeHostname(hostname)
	taken, err := s.store.ListAgentNames(ctx, approver.ID, base)
	if err != nil {
		return nil, err
	}
	agentName := uniqueName(base, taken)

	agentEmail := fmt.Sprintf("agent-%s@nannyagent.internal", session.ID)
	agentPassword, err := codes.DeviceCode()
	if err != nil {
		return nil, err
	}

	agent, err := s.provider.CreateAgentUser(ctx, agentEmail, agentPassword, identity.AgentMetadata{
		AuthorizedBy:    approver.ID,
		DeviceSessionID: session.ID,
		ClientID:        session.ClientID,
		Hostname:        base,
		AgentName:       agentName,
	})
	if err != nil {
		return nil, err
	}

	rollback := func() {
		if derr := s.store.DeleteAgent(ctx, agent.ID); derr != nil {
			s.log.ErrorContext(ctx, "rollback: failed to delete agent record", logger.Error(derr))
		}
		if derr := s.provider.DeleteUser(ctx, agent.ID); derr != nil {
			s.log.ErrorContext(ctx, "rollback: failed to delete agent identity", logger.Error(derr))
		}
	}

	now := s.now()
	if err := s.store.CreateAgent(ctx, Agent{
		ID:        agent.ID,
		Owner:     approver.ID,
		Name:      agentName,
		Hostname:  base,
		ClientID:  session.ClientID,
		Status:    "active",
		CreatedAt: now,
	}); err != nil {
		if derr := s.provider.DeleteUser(ctx, agent.ID); derr != nil {
			s.log.ErrorContext(ctx, "rollback: failed to delete agent identity", logger.Error(derr))
		}
		return nil, err
	}

	if err := s.store.MarkApproved(ctx, session.ID, approver.ID, agent.ID, agentEmail, agentPassword, now); err != nil {
		rollback()
		return nil, err
	}

	err = s.store.InsertConsumption(ctx, Consumption{UserCode: userCode, AgentID: agent.ID, ConsumedAt: now})
	if err != nil {
		rollback()
		if errors.Is(err, ErrCodeConsumed) {
			// Lost the race; report the winner.
			winner := uuid.Nil
			if consumed, cerr := s.store.GetConsumption(ctx, userCode); cerr == nil && consumed != nil {
				winner = consumed.AgentID
			}
			return nil, &CodeConsumedError{AgentID: winner}
		}
		return nil, err
	}

	s.notifyPaired(ctx, approver, agentName, base)

	s.log.InfoContext(ctx, "device approved",
		logger.UserID(approver.ID),
		logger.ClientID(session.ClientID),
		slog.String("agent_name", agentName))

	return &ApproveResult{AgentID: agent.ID, AgentName: agentName, Hostname: base}, nil
}

// notifyPaired sends the security notification to the approving user.
// Best effort: delivery failure never fails the approval.
func (s *Service) notifyPaired(ctx context.Context, approver *identity.Identity, agentName, hostname string) {
	if s.mail == nil || approver.Email == "" {
		return
	}
	err := s.mail.Send(ctx, mailer.Message{
		To:      approver.Email,
		Subject: "New agent paired to your fleet",
		BodyHTML: fmt.Sprintf(
			"<p>A new agent <strong>%s</strong> (hostname %s) was just paired to your account. If this wasn't you, revoke it immediately.</p>",
			agentName, hostname),
		Tag: "agent-paired",
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to send pairing notification", logger.Error(err), logger.UserID(approver.ID))
	}
}

// TokenResponse is the OAuth-shaped reply to the polling device.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	Scope        []string  `json:"scope,omitempty"`
	AgentID      uuid.UUID `json:"agent_id"`
	UserID       uuid.UUID `json:"user_id"`
}

// ExchangeDeviceCode trades a raw device code for agent tokens. Possession
// of the code is the only credential; the stored transient password is
// cleared after the first successful sign-in.
func (s *Service) ExchangeDeviceCode(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	if deviceCode == "" {
		return nil, fmt.Errorf("%w: device_code is required", ErrInvalidRequest)
	}

	session, err := s.store.GetByDeviceCodeHash(ctx, codes.HashDeviceCode(deviceCode))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if session.ExpiresAt.Before(s.now()) {
		return nil, ErrSessionExpired
	}
	if session.Status != StatusApproved {
		return nil, ErrAuthorizationPending
	}
	if session.AgentEmail == "" || session.AgentPassword == "" {
		return nil, ErrCredentialsConsumed
	}

	pair, agent, err := s.provider.SignInWithPassword(ctx, session.AgentEmail, session.AgentPassword)
	if err != nil {
		return nil, err
	}

	if err := s.store.ClearAgentPassword(ctx, session.ID); err != nil {
		s.log.ErrorContext(ctx, "failed to clear agent password", logger.Error(err))
	}

	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        session.Scopes,
		AgentID:      agent.ID,
		UserID:       agent.ID,
	}, nil
}

// Refresh rotates a refresh token. No pairing logic is involved.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}
	pair, who, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		AgentID:      who.ID,
		UserID:       who.ID,
	}, nil
}
