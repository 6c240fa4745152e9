package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nannyagent/authcore/pkg/jwt"
)

// Config holds the environment-sourced settings of the built-in provider.
// These are connection-level secrets, not security policy; policy lives in
// sysconfig rows.
type Config struct {
	SigningKey      string        `env:"AUTH_JWT_SIGNING_KEY,required"`
	Issuer          string        `env:"AUTH_JWT_ISSUER" envDefault:"authcore"`
	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"720h"`
}

type accessClaims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Service is the built-in Provider implementation.
type Service struct {
	storage    Storage
	tokens     *jwt.Service
	cfg        Config
	bcryptCost int
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBcryptCost overrides the password hashing cost. Tests use
// bcrypt.MinCost to stay fast.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithServiceClock overrides the time source. Test hook.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a Provider backed by storage and cfg.SigningKey.
func NewService(cfg Config, storage Storage, opts ...ServiceOption) (*Service, error) {
	tokens, err := jwt.New(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	s := &Service{
		storage:    storage,
		tokens:     tokens,
		cfg:        cfg,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*Identity, error) {
	var claims accessClaims
	if err := s.tokens.Parse(token, &claims); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

// CreateUser registers a human account.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Role:         RoleUser,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &Identity{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *Service) CreateAgentUser(ctx context.Context, email, password string, meta AgentMetadata) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Role:         RoleAgent,
		PasswordHash: hash,
		Metadata: map[string]string{
			"authorized_by":     meta.AuthorizedBy.String(),
			"device_session_id": meta.DeviceSessionID.String(),
			"client_id":         meta.ClientID,
			"hostname":          meta.Hostname,
			"agent_name":        meta.AgentName,
			"created_via":       "device_flow",
		},
		CreatedAt: s.now(),
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &Identity{ID: user.ID, Email: user.Email, Role: user.Role, Metadata: user.Metadata}, nil
}

func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.storage.DeleteUser(ctx, id)
}

func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, *Identity, error) {
	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn comparable time so a missing account is not
			// distinguishable from a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	return s.issuePair(ctx, user)
}

func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, *Identity, error) {
	userID, err := s.storage.ConsumeRefreshToken(ctx, hashToken(refreshToken), s.now())
	if err != nil {
		return nil, nil, errors.Join(ErrInvalidRefreshToken, err)
	}
	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.issuePair(ctx, user)
}

func (s *Service) issuePair(ctx context.Context, user *User) (*TokenPair, *Identity, error) {
	now := s.now()
	access, err := s.tokens.Generate(accessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.Issuer,
			ExpiresAt: now.Add(s.cfg.AccessTokenTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: user.Email,
		Role:  user.Role,
	})
	if err != nil {
		return nil, nil, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	if err := s.storage.StoreRefreshToken(ctx, hashToken(refresh), user.ID, now.Add(s.cfg.RefreshTokenTTL)); err != nil {
		return nil, nil, err
	}

	pair := &TokenPair{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
	}
	return pair, &Identity{ID: user.ID, Email: user.Email, Role: user.Role, Metadata: user.Metadata}, nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used only to
// equalize timing on unknown-account sign-ins.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashToken stores refresh tokens the same way device codes are stored:
// only the digest ever reaches the database.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
