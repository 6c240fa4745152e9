package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Roles carried in access-token claims. Agents are machine accounts created
// by the device pairing flow; they can never manage a human's MFA or
// password.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Identity is the authenticated principal behind a bearer token.
type Identity struct {
	ID       uuid.UUID
	Email    string
	Role     string
	Metadata map[string]string
}

// IsAgent reports whether the identity is a machine account.
func (i *Identity) IsAgent() bool {
	return i.Role == RoleAgent
}

// TokenPair is the OAuth-shaped credential set returned by sign-in and
// refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// AgentMetadata tags a synthetic agent account with its provenance.
type AgentMetadata struct {
	AuthorizedBy    uuid.UUID
	DeviceSessionID uuid.UUID
	ClientID        string
	Hostname        string
	AgentName       string
}

// Provider is the identity-provider surface the authentication core needs.
// Everything else about account management is out of scope here.
type Provider interface {
	// VerifyAccessToken validates a bearer token and returns its principal.
	VerifyAccessToken(ctx context.Context, token string) (*Identity, error)

	// CreateAgentUser provisions a machine account with the given
	// transient password. The password is only ever used once, by the
	// device flow's token exchange.
	CreateAgentUser(ctx context.Context, email, password string, meta AgentMetadata) (*Identity, error)

	// DeleteUser removes an account. Used to compensate partial agent
	// provisioning.
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// SignInWithPassword exchanges credentials for a token pair.
	SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, *Identity, error)

	// RefreshSession rotates a refresh token into a fresh token pair.
	RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, *Identity, error)
}

// BearerToken extracts the token from an Authorization header. The second
// return is false when the header is missing or not a Bearer scheme.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}
