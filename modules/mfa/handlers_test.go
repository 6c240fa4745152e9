package mfa_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nannyagent/authcore/modules/mfa"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/sysconfig"
	"github.com/nannyagent/authcore/pkg/totp"
)

func newServer(t *testing.T) (*httptest.Server, *identity.Service) {
	t.Helper()

	store := mfa.NewMemoryStore()
	cfg := sysconfig.NewReader(mapConfigStore{})
	idStorage := identity.NewMemoryStorage()
	provider, err := identity.NewService(identity.Config{
		SigningKey:      "mfa-handler-test-signing-key-32b!!!!",
		Issuer:          "authcore-test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}, idStorage, identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	engine := lockout.NewEngine(lockout.NewMemoryStore(), cfg)
	svc := mfa.NewService(store, engine, cfg)

	srv := httptest.NewServer(svc.Router(identity.Middleware(provider)))
	t.Cleanup(srv.Close)
	return srv, provider
}

func signIn(t *testing.T, provider *identity.Service, email string) string {
	t.Helper()
	_, err := provider.CreateUser(t.Context(), email, "pw")
	require.NoError(t, err)
	pair, _, err := provider.SignInWithPassword(t.Context(), email, "pw")
	require.NoError(t, err)
	return pair.AccessToken
}

func post(t *testing.T, srv *httptest.Server, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest("POST", srv.URL+"/mfa", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHTTP_SetupConfirmVerify(t *testing.T) {
	t.Parallel()

	srv, provider := newServer(t)
	token := signIn(t, provider, "owner@example.com")

	resp, setup := post(t, srv, token, `{"action":"setup"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secret := setup["totp_secret"].(string)
	require.NotEmpty(t, secret)
	backupCodes := setup["backup_codes"].([]any)
	assert.Len(t, backupCodes, 8)
	assert.Contains(t, setup["otpauth_uri"], "otpauth://totp/")
	assert.Contains(t, setup["qr_code"], "data:image/png;base64,")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	codesJSON, err := json.Marshal(backupCodes)
	require.NoError(t, err)
	resp, body := post(t, srv, token,
		`{"action":"confirm","totp_secret":"`+secret+`","totp_code":"`+code+`","backup_codes":`+string(codesJSON)+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, body = post(t, srv, token, `{"action":"verify-totp","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	// Wrong code is a negative verification, not an error response.
	resp, body = post(t, srv, token, `{"action":"verify-totp","code":"000000"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])

	resp, body = post(t, srv, token, `{"action":"verify-backup-code","code":"AAAAAAAA"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_code", body["error"])

	resp, body = post(t, srv, token,
		`{"action":"verify-backup-code","code":"`+backupCodes[0].(string)+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.EqualValues(t, 7, body["remaining"])

	resp, body = post(t, srv, token, `{"action":"check-backup-codes"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 7, body["remaining"])

	resp, body = post(t, srv, token,
		`{"action":"verify-backup-code","code":"`+backupCodes[0].(string)+`"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "code_already_used", body["error"])

	resp, body = post(t, srv, token, `{"action":"disable"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = post(t, srv, token, `{"action":"verify-totp","code":"123456"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "mfa_not_enabled", body["error"])
}

func TestHTTP_AuthRequired(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	resp, body := post(t, srv, "", `{"action":"setup"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestHTTP_AgentsForbidden(t *testing.T) {
	t.Parallel()

	srv, provider := newServer(t)
	_, err := provider.CreateAgentUser(t.Context(), "agent@nannyagent.internal", "pw", identity.AgentMetadata{})
	require.NoError(t, err)
	pair, _, err := provider.SignInWithPassword(t.Context(), "agent@nannyagent.internal", "pw")
	require.NoError(t, err)

	resp, body := post(t, srv, pair.AccessToken, `{"action":"setup"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["error"])
}

func TestHTTP_UnknownAction(t *testing.T) {
	t.Parallel()

	srv, provider := newServer(t)
	token := signIn(t, provider, "owner@example.com")

	resp, body := post(t, srv, token, `{"action":"frobnicate"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestHTTP_ValidationErrors(t *testing.T) {
	t.Parallel()

	srv, provider := newServer(t)
	token := signIn(t, provider, "owner@example.com")

	resp, body := post(t, srv, token, `{"action":"confirm","code":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	resp, body = post(t, srv, token, `{"action":"verify-totp","code":"12ab56"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestHTTP_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv, provider := newServer(t)
	token := signIn(t, provider, "owner@example.com")

	resp, body := post(t, srv, token, `{"action":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", body["error"])
}
