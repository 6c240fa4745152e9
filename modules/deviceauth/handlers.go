package deviceauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nannyagent/authcore/core"
	"github.com/nannyagent/authcore/pkg/clientip"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/logger"
)

// Router mounts the device flow. The approve and cleanup endpoints sit
// behind the bearer middleware; authorize and token are open by design
// (possession of the device code is the credential).
func (s *Service) Router(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(core.CORS)

	r.Post("/device/authorize", s.handleAuthorize)
	r.Post("/token", s.handleToken)

	r.Group(func(pr chi.Router) {
		pr.Use(authn)
		pr.Post("/device/approve", s.handleApprove)
		pr.Post("/device/cleanup", s.handleCleanup)
	})

	return r
}

type authorizeRequest struct {
	ClientID string   `json:"client_id"`
	Scope    []string `json:"scope"`
}

func (s *Service) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		return
	}

	result, err := s.Authorize(r.Context(), req.ClientID, req.Scope)
	if err != nil {
		s.log.ErrorContext(r.Context(), "authorize failed", logger.Error(err), logger.ClientID(req.ClientID))
		core.Internal(w)
		return
	}
	core.JSON(w, http.StatusOK, result)
}

type approveRequest struct {
	UserCode string `json:"user_code"`
}

func (s *Service) handleApprove(w http.ResponseWriter, r *http.Request) {
	approver, ok := identity.FromContext(r.Context())
	if !ok {
		core.Error(w, http.StatusUnauthorized, "unauthorized", "Bearer token required")
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		return
	}
	if req.UserCode == "" {
		core.Error(w, http.StatusBadRequest, "invalid_request", "user_code is required")
		return
	}

	clientID := r.Header.Get("x-client-id")
	if clientID == "" {
		clientID = "unknown-client"
	}
	ip := clientip.Get(r)

	result, err := s.Approve(r.Context(), approver, req.UserCode, clientID, ip, r.UserAgent())
	if err != nil {
		s.writeApproveError(w, r, err)
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Device approved successfully",
		"agent_id":   result.AgentID,
		"agent_name": result.AgentName,
		"hostname":   result.Hostname,
	})
}

func (s *Service) writeApproveError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *RateLimitError
	var consumedErr *CodeConsumedError

	switch {
	case errors.Is(err, ErrInvalidCodeFormat):
		core.Error(w, http.StatusBadRequest, "invalid_code_format", err.Error())
	case errors.As(err, &rateErr):
		core.ErrorWith(w, http.StatusTooManyRequests, "rate_limit_exceeded", rateErr.Error(), map[string]any{
			"attempt_count": rateErr.AttemptCount,
		})
	case errors.Is(err, ErrSessionNotFound):
		core.Error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrSessionExpired):
		core.Error(w, http.StatusBadRequest, "expired_token", err.Error())
	case errors.As(err, &consumedErr):
		core.ErrorWith(w, http.StatusBadRequest, "code_already_used", consumedErr.Error(), map[string]any{
			"consumed_by_agent": consumedErr.AgentID,
		})
	default:
		s.log.ErrorContext(r.Context(), "approve failed", logger.Error(err))
		core.Internal(w)
	}
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	DeviceCode   string `json:"device_code"`
	RefreshToken string `json:"refresh_token"`
}

// parseTokenRequest accepts JSON or form encoding; device CLIs tend to
// send whichever their HTTP library defaults to.
func parseTokenRequest(r *http.Request) tokenRequest {
	var req tokenRequest
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		_ = r.ParseForm()
		req.GrantType = r.PostForm.Get("grant_type")
		req.DeviceCode = r.PostForm.Get("device_code")
		req.RefreshToken = r.PostForm.Get("refresh_token")
		return req
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req
}

func (s *Service) handleToken(w http.ResponseWriter, r *http.Request) {
	req := parseTokenRequest(r)

	var resp *TokenResponse
	var err error
	switch req.GrantType {
	case GrantTypeDeviceCode:
		resp, err = s.ExchangeDeviceCode(r.Context(), req.DeviceCode)
	case "refresh_token":
		resp, err = s.Refresh(r.Context(), req.RefreshToken)
	default:
		core.Error(w, http.StatusBadRequest, "unsupported_grant_type", ErrUnsupportedGrantType.Error())
		return
	}

	if err != nil {
		s.writeTokenError(w, r, err)
		return
	}
	core.JSON(w, http.StatusOK, resp)
}

func (s *Service) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		core.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrInvalidGrant):
		core.Error(w, http.StatusBadRequest, "invalid_grant", "Invalid or expired token")
	case errors.Is(err, ErrSessionExpired):
		core.Error(w, http.StatusBadRequest, "expired_token", err.Error())
	case errors.Is(err, ErrAuthorizationPending):
		core.Error(w, http.StatusPreconditionRequired, "authorization_pending", err.Error())
	default:
		s.log.ErrorContext(r.Context(), "token exchange failed", logger.Error(err))
		core.Internal(w)
	}
}

func (s *Service) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.Cleanup(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "cleanup failed", logger.Error(err))
		core.Internal(w)
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Device auth cleanup completed",
		"deleted": report,
	})
}
