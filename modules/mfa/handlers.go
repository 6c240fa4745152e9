package mfa

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nannyagent/authcore/core"
	"github.com/nannyagent/authcore/pkg/clientip"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/logger"
)

// Router mounts the MFA endpoint. All actions go through a single POST
// with an action discriminator, matching what the web client sends.
func (s *Service) Router(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(core.CORS)
	r.Group(func(pr chi.Router) {
		pr.Use(authn)
		pr.Post("/mfa", s.handleMFA)
	})
	return r
}

type mfaRequest struct {
	Action      string   `json:"action"`
	Code        string   `json:"code"`
	Secret      string   `json:"secret"`
	TOTPSecret  string   `json:"totp_secret"`
	TOTPCode    string   `json:"totp_code"`
	BackupCodes []string `json:"backup_codes"`
}

func (s *Service) handleMFA(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		core.Error(w, http.StatusUnauthorized, "unauthorized", "Bearer token required")
		return
	}
	if user.IsAgent() {
		core.Error(w, http.StatusForbidden, "forbidden", "Agents cannot manage MFA")
		return
	}

	var req mfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		return
	}

	ip := clientip.Get(r)
	ua := r.UserAgent()

	switch req.Action {
	case "setup":
		result, err := s.Setup(r.Context(), user)
		if err != nil {
			s.log.ErrorContext(r.Context(), "mfa setup failed", logger.Error(err), logger.UserID(user.ID))
			core.Internal(w)
			return
		}
		core.JSON(w, http.StatusOK, result)

	case "confirm":
		if err := s.Confirm(r.Context(), user.ID, req.TOTPSecret, req.TOTPCode, req.BackupCodes); err != nil {
			s.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "MFA enabled successfully",
		})

	case "verify-totp":
		valid, err := s.VerifyTOTP(r.Context(), user.ID, req.Code, req.Secret, ip, ua)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		// A wrong but well-formed code is a negative result, not an error.
		core.JSON(w, http.StatusOK, map[string]any{"valid": valid})

	case "verify-backup-code":
		remaining, err := s.VerifyBackupCode(r.Context(), user.ID, req.Code, ip, ua)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"valid":     true,
			"remaining": remaining,
		})

	case "disable":
		if err := s.Disable(r.Context(), user.ID); err != nil {
			s.log.ErrorContext(r.Context(), "mfa disable failed", logger.Error(err), logger.UserID(user.ID))
			core.Internal(w)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "MFA disabled successfully",
		})

	case "check-backup-codes":
		remaining, err := s.CheckBackupCodes(r.Context(), user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"remaining": remaining})

	default:
		core.Error(w, http.StatusBadRequest, "invalid_request", ErrUnknownAction.Error())
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var lockedErr *LockedError

	switch {
	case errors.As(err, &lockedErr):
		core.ErrorWith(w, http.StatusTooManyRequests, "mfa_locked", lockedErr.Error(), map[string]any{
			"locked_until": lockedErr.LockedUntil,
		})
	case errors.Is(err, ErrSecretRequired),
		errors.Is(err, ErrCodeRequired),
		errors.Is(err, ErrBackupCodesRequired),
		errors.Is(err, ErrInvalidTOTPFormat):
		core.Error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, ErrInvalidTOTPCode):
		core.Error(w, http.StatusUnauthorized, "invalid_code", err.Error())
	case errors.Is(err, ErrInvalidBackupCode):
		core.Error(w, http.StatusBadRequest, "invalid_code", err.Error())
	case errors.Is(err, ErrBackupCodeReused):
		core.Error(w, http.StatusBadRequest, "code_already_used", err.Error())
	case errors.Is(err, ErrNotEnabled), errors.Is(err, ErrSettingsNotFound):
		core.Error(w, http.StatusNotFound, "mfa_not_enabled", ErrNotEnabled.Error())
	default:
		s.log.ErrorContext(r.Context(), "mfa action failed", logger.Error(err))
		core.Internal(w)
	}
}
