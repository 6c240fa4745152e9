package password

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

// Router mounts the validation endpoint behind the bearer middleware.
func (s *Service) Router(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(core.CORS)
	r.Group(func(pr chi.Router) {
		pr.Use(authn)
		pr.Post("/password/validate", s.handleValidate)
	})
	return r
}

type validateRequest struct {
	Password string `json:"password"`
}

func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		core.Error(w, http.StatusUnauthorized, "unauthorized", "Bearer token required")
		return
	}
	if user.IsAgent() {
		core.Error(w, http.StatusForbidden, "forbidden", "Agents cannot change user passwords")
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		return
	}

	result, err := s.Validate(r.Context(), user.ID, req.Password, clientip.Get(r), r.UserAgent())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.IsValid {
		status = http.StatusBadRequest
	}
	core.JSON(w, status, result)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var lockedErr *LockedError
	var reusedErr *ReusedError

	switch {
	case errors.Is(err, ErrPasswordRequired):
		core.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &lockedErr):
		core.ErrorWith(w, http.StatusTooManyRequests, "account_locked", lockedErr.Error(), map[string]any{
			"locked_until": lockedErr.LockedUntil,
		})
	case errors.As(err, &reusedErr):
		core.Error(w, http.StatusBadRequest, "password_reused", reusedErr.Error())
	default:
		s.log.ErrorContext(r.Context(), "password validation failed", logger.Error(err))
		core.Internal(w)
	}
}
