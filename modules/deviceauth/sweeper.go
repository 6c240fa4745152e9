package deviceauth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nannyagent/authcore/pkg/logger"
)

// Retention buffer past expiry before a session is swept, and the age at
// which failure rows stop mattering for rate limiting.
const (
	sweepRetention      = 10 * time.Minute
	failedAttemptMaxAge = 24 * time.Hour
)

// CleanupReport counts what the sweep removed, per category.
type CleanupReport struct {
	Sessions              int `json:"sessions"`
	RelatedFailedAttempts int `json:"related_failed_attempts"`
	OldFailedAttempts     int `json:"old_failed_attempts"`
	Total                 int `json:"total"`
}

// Cleanup deletes never-approved sessions expired beyond the retention
// buffer, their related failure rows, and all failure rows older than 24h.
// Approved sessions are kept for audit. Best effort: each step logs its
// own failure and the sweep continues.
func (s *Service) Cleanup(ctx context.Context) (*CleanupReport, error) {
	now := s.now()
	report := &CleanupReport{}

	expired, err := s.store.ListExpiredUnapproved(ctx, now.Add(-sweepRetention))
	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		ids := make([]uuid.UUID, len(expired))
		userCodes := make([]string, len(expired))
		for i, session := range expired {
			ids[i] = session.ID
			userCodes[i] = session.UserCode
		}

		if n, err := s.store.DeleteSessions(ctx, ids); err != nil {
			s.log.ErrorContext(ctx, "sweep: failed to delete expired sessions", logger.Error(err))
		} else {
			report.Sessions = n
		}

		if n, err := s.store.DeleteFailedAttemptsByUserCodes(ctx, userCodes); err != nil {
			s.log.ErrorContext(ctx, "sweep: failed to delete related failed attempts", logger.Error(err))
		} else {
			report.RelatedFailedAttempts = n
		}
	}

	if n, err := s.store.DeleteFailedAttemptsBefore(ctx, now.Add(-failedAttemptMaxAge)); err != nil {
		s.log.ErrorContext(ctx, "sweep: failed to delete old failed attempts", logger.Error(err))
	} else {
		report.OldFailedAttempts = n
	}

	report.Total = report.Sessions + report.RelatedFailedAttempts + report.OldFailedAttempts
	s.log.InfoContext(ctx, "device auth sweep completed",
		"sessions", report.Sessions,
		"related_failed_attempts", report.RelatedFailedAttempts,
		"old_failed_attempts", report.OldFailedAttempts)
	return report, nil
}
