package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/modules/password"
)

// PasswordStore implements password.Store.
type PasswordStore struct {
	pool *pgxpool.Pool
}

var _ password.Store = (*PasswordStore)(nil)

func NewPasswordStore(pool *pgxpool.Pool) *PasswordStore {
	return &PasswordStore{pool: pool}
}

func (s *PasswordStore) RecordAttempt(ctx context.Context, attempt password.ChangeAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_change_attempts (user_id, ip, success, attempted_at)
		VALUES ($1, $2, $3, $4)`,
		attempt.UserID, attempt.IP, attempt.Success, attempt.AttemptedAt)
	return err
}

func (s *PasswordStore) CountFailedAttempts(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM password_change_attempts
		WHERE user_id = $1 AND success = false AND attempted_at > $2`,
		userID, since).Scan(&count)
	return count, err
}

func (s *PasswordStore) CountChanges(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM password_change_history
		WHERE user_id = $1 AND changed_at > $2`,
		userID, since).Scan(&count)
	return count, err
}

func (s *PasswordStore) ListRecentHashes(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT password_hash FROM password_change_history
		WHERE user_id = $1 AND changed_at > $2`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

func (s *PasswordStore) InsertHistory(ctx context.Context, entry password.HistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_change_history (user_id, password_hash, ip, user_agent, changed_by_agent, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.UserID, entry.PasswordHash, entry.IP, entry.UserAgent, entry.ChangedByAgent, entry.ChangedAt)
	return err
}
