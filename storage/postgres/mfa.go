package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/modules/mfa"
	"github.com/nannyagent/authcore/pkg/pg"
)

// MFAStore implements mfa.Store.
type MFAStore struct {
	pool *pgxpool.Pool
}

var _ mfa.Store = (*MFAStore)(nil)

func NewMFAStore(pool *pgxpool.Pool) *MFAStore {
	return &MFAStore{pool: pool}
}

func (s *MFAStore) GetSettings(ctx context.Context, userID uuid.UUID) (*mfa.Settings, error) {
	var settings mfa.Settings
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, enabled, COALESCE(totp_secret, ''), backup_code_hashes, updated_at
		FROM mfa_settings
		WHERE user_id = $1`, userID).Scan(
		&settings.UserID, &settings.Enabled, &settings.TOTPSecret,
		&settings.BackupCodeHashes, &settings.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, mfa.ErrSettingsNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *MFAStore) UpsertSettings(ctx context.Context, settings mfa.Settings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mfa_settings (user_id, enabled, totp_secret, backup_code_hashes, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			totp_secret = EXCLUDED.totp_secret,
			backup_code_hashes = EXCLUDED.backup_code_hashes,
			updated_at = EXCLUDED.updated_at`,
		settings.UserID, settings.Enabled, settings.TOTPSecret,
		settings.BackupCodeHashes, settings.UpdatedAt)
	return err
}

func (s *MFAStore) DisableSettings(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE mfa_settings
		SET enabled = false, totp_secret = NULL, backup_code_hashes = '{}', updated_at = $2
		WHERE user_id = $1`, userID, at)
	return err
}

func (s *MFAStore) ListUsedCodeHashes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code_hash FROM mfa_backup_code_usage WHERE user_id = $1`, userID)
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

func (s *MFAStore) InsertUsage(ctx context.Context, usage mfa.BackupCodeUsage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mfa_backup_code_usage (user_id, code_hash, code_index, ip, user_agent, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.UserID, usage.CodeHash, usage.CodeIndex, usage.IP, usage.UserAgent, usage.UsedAt)
	return err
}

func (s *MFAStore) DeleteUsage(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM mfa_backup_code_usage WHERE user_id = $1`, userID)
	return err
}
