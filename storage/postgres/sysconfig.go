package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/pkg/pg"
	"github.com/nannyagent/authcore/pkg/sysconfig"
)

// ConfigStore implements sysconfig.Store over the system_config table.
type ConfigStore struct {
	pool *pgxpool.Pool
}

var _ sysconfig.Store = (*ConfigStore)(nil)

func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

func (s *ConfigStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", sysconfig.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set upserts a config value. Operator tooling only; the auth paths never
// write config.
func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}
