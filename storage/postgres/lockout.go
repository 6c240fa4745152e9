package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/pg"
)

// LockoutStore implements lockout.Store. It shares the failed_attempts
// table with the device-auth sweeper, which prunes it by user code and age.
type LockoutStore struct {
	pool *pgxpool.Pool
}

var _ lockout.Store = (*LockoutStore)(nil)

func NewLockoutStore(pool *pgxpool.Pool) *LockoutStore {
	return &LockoutStore{pool: pool}
}

func (s *LockoutStore) RecordFailure(ctx context.Context, identity, action string, meta lockout.FailureMeta, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_attempts (identity, action, user_code, ip, user_agent, attempted_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`,
		identity, action, meta.UserCode, meta.IP, meta.UserAgent, at)
	return err
}

func (s *LockoutStore) CountFailures(ctx context.Context, identity, action string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM failed_attempts
		WHERE identity = $1 AND action = $2 AND attempted_at > $3`,
		identity, action, since).Scan(&count)
	return count, err
}

func (s *LockoutStore) InsertLockout(ctx context.Context, lock lockout.Lockout) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_lockouts (identity, locked_until, reason, ip, fail_count)
		VALUES ($1, $2, $3, $4, $5)`,
		lock.Identity, lock.LockedUntil, lock.Reason, lock.IP, lock.FailCount)
	return err
}

func (s *LockoutStore) ActiveLockout(ctx context.Context, identity string, now time.Time) (*lockout.Lockout, error) {
	var lock lockout.Lockout
	err := s.pool.QueryRow(ctx, `
		SELECT identity, locked_until, reason, COALESCE(ip, ''), fail_count
		FROM account_lockouts
		WHERE identity = $1 AND locked_until > $2
		ORDER BY locked_until DESC
		LIMIT 1`, identity, now).Scan(
		&lock.Identity, &lock.LockedUntil, &lock.Reason, &lock.IP, &lock.FailCount)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}
