package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/modules/deviceauth"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/pg"
)

// DeviceAuthStore implements deviceauth.Store.
type DeviceAuthStore struct {
	pool *pgxpool.Pool
}

var _ deviceauth.Store = (*DeviceAuthStore)(nil)

func NewDeviceAuthStore(pool *pgxpool.Pool) *DeviceAuthStore {
	return &DeviceAuthStore{pool: pool}
}

func (s *DeviceAuthStore) CreateSession(ctx context.Context, session *deviceauth.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_auth_sessions
			(id, device_code_hash, user_code, client_id, scopes, status, created_at, expires_at, interval_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.DeviceCodeHash, session.UserCode, session.ClientID,
		session.Scopes, session.Status, session.CreatedAt, session.ExpiresAt, session.IntervalSeconds)
	return err
}

const sessionColumns = `
	id, device_code_hash, user_code, client_id, scopes, status,
	created_at, expires_at, interval_seconds,
	approved_by, approved_at, agent_id, agent_email, agent_password`

func (s *DeviceAuthStore) scanSession(row interface{ Scan(dest ...any) error }) (*deviceauth.Session, error) {
	var session deviceauth.Session
	var approvedBy, agentID *uuid.UUID
	var approvedAt *time.Time
	var agentEmail, agentPassword *string

	err := row.Scan(
		&session.ID, &session.DeviceCodeHash, &session.UserCode, &session.ClientID,
		&session.Scopes, &session.Status,
		&session.CreatedAt, &session.ExpiresAt, &session.IntervalSeconds,
		&approvedBy, &approvedAt, &agentID, &agentEmail, &agentPassword)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, deviceauth.ErrSessionNotFound
		}
		return nil, err
	}

	if approvedBy != nil {
		session.ApprovedBy = *approvedBy
	}
	if approvedAt != nil {
		session.ApprovedAt = *approvedAt
	}
	if agentID != nil {
		session.AgentID = *agentID
	}
	if agentEmail != nil {
		session.AgentEmail = *agentEmail
	}
	if agentPassword != nil {
		session.AgentPassword = *agentPassword
	}
	return &session, nil
}

func (s *DeviceAuthStore) GetPendingByUserCode(ctx context.Context, userCode string) (*deviceauth.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM device_auth_sessions
		WHERE user_code = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`, userCode, deviceauth.StatusPending)
	return s.scanSession(row)
}

func (s *DeviceAuthStore) GetByDeviceCodeHash(ctx context.Context, hash string) (*deviceauth.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM device_auth_sessions
		WHERE device_code_hash = $1`, hash)
	return s.scanSession(row)
}

func (s *DeviceAuthStore) MarkApproved(ctx context.Context, sessionID, approvedBy, agentID uuid.UUID, agentEmail, agentPassword string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE device_auth_sessions
		SET status = $2, approved_by = $3, approved_at = $4,
			agent_id = $5, agent_email = $6, agent_password = $7
		WHERE id = $1 AND status = $8`,
		sessionID, deviceauth.StatusApproved, approvedBy, at,
		agentID, agentEmail, agentPassword, deviceauth.StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return deviceauth.ErrSessionNotFound
	}
	return nil
}

func (s *DeviceAuthStore) ClearAgentPassword(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE device_auth_sessions SET agent_password = NULL WHERE id = $1`, sessionID)
	return err
}

func (s *DeviceAuthStore) InsertConsumption(ctx context.Context, c deviceauth.Consumption) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_code_consumption (user_code, agent_id, consumed_at)
		VALUES ($1, $2, $3)`, c.UserCode, c.AgentID, c.ConsumedAt)
	if pg.IsDuplicateKeyError(err) {
		return deviceauth.ErrCodeConsumed
	}
	return err
}

func (s *DeviceAuthStore) GetConsumption(ctx context.Context, userCode string) (*deviceauth.Consumption, error) {
	var c deviceauth.Consumption
	err := s.pool.QueryRow(ctx, `
		SELECT user_code, agent_id, consumed_at
		FROM device_code_consumption
		WHERE user_code = $1`, userCode).Scan(&c.UserCode, &c.AgentID, &c.ConsumedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *DeviceAuthStore) ListAgentNames(ctx context.Context, owner uuid.UUID, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name FROM agents
		WHERE owner = $1 AND name LIKE $2 || '%'`, owner, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *DeviceAuthStore) CreateAgent(ctx context.Context, agent deviceauth.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, owner, name, hostname, client_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agent.ID, agent.Owner, agent.Name, agent.Hostname, agent.ClientID, agent.Status, agent.CreatedAt)
	return err
}

func (s *DeviceAuthStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return err
}

func (s *DeviceAuthStore) ListExpiredUnapproved(ctx context.Context, before time.Time) ([]deviceauth.ExpiredSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_code FROM device_auth_sessions
		WHERE status <> $1 AND expires_at < $2`, deviceauth.StatusApproved, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []deviceauth.ExpiredSession
	for rows.Next() {
		var es deviceauth.ExpiredSession
		if err := rows.Scan(&es.ID, &es.UserCode); err != nil {
			return nil, err
		}
		sessions = append(sessions, es)
	}
	return sessions, rows.Err()
}

func (s *DeviceAuthStore) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM device_auth_sessions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *DeviceAuthStore) DeleteFailedAttemptsByUserCodes(ctx context.Context, userCodes []string) (int, error) {
	if len(userCodes) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM failed_attempts WHERE action = $1 AND user_code = ANY($2)`,
		lockout.ActionDeviceApprove, userCodes)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteFailedAttemptsBefore prunes aged device failures only. The table is
// shared with the MFA and password lockout ledgers, whose rows must outlive
// a device sweep for their own configured windows.
func (s *DeviceAuthStore) DeleteFailedAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM failed_attempts WHERE action = $1 AND attempted_at < $2`,
		lockout.ActionDeviceApprove, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
