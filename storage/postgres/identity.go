package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/pg"
)

// IdentityStorage implements identity.Storage.
type IdentityStorage struct {
	pool *pgxpool.Pool
}

var _ identity.Storage = (*IdentityStorage)(nil)

func NewIdentityStorage(pool *pgxpool.Pool) *IdentityStorage {
	return &IdentityStorage{pool: pool}
}

func (s *IdentityStorage) CreateUser(ctx context.Context, user *identity.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, role, password_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Role, user.PasswordHash, user.Metadata, user.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return identity.ErrUserExists
	}
	return err
}

func (s *IdentityStorage) getUser(ctx context.Context, clause string, arg any) (*identity.User, error) {
	var user identity.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, role, password_hash, metadata, created_at
		FROM users WHERE `+clause, arg).Scan(
		&user.ID, &user.Email, &user.Role, &user.PasswordHash, &user.Metadata, &user.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *IdentityStorage) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

func (s *IdentityStorage) GetUserByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *IdentityStorage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (s *IdentityStorage) StoreRefreshToken(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)`, tokenHash, userID, expiresAt)
	return err
}

func (s *IdentityStorage) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING user_id`, tokenHash, now).Scan(&userID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, identity.ErrInvalidRefreshToken
		}
		return uuid.Nil, err
	}
	return userID, nil
}
