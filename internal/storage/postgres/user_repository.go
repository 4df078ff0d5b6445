package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirpline/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository implements domain.UserRepository against a users table,
// generalizing the teacher's db.User/GetUserByID/GetUserByEmail/CreateUser
// query shapes into hand-written SQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, email, display_name, username, password_hash, password_changed_at, created_at
		FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(ctx, `
		SELECT id, email, display_name, username, password_hash, password_changed_at, created_at
		FROM users WHERE email = $1`, email)
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Username, &u.PasswordHash, &u.PasswordChangedAt, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("userrepository: scan: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	u.PasswordChangedAt = u.CreatedAt

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, username, password_hash, password_changed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.DisplayName, u.Username, u.PasswordHash, u.PasswordChangedAt, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrUserExists
		}
		return fmt.Errorf("userrepository: create: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, password_changed_at = $2 WHERE id = $3`,
		passwordHash, changedAt, id,
	)
	if err != nil {
		return fmt.Errorf("userrepository: update password: %w", err)
	}
	return nil
}
