package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/pulse/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `
		SELECT id, email, name, role, COALESCE(department, ''), password_hash, is_active, created_at, updated_at
		FROM users
		WHERE email = $1`

	var (
		user      User
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Department,
		&user.PasswordHash, &user.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	const query = `
		SELECT id, email, name, role, COALESCE(department, ''), password_hash, is_active, created_at, updated_at
		FROM users
		WHERE id = $1`

	var (
		user      User
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Department,
		&user.PasswordHash, &user.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	const query = `
		INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`

	_, err := r.pool.Exec(ctx, query, id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
