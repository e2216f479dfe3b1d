package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehq/pulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, COALESCE(department, ''), is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Department, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListUsers returns all users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a new user. Duplicate emails map to ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, u User, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role, department, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+userColumns,
		u.Email, passwordHash, u.Name, u.Role, u.Department, u.IsActive)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, httpx.ErrDuplicate
		}
		return User{}, err
	}
	return created, nil
}

// UpdateUser updates mutable fields of an existing user.
func (r *Repository) UpdateUser(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, role = $3, department = NULLIF($4, ''), is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Name, u.Role, u.Department, u.IsActive)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	return updated, nil
}

// DeleteUser removes a user by ID. Overrides cascade at the store level.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
