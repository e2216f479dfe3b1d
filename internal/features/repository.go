package features

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the feature registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every registered feature ordered by key.
func (r *Repository) List(ctx context.Context) ([]Feature, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, name, category, description, created_at FROM system_features ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var feats []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.Key, &f.Name, &f.Category, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		feats = append(feats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feats, nil
}

// Ensure inserts the feature when missing. Existing rows are left untouched
// so runtime re-seeding never rewrites descriptions edited by operators.
func (r *Repository) Ensure(ctx context.Context, f Feature) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO system_features (key, name, category, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		f.Key, f.Name, f.Category, f.Description)
	return err
}
