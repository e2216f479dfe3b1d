package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a Postgres duplicate-key failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// PGStore implements Store using PostgreSQL. Upserts rely on the unique
// constraints of the underlying tables, so concurrent writers resolve to
// last-writer-wins without duplicate rows.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetOverride fetches the override for (user, feature key), nil when absent.
func (s *PGStore) GetOverride(ctx context.Context, userID int64, featureKey string) (*Override, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, feature_key, is_granted, granted_by, granted_at
		FROM user_permissions
		WHERE user_id = $1 AND feature_key = $2`,
		userID, featureKey)
	var o Override
	if err := row.Scan(&o.UserID, &o.FeatureKey, &o.Granted, &o.GrantedBy, &o.GrantedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// ListOverrides returns every override stored for the user.
func (s *PGStore) ListOverrides(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, feature_key, is_granted, granted_by, granted_at
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY feature_key`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.UserID, &o.FeatureKey, &o.Granted, &o.GrantedBy, &o.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertOverride inserts or updates the (user, feature key) override in one
// statement and returns the stored row.
func (s *PGStore) UpsertOverride(ctx context.Context, o Override) (Override, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_permissions (user_id, feature_key, is_granted, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, feature_key)
		DO UPDATE SET is_granted = EXCLUDED.is_granted, granted_by = EXCLUDED.granted_by, granted_at = now()
		RETURNING user_id, feature_key, is_granted, granted_by, granted_at`,
		o.UserID, o.FeatureKey, o.Granted, o.GrantedBy)
	var rec Override
	if err := row.Scan(&rec.UserID, &rec.FeatureKey, &rec.Granted, &rec.GrantedBy, &rec.GrantedAt); err != nil {
		return Override{}, err
	}
	return rec, nil
}

// DeleteOverrides removes every override for the user and reports the count.
func (s *PGStore) DeleteOverrides(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetRoleDefault fetches the role-only default, nil when absent.
func (s *PGStore) GetRoleDefault(ctx context.Context, role, featureKey string) (*RoleDefault, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT role, feature_key, is_granted
		FROM role_defaults
		WHERE role = $1 AND feature_key = $2`,
		role, featureKey)
	var d RoleDefault
	if err := row.Scan(&d.Role, &d.FeatureKey, &d.Granted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ListRoleDefaults returns every default stored for the role.
func (s *PGStore) ListRoleDefaults(ctx context.Context, role string) ([]RoleDefault, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, feature_key, is_granted
		FROM role_defaults
		WHERE role = $1
		ORDER BY feature_key`,
		role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleDefault
	for rows.Next() {
		var d RoleDefault
		if err := rows.Scan(&d.Role, &d.FeatureKey, &d.Granted); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertRoleDefault inserts or updates the (role, feature key) default.
func (s *PGStore) UpsertRoleDefault(ctx context.Context, d RoleDefault) (RoleDefault, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO role_defaults (role, feature_key, is_granted)
		VALUES ($1, $2, $3)
		ON CONFLICT (role, feature_key)
		DO UPDATE SET is_granted = EXCLUDED.is_granted
		RETURNING role, feature_key, is_granted`,
		d.Role, d.FeatureKey, d.Granted)
	var rec RoleDefault
	if err := row.Scan(&rec.Role, &rec.FeatureKey, &rec.Granted); err != nil {
		return RoleDefault{}, err
	}
	return rec, nil
}

// GetRoleDepartmentDefault fetches the role+department default, nil when absent.
func (s *PGStore) GetRoleDepartmentDefault(ctx context.Context, role, department, featureKey string) (*RoleDepartmentDefault, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT role, department, feature_key, is_granted
		FROM role_department_defaults
		WHERE role = $1 AND department = $2 AND feature_key = $3`,
		role, department, featureKey)
	var d RoleDepartmentDefault
	if err := row.Scan(&d.Role, &d.Department, &d.FeatureKey, &d.Granted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ListRoleDepartmentDefaults returns every default for the combination.
func (s *PGStore) ListRoleDepartmentDefaults(ctx context.Context, role, department string) ([]RoleDepartmentDefault, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, department, feature_key, is_granted
		FROM role_department_defaults
		WHERE role = $1 AND department = $2
		ORDER BY feature_key`,
		role, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleDepartmentDefault
	for rows.Next() {
		var d RoleDepartmentDefault
		if err := rows.Scan(&d.Role, &d.Department, &d.FeatureKey, &d.Granted); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertRoleDepartmentDefault inserts or updates the combination default.
func (s *PGStore) UpsertRoleDepartmentDefault(ctx context.Context, d RoleDepartmentDefault) (RoleDepartmentDefault, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO role_department_defaults (role, department, feature_key, is_granted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role, department, feature_key)
		DO UPDATE SET is_granted = EXCLUDED.is_granted
		RETURNING role, department, feature_key, is_granted`,
		d.Role, d.Department, d.FeatureKey, d.Granted)
	var rec RoleDepartmentDefault
	if err := row.Scan(&rec.Role, &rec.Department, &rec.FeatureKey, &rec.Granted); err != nil {
		return RoleDepartmentDefault{}, err
	}
	return rec, nil
}

// ListRoleDepartmentCombos returns the distinct role-department pairs that
// have at least one stored default.
func (s *PGStore) ListRoleDepartmentCombos(ctx context.Context) ([]RoleDepartment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT role, department
		FROM role_department_defaults
		ORDER BY role, department`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleDepartment
	for rows.Next() {
		var combo RoleDepartment
		if err := rows.Scan(&combo.Role, &combo.Department); err != nil {
			return nil, err
		}
		out = append(out, combo)
	}
	return out, rows.Err()
}
