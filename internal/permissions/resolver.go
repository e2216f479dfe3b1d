package permissions

import (
	"context"
	"fmt"
)

// Registry supplies the universe of feature keys. Only the full-map
// computation needs it; single-key checks work without consulting it.
type Registry interface {
	ListKeys(ctx context.Context) ([]string, error)
}

// Store defines persistence for overrides and default layers. Absent rows
// are reported as nil records, not errors.
type Store interface {
	GetOverride(ctx context.Context, userID int64, featureKey string) (*Override, error)
	ListOverrides(ctx context.Context, userID int64) ([]Override, error)
	UpsertOverride(ctx context.Context, o Override) (Override, error)
	DeleteOverrides(ctx context.Context, userID int64) (int64, error)

	GetRoleDefault(ctx context.Context, role, featureKey string) (*RoleDefault, error)
	ListRoleDefaults(ctx context.Context, role string) ([]RoleDefault, error)
	UpsertRoleDefault(ctx context.Context, d RoleDefault) (RoleDefault, error)

	GetRoleDepartmentDefault(ctx context.Context, role, department, featureKey string) (*RoleDepartmentDefault, error)
	ListRoleDepartmentDefaults(ctx context.Context, role, department string) ([]RoleDepartmentDefault, error)
	UpsertRoleDepartmentDefault(ctx context.Context, d RoleDepartmentDefault) (RoleDepartmentDefault, error)
	ListRoleDepartmentCombos(ctx context.Context) ([]RoleDepartment, error)
}

// Resolver answers "is this feature granted to this user?" by combining the
// super-role short circuit with three stored layers. Precedence, most
// specific first: super role, user override, role+department default,
// role-only default, deny.
//
// Both Check and EffectivePermissions apply the same precedence. The resolver
// performs no authorization of its callers; the HTTP layer restricts who may
// invoke mutations.
type Resolver struct {
	store    Store
	registry Registry
}

// NewResolver wires a Store with the feature Registry.
func NewResolver(store Store, registry Registry) *Resolver {
	return &Resolver{store: store, registry: registry}
}

// Check resolves a single feature key for the identity. Unknown roles,
// departments and feature keys are not errors; they simply fail to match
// any layer and fall through to deny. A zero identity always denies.
//
// Check is deliberately lenient about the registry: an override or default
// stored for a key the registry does not know is still honored here, while
// EffectivePermissions hides it.
func (r *Resolver) Check(ctx context.Context, id Identity, featureKey string) (bool, error) {
	if id.IsZero() {
		return false, nil
	}
	if id.IsSuper() {
		return true, nil
	}

	override, err := r.store.GetOverride(ctx, id.ID, featureKey)
	if err != nil {
		return false, fmt.Errorf("permissions: get override: %w", err)
	}
	if override != nil {
		return override.Granted, nil
	}

	if id.Department != "" {
		deptDefault, err := r.store.GetRoleDepartmentDefault(ctx, id.Role, id.Department, featureKey)
		if err != nil {
			return false, fmt.Errorf("permissions: get role department default: %w", err)
		}
		if deptDefault != nil {
			return deptDefault.Granted, nil
		}
	}

	roleDefault, err := r.store.GetRoleDefault(ctx, id.Role, featureKey)
	if err != nil {
		return false, fmt.Errorf("permissions: get role default: %w", err)
	}
	if roleDefault != nil {
		return roleDefault.Granted, nil
	}

	return false, nil
}

// EffectivePermissions computes the complete permission map for the
// identity. The result contains exactly the registry's keys: rows stored for
// unregistered keys are excluded, and registered keys with no matching rows
// report false. A zero identity yields an empty map.
func (r *Resolver) EffectivePermissions(ctx context.Context, id Identity) (map[string]bool, error) {
	if id.IsZero() {
		return map[string]bool{}, nil
	}

	keys, err := r.registry.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("permissions: list features: %w", err)
	}

	perms := make(map[string]bool, len(keys))
	if id.IsSuper() {
		for _, key := range keys {
			perms[key] = true
		}
		return perms, nil
	}
	for _, key := range keys {
		perms[key] = false
	}

	roleDefaults, err := r.store.ListRoleDefaults(ctx, id.Role)
	if err != nil {
		return nil, fmt.Errorf("permissions: list role defaults: %w", err)
	}
	for _, d := range roleDefaults {
		if _, ok := perms[d.FeatureKey]; ok {
			perms[d.FeatureKey] = d.Granted
		}
	}

	if id.Department != "" {
		deptDefaults, err := r.store.ListRoleDepartmentDefaults(ctx, id.Role, id.Department)
		if err != nil {
			return nil, fmt.Errorf("permissions: list role department defaults: %w", err)
		}
		for _, d := range deptDefaults {
			if _, ok := perms[d.FeatureKey]; ok {
				perms[d.FeatureKey] = d.Granted
			}
		}
	}

	overrides, err := r.store.ListOverrides(ctx, id.ID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list overrides: %w", err)
	}
	for _, o := range overrides {
		if _, ok := perms[o.FeatureKey]; ok {
			perms[o.FeatureKey] = o.Granted
		}
	}

	return perms, nil
}

// SetUserOverride upserts a per-user override and returns the resulting row.
// A benign duplicate-key race between two concurrent first-time grants is
// retried as an update exactly once.
func (r *Resolver) SetUserOverride(ctx context.Context, userID int64, featureKey string, granted bool, granterID int64) (Override, error) {
	o := Override{UserID: userID, FeatureKey: featureKey, Granted: granted, GrantedBy: granterID}
	rec, err := r.store.UpsertOverride(ctx, o)
	if err != nil && isUniqueViolation(err) {
		rec, err = r.store.UpsertOverride(ctx, o)
	}
	if err != nil {
		return Override{}, fmt.Errorf("permissions: set user override: %w", err)
	}
	return rec, nil
}

// SetRoleDefault upserts the role-only default for a feature.
func (r *Resolver) SetRoleDefault(ctx context.Context, role, featureKey string, granted bool) (RoleDefault, error) {
	d := RoleDefault{Role: role, FeatureKey: featureKey, Granted: granted}
	rec, err := r.store.UpsertRoleDefault(ctx, d)
	if err != nil && isUniqueViolation(err) {
		rec, err = r.store.UpsertRoleDefault(ctx, d)
	}
	if err != nil {
		return RoleDefault{}, fmt.Errorf("permissions: set role default: %w", err)
	}
	return rec, nil
}

// SetRoleDepartmentDefault upserts the role+department default for a feature.
func (r *Resolver) SetRoleDepartmentDefault(ctx context.Context, role, department, featureKey string, granted bool) (RoleDepartmentDefault, error) {
	d := RoleDepartmentDefault{Role: role, Department: department, FeatureKey: featureKey, Granted: granted}
	rec, err := r.store.UpsertRoleDepartmentDefault(ctx, d)
	if err != nil && isUniqueViolation(err) {
		rec, err = r.store.UpsertRoleDepartmentDefault(ctx, d)
	}
	if err != nil {
		return RoleDepartmentDefault{}, fmt.Errorf("permissions: set role department default: %w", err)
	}
	return rec, nil
}

// BulkSetUserOverrides applies SetUserOverride over the cartesian product of
// users and keys. Each pair is an independent upsert with no atomicity
// across pairs; the count of applied pairs is returned with the first error.
func (r *Resolver) BulkSetUserOverrides(ctx context.Context, userIDs []int64, featureKeys []string, granted bool, granterID int64) (int, error) {
	applied := 0
	for _, userID := range userIDs {
		for _, key := range featureKeys {
			if _, err := r.SetUserOverride(ctx, userID, key, granted, granterID); err != nil {
				return applied, err
			}
			applied++
		}
	}
	return applied, nil
}

// ResetUserOverrides deletes every override for the user so subsequent
// checks fall back to the default layers. Resetting a user with no
// overrides succeeds and reports zero rows.
func (r *Resolver) ResetUserOverrides(ctx context.Context, userID int64) (int64, error) {
	removed, err := r.store.DeleteOverrides(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("permissions: reset user overrides: %w", err)
	}
	return removed, nil
}

// PromoteToRoleDefault snapshots the identity's effective permissions and
// writes every key, granted or not, as the target role's defaults. Later
// changes to the source user do not retroactively alter the role.
func (r *Resolver) PromoteToRoleDefault(ctx context.Context, id Identity, targetRole string) error {
	perms, err := r.EffectivePermissions(ctx, id)
	if err != nil {
		return err
	}
	for key, granted := range perms {
		if _, err := r.SetRoleDefault(ctx, targetRole, key, granted); err != nil {
			return err
		}
	}
	return nil
}

// RoleDepartmentTemplate returns the registry-complete map for a
// role+department combination with only that layer applied.
func (r *Resolver) RoleDepartmentTemplate(ctx context.Context, role, department string) (map[string]bool, error) {
	keys, err := r.registry.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("permissions: list features: %w", err)
	}
	perms := make(map[string]bool, len(keys))
	for _, key := range keys {
		perms[key] = false
	}
	defaults, err := r.store.ListRoleDepartmentDefaults(ctx, role, department)
	if err != nil {
		return nil, fmt.Errorf("permissions: list role department defaults: %w", err)
	}
	for _, d := range defaults {
		if _, ok := perms[d.FeatureKey]; ok {
			perms[d.FeatureKey] = d.Granted
		}
	}
	return perms, nil
}

// ListRoleDepartmentTemplates returns every stored role-department
// combination with its template map.
func (r *Resolver) ListRoleDepartmentTemplates(ctx context.Context) ([]Template, error) {
	combos, err := r.store.ListRoleDepartmentCombos(ctx)
	if err != nil {
		return nil, fmt.Errorf("permissions: list role department combos: %w", err)
	}
	templates := make([]Template, 0, len(combos))
	for _, combo := range combos {
		perms, err := r.RoleDepartmentTemplate(ctx, combo.Role, combo.Department)
		if err != nil {
			return nil, err
		}
		templates = append(templates, Template{Role: combo.Role, Department: combo.Department, Permissions: perms})
	}
	return templates, nil
}

// ApplyRoleDepartmentTemplate upserts every entry of the permission map as
// role+department defaults.
func (r *Resolver) ApplyRoleDepartmentTemplate(ctx context.Context, role, department string, perms map[string]bool) error {
	for key, granted := range perms {
		if _, err := r.SetRoleDepartmentDefault(ctx, role, department, key, granted); err != nil {
			return err
		}
	}
	return nil
}
