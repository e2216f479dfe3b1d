package permissions

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type overrideKey struct {
	userID int64
	key    string
}

type roleKey struct {
	role string
	key  string
}

type roleDeptKey struct {
	role string
	dept string
	key  string
}

type mockStore struct {
	mu            sync.Mutex
	overrides     map[overrideKey]Override
	roleDefaults  map[roleKey]RoleDefault
	deptDefaults  map[roleDeptKey]RoleDepartmentDefault
	upsertErrOnce error
}

func newMockStore() *mockStore {
	return &mockStore{
		overrides:    make(map[overrideKey]Override),
		roleDefaults: make(map[roleKey]RoleDefault),
		deptDefaults: make(map[roleDeptKey]RoleDepartmentDefault),
	}
}

func (m *mockStore) GetOverride(ctx context.Context, userID int64, featureKey string) (*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.overrides[overrideKey{userID, featureKey}]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *mockStore) ListOverrides(ctx context.Context, userID int64) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Override
	for k, o := range m.overrides {
		if k.userID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureKey < out[j].FeatureKey })
	return out, nil
}

func (m *mockStore) UpsertOverride(ctx context.Context, o Override) (Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErrOnce != nil {
		err := m.upsertErrOnce
		m.upsertErrOnce = nil
		return Override{}, err
	}
	o.GrantedAt = time.Now()
	m.overrides[overrideKey{o.UserID, o.FeatureKey}] = o
	return o, nil
}

func (m *mockStore) DeleteOverrides(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for k := range m.overrides {
		if k.userID == userID {
			delete(m.overrides, k)
			removed++
		}
	}
	return removed, nil
}

func (m *mockStore) GetRoleDefault(ctx context.Context, role, featureKey string) (*RoleDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.roleDefaults[roleKey{role, featureKey}]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *mockStore) ListRoleDefaults(ctx context.Context, role string) ([]RoleDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RoleDefault
	for k, d := range m.roleDefaults {
		if k.role == role {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertRoleDefault(ctx context.Context, d RoleDefault) (RoleDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleDefaults[roleKey{d.Role, d.FeatureKey}] = d
	return d, nil
}

func (m *mockStore) GetRoleDepartmentDefault(ctx context.Context, role, department, featureKey string) (*RoleDepartmentDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deptDefaults[roleDeptKey{role, department, featureKey}]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *mockStore) ListRoleDepartmentDefaults(ctx context.Context, role, department string) ([]RoleDepartmentDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RoleDepartmentDefault
	for k, d := range m.deptDefaults {
		if k.role == role && k.dept == department {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertRoleDepartmentDefault(ctx context.Context, d RoleDepartmentDefault) (RoleDepartmentDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deptDefaults[roleDeptKey{d.Role, d.Department, d.FeatureKey}] = d
	return d, nil
}

func (m *mockStore) ListRoleDepartmentCombos(ctx context.Context) ([]RoleDepartment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[RoleDepartment]struct{})
	for k := range m.deptDefaults {
		seen[RoleDepartment{Role: k.role, Department: k.dept}] = struct{}{}
	}
	out := make([]RoleDepartment, 0, len(seen))
	for combo := range seen {
		out = append(out, combo)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Department < out[j].Department
	})
	return out, nil
}

type fakeRegistry struct {
	keys []string
	err  error
}

func (f *fakeRegistry) ListKeys(ctx context.Context) ([]string, error) {
	return f.keys, f.err
}

func newTestResolver(keys ...string) (*Resolver, *mockStore) {
	store := newMockStore()
	return NewResolver(store, &fakeRegistry{keys: keys}), store
}

// ============================================================================
// SINGLE-KEY CHECK
// ============================================================================

func TestCheckSuperRoleAlwaysGranted(t *testing.T) {
	resolver, store := newTestResolver("metrics.mrr.view")
	ctx := context.Background()

	// Even an explicit denial cannot demote the super role.
	_, err := resolver.SetUserOverride(ctx, 1, "metrics.mrr.view", false, 1)
	require.NoError(t, err)
	_, err = resolver.SetRoleDefault(ctx, RoleSuper, "metrics.mrr.view", false)
	require.NoError(t, err)

	granted, err := resolver.Check(ctx, Identity{ID: 1, Role: RoleSuper}, "metrics.mrr.view")
	require.NoError(t, err)
	assert.True(t, granted)

	// Sanity: the stored records exist but were never consulted.
	o, err := store.GetOverride(ctx, 1, "metrics.mrr.view")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.False(t, o.Granted)
}

func TestCheckOverrideBeatsDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("denying override beats granting default", func(t *testing.T) {
		resolver, _ := newTestResolver("metrics.ltv.view")
		_, err := resolver.SetRoleDefault(ctx, "agent", "metrics.ltv.view", true)
		require.NoError(t, err)
		_, err = resolver.SetUserOverride(ctx, 7, "metrics.ltv.view", false, 1)
		require.NoError(t, err)

		granted, err := resolver.Check(ctx, Identity{ID: 7, Role: "agent"}, "metrics.ltv.view")
		require.NoError(t, err)
		assert.False(t, granted)
	})

	t.Run("granting override beats denying default", func(t *testing.T) {
		resolver, _ := newTestResolver("metrics.ltv.view")
		_, err := resolver.SetRoleDefault(ctx, "agent", "metrics.ltv.view", false)
		require.NoError(t, err)
		_, err = resolver.SetUserOverride(ctx, 7, "metrics.ltv.view", true, 1)
		require.NoError(t, err)

		granted, err := resolver.Check(ctx, Identity{ID: 7, Role: "agent"}, "metrics.ltv.view")
		require.NoError(t, err)
		assert.True(t, granted)
	})
}

func TestCheckDefaultDeny(t *testing.T) {
	resolver, _ := newTestResolver("metrics.cac.view")
	granted, err := resolver.Check(context.Background(), Identity{ID: 3, Role: "agent", Department: "Sales"}, "metrics.cac.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestCheckUnknownRoleDenied(t *testing.T) {
	resolver, _ := newTestResolver("metrics.cac.view")
	granted, err := resolver.Check(context.Background(), Identity{ID: 3, Role: "intern"}, "metrics.cac.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestCheckZeroIdentityDenied(t *testing.T) {
	resolver, _ := newTestResolver("metrics.cac.view")
	granted, err := resolver.Check(context.Background(), Identity{}, "metrics.cac.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

// Check and EffectivePermissions share one precedence order: the
// role+department layer outranks role-only defaults on both paths.
func TestCheckConsultsRoleDepartmentLayer(t *testing.T) {
	resolver, _ := newTestResolver("metrics.ltv.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDefault(ctx, "agent", "metrics.ltv.view", false)
	require.NoError(t, err)
	_, err = resolver.SetRoleDepartmentDefault(ctx, "agent", "Sales", "metrics.ltv.view", true)
	require.NoError(t, err)

	id := Identity{ID: 9, Role: "agent", Department: "Sales"}

	granted, err := resolver.Check(ctx, id, "metrics.ltv.view")
	require.NoError(t, err)
	assert.True(t, granted, "check should honor the role+department layer")

	perms, err := resolver.EffectivePermissions(ctx, id)
	require.NoError(t, err)
	assert.True(t, perms["metrics.ltv.view"], "map should agree with check")

	// A user of the same role without the department falls back to the
	// role-only default.
	granted, err = resolver.Check(ctx, Identity{ID: 10, Role: "agent"}, "metrics.ltv.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

// Single-key checks stay lenient about the registry: rows stored for an
// unregistered key are honored, while the full map hides them.
func TestCheckLenientMapStrictForUnregisteredKeys(t *testing.T) {
	resolver, _ := newTestResolver("metrics.mrr.view")
	ctx := context.Background()

	_, err := resolver.SetUserOverride(ctx, 4, "labs.experimental", true, 1)
	require.NoError(t, err)

	id := Identity{ID: 4, Role: "agent"}

	granted, err := resolver.Check(ctx, id, "labs.experimental")
	require.NoError(t, err)
	assert.True(t, granted)

	perms, err := resolver.EffectivePermissions(ctx, id)
	require.NoError(t, err)
	_, present := perms["labs.experimental"]
	assert.False(t, present)
	assert.Len(t, perms, 1)
}

// ============================================================================
// EFFECTIVE PERMISSIONS
// ============================================================================

func TestEffectivePermissionsSuperRoleAllTrue(t *testing.T) {
	resolver, _ := newTestResolver("a.view", "b.view", "c.view")
	perms, err := resolver.EffectivePermissions(context.Background(), Identity{ID: 1, Role: RoleSuper})
	require.NoError(t, err)
	require.Len(t, perms, 3)
	for key, granted := range perms {
		assert.True(t, granted, "key %s", key)
	}
}

func TestEffectivePermissionsCompleteness(t *testing.T) {
	resolver, _ := newTestResolver("a.view", "b.view", "c.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDefault(ctx, "agent", "a.view", true)
	require.NoError(t, err)

	perms, err := resolver.EffectivePermissions(ctx, Identity{ID: 2, Role: "agent"})
	require.NoError(t, err)
	require.Len(t, perms, 3)
	assert.True(t, perms["a.view"])
	assert.False(t, perms["b.view"])
	assert.False(t, perms["c.view"])
}

func TestEffectivePermissionsLayering(t *testing.T) {
	resolver, _ := newTestResolver("x.view", "y.view", "z.view")
	ctx := context.Background()

	// role layer grants x and y, department layer retracts y and grants z,
	// override retracts z again.
	_, err := resolver.SetRoleDefault(ctx, "director", "x.view", true)
	require.NoError(t, err)
	_, err = resolver.SetRoleDefault(ctx, "director", "y.view", true)
	require.NoError(t, err)
	_, err = resolver.SetRoleDepartmentDefault(ctx, "director", "Finance", "y.view", false)
	require.NoError(t, err)
	_, err = resolver.SetRoleDepartmentDefault(ctx, "director", "Finance", "z.view", true)
	require.NoError(t, err)
	_, err = resolver.SetUserOverride(ctx, 5, "z.view", false, 1)
	require.NoError(t, err)

	perms, err := resolver.EffectivePermissions(ctx, Identity{ID: 5, Role: "director", Department: "Finance"})
	require.NoError(t, err)
	assert.True(t, perms["x.view"])
	assert.False(t, perms["y.view"])
	assert.False(t, perms["z.view"])
}

func TestEffectivePermissionsZeroIdentityEmpty(t *testing.T) {
	resolver, _ := newTestResolver("a.view")
	perms, err := resolver.EffectivePermissions(context.Background(), Identity{})
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestEffectivePermissionsEmptyRegistry(t *testing.T) {
	resolver, _ := newTestResolver()
	perms, err := resolver.EffectivePermissions(context.Background(), Identity{ID: 1, Role: "agent"})
	require.NoError(t, err)
	assert.Empty(t, perms)
}

// ============================================================================
// MUTATIONS
// ============================================================================

func TestSetUserOverrideUpsertIdempotent(t *testing.T) {
	resolver, store := newTestResolver("a.view")
	ctx := context.Background()

	first, err := resolver.SetUserOverride(ctx, 11, "a.view", true, 2)
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.Equal(t, int64(2), first.GrantedBy)

	second, err := resolver.SetUserOverride(ctx, 11, "a.view", true, 2)
	require.NoError(t, err)
	assert.True(t, second.Granted)

	rows, err := store.ListOverrides(ctx, 11)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Granted)
}

func TestSetUserOverrideReplacesInPlace(t *testing.T) {
	resolver, store := newTestResolver("a.view")
	ctx := context.Background()

	_, err := resolver.SetUserOverride(ctx, 11, "a.view", true, 2)
	require.NoError(t, err)
	rec, err := resolver.SetUserOverride(ctx, 11, "a.view", false, 3)
	require.NoError(t, err)
	assert.False(t, rec.Granted)
	assert.Equal(t, int64(3), rec.GrantedBy)

	rows, err := store.ListOverrides(ctx, 11)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSetUserOverrideRetriesUniqueViolationOnce(t *testing.T) {
	resolver, store := newTestResolver("a.view")
	store.upsertErrOnce = &pgconn.PgError{Code: "23505"}

	rec, err := resolver.SetUserOverride(context.Background(), 11, "a.view", true, 2)
	require.NoError(t, err)
	assert.True(t, rec.Granted)
}

func TestSetUserOverrideDoesNotRetryOtherErrors(t *testing.T) {
	resolver, store := newTestResolver("a.view")
	store.upsertErrOnce = &pgconn.PgError{Code: "23503"}

	_, err := resolver.SetUserOverride(context.Background(), 11, "a.view", true, 2)
	require.Error(t, err)
}

func TestBulkSetUserOverridesCartesian(t *testing.T) {
	resolver, store := newTestResolver("alfred.chat", "metrics.mrr.view")
	ctx := context.Background()

	applied, err := resolver.BulkSetUserOverrides(ctx, []int64{10, 11}, []string{"alfred.chat", "metrics.mrr.view"}, true, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, applied)

	for _, userID := range []int64{10, 11} {
		rows, err := store.ListOverrides(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	}

	// Each pair stays independently upsertable.
	_, err = resolver.SetUserOverride(ctx, 10, "alfred.chat", false, 1)
	require.NoError(t, err)
	granted, err := resolver.Check(ctx, Identity{ID: 10, Role: "agent"}, "alfred.chat")
	require.NoError(t, err)
	assert.False(t, granted)
	granted, err = resolver.Check(ctx, Identity{ID: 11, Role: "agent"}, "alfred.chat")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestResetUserOverridesFallsBackToDefaults(t *testing.T) {
	resolver, store := newTestResolver("a.view", "b.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDefault(ctx, "agent", "a.view", true)
	require.NoError(t, err)
	_, err = resolver.SetUserOverride(ctx, 12, "a.view", false, 1)
	require.NoError(t, err)
	_, err = resolver.SetUserOverride(ctx, 12, "b.view", true, 1)
	require.NoError(t, err)

	removed, err := resolver.ResetUserOverrides(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err := store.ListOverrides(ctx, 12)
	require.NoError(t, err)
	assert.Empty(t, rows)

	id := Identity{ID: 12, Role: "agent"}
	granted, err := resolver.Check(ctx, id, "a.view")
	require.NoError(t, err)
	assert.True(t, granted, "role default applies again after reset")
	granted, err = resolver.Check(ctx, id, "b.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestResetUserWithNoOverridesSucceeds(t *testing.T) {
	resolver, _ := newTestResolver("a.view")
	removed, err := resolver.ResetUserOverrides(context.Background(), 99)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPromoteToRoleDefaultSnapshot(t *testing.T) {
	resolver, _ := newTestResolver("a.view", "b.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDefault(ctx, "senior_agent", "a.view", true)
	require.NoError(t, err)
	_, err = resolver.SetRoleDefault(ctx, "senior_agent", "b.view", true)
	require.NoError(t, err)

	source := Identity{ID: 20, Role: "agent"}
	_, err = resolver.SetUserOverride(ctx, source.ID, "a.view", true, 1)
	require.NoError(t, err)

	snapshot, err := resolver.EffectivePermissions(ctx, source)
	require.NoError(t, err)

	// Promotion writes false values too, overwriting the prior true defaults.
	require.NoError(t, resolver.PromoteToRoleDefault(ctx, source, "senior_agent"))

	fresh := Identity{ID: 21, Role: "senior_agent"}
	perms, err := resolver.EffectivePermissions(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, snapshot, perms)
	assert.True(t, perms["a.view"])
	assert.False(t, perms["b.view"], "promotion must overwrite the prior true default")

	// Later changes to the source user do not leak into the role.
	_, err = resolver.SetUserOverride(ctx, source.ID, "b.view", true, 1)
	require.NoError(t, err)
	perms, err = resolver.EffectivePermissions(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, perms["b.view"])
}

// ============================================================================
// TEMPLATES
// ============================================================================

func TestRoleDepartmentTemplate(t *testing.T) {
	resolver, _ := newTestResolver("a.view", "b.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDepartmentDefault(ctx, "agent", "Sales", "a.view", true)
	require.NoError(t, err)

	perms, err := resolver.RoleDepartmentTemplate(ctx, "agent", "Sales")
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.True(t, perms["a.view"])
	assert.False(t, perms["b.view"])
}

func TestListRoleDepartmentTemplates(t *testing.T) {
	resolver, _ := newTestResolver("a.view")
	ctx := context.Background()

	_, err := resolver.SetRoleDepartmentDefault(ctx, "agent", "Sales", "a.view", true)
	require.NoError(t, err)
	_, err = resolver.SetRoleDepartmentDefault(ctx, "director", "Finance", "a.view", false)
	require.NoError(t, err)

	templates, err := resolver.ListRoleDepartmentTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "agent", templates[0].Role)
	assert.True(t, templates[0].Permissions["a.view"])
	assert.Equal(t, "director", templates[1].Role)
	assert.False(t, templates[1].Permissions["a.view"])
}

func TestApplyRoleDepartmentTemplate(t *testing.T) {
	resolver, _ := newTestResolver("a.view", "b.view")
	ctx := context.Background()

	err := resolver.ApplyRoleDepartmentTemplate(ctx, "agent", "Sales", map[string]bool{"a.view": true, "b.view": false})
	require.NoError(t, err)

	granted, err := resolver.Check(ctx, Identity{ID: 30, Role: "agent", Department: "Sales"}, "a.view")
	require.NoError(t, err)
	assert.True(t, granted)
	granted, err = resolver.Check(ctx, Identity{ID: 30, Role: "agent", Department: "Sales"}, "b.view")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestSeedTemplatePermissions(t *testing.T) {
	t.Run("super template grants everything", func(t *testing.T) {
		perms := SeedTemplatePermissions("co_founder", "Executive")
		require.NotEmpty(t, perms)
		for key, granted := range perms {
			assert.True(t, granted, "key %s", key)
		}
	})

	t.Run("agent sales gets customer category only", func(t *testing.T) {
		perms := SeedTemplatePermissions("agent", "Sales")
		assert.True(t, perms["metrics.ltv.view"])
		assert.True(t, perms["metrics.churn.view"])
		assert.False(t, perms["metrics.mrr.view"])
		assert.False(t, perms["alfred.chat"])
	})

	t.Run("unknown combination is all deny", func(t *testing.T) {
		perms := SeedTemplatePermissions("agent", "Legal")
		require.NotEmpty(t, perms)
		for key, granted := range perms {
			assert.False(t, granted, "key %s", key)
		}
	})

	t.Run("role casing is normalised", func(t *testing.T) {
		perms := SeedTemplatePermissions("Agent", "Sales")
		assert.True(t, perms["metrics.ltv.view"])
	})
}

func TestSeedDefaults(t *testing.T) {
	resolver, store := newTestResolver("metrics.ltv.view", "metrics.mrr.view")
	ctx := context.Background()

	require.NoError(t, resolver.SeedDefaults(ctx))

	// Only granted entries are stored.
	rows, err := store.ListRoleDepartmentDefaults(ctx, "agent", "Sales")
	require.NoError(t, err)
	for _, d := range rows {
		assert.True(t, d.Granted)
	}

	granted, err := resolver.Check(ctx, Identity{ID: 40, Role: "agent", Department: "Sales"}, "metrics.ltv.view")
	require.NoError(t, err)
	assert.True(t, granted)
	granted, err = resolver.Check(ctx, Identity{ID: 40, Role: "agent", Department: "Sales"}, "metrics.mrr.view")
	require.NoError(t, err)
	assert.False(t, granted)
}
