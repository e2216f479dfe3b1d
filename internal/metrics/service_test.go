package metrics_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse/internal/metrics"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/sheets"
)

type stubSource struct {
	loads     atomic.Int64
	customers []sheets.Customer
	expenses  []sheets.Expense
	projects  []sheets.Project
	err       error
}

func (s *stubSource) Customers(ctx context.Context) ([]sheets.Customer, error) {
	s.loads.Add(1)
	return s.customers, s.err
}

func (s *stubSource) Expenses(ctx context.Context) ([]sheets.Expense, error) {
	return s.expenses, s.err
}

func (s *stubSource) Projects(ctx context.Context) ([]sheets.Project, error) {
	return s.projects, s.err
}

type stubAccess struct {
	granted map[string]bool
}

func (s stubAccess) Check(ctx context.Context, id permissions.Identity, featureKey string) (bool, error) {
	if id.Role == permissions.RoleSuper {
		return true, nil
	}
	return s.granted[featureKey], nil
}

func newMetricsService(t *testing.T, source *stubSource, access stubAccess) *metrics.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	jsonCache := cache.NewJSONCache(client, "metrics-test", time.Minute)
	return metrics.NewService(nil, source, access, jsonCache)
}

func sampleSource() *stubSource {
	return &stubSource{
		customers: []sheets.Customer{
			{Name: "Acme", Status: "Active", MRR: 1000, PreviousMonthRevenue: 900, PlanDuration: 12},
		},
		expenses: []sheets.Expense{
			{Category: "Marketing", Amount: 500, Date: time.Now()},
		},
		projects: []sheets.Project{
			{Name: "Launch", ValueAmount: 4000, CompletionDate: time.Now()},
		},
	}
}

func TestUserMetricsFiltersByPermission(t *testing.T) {
	source := sampleSource()
	svc := newMetricsService(t, source, stubAccess{granted: map[string]bool{
		"metrics.mrr.view": true,
		"metrics.ltv.view": true,
	}})
	id := permissions.Identity{ID: 2, Role: "agent", Department: "Sales"}

	visible, err := svc.UserMetrics(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	require.Contains(t, visible, metrics.MetricMRR)
	require.Contains(t, visible, metrics.MetricLTV)
	require.NotContains(t, visible, metrics.MetricCAC)
}

func TestUserMetricsSuperSeesAll(t *testing.T) {
	svc := newMetricsService(t, sampleSource(), stubAccess{})
	id := permissions.Identity{ID: 1, Role: permissions.RoleSuper}

	visible, err := svc.UserMetrics(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, visible, len(metrics.Names()))
}

func TestUserMetricDeniedAndUnknown(t *testing.T) {
	svc := newMetricsService(t, sampleSource(), stubAccess{})
	id := permissions.Identity{ID: 2, Role: "agent"}

	_, err := svc.UserMetric(context.Background(), id, metrics.MetricMRR)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.UserMetric(context.Background(), id, "nonsense")
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestSnapshotIsCached(t *testing.T) {
	source := sampleSource()
	svc := newMetricsService(t, source, stubAccess{})
	id := permissions.Identity{ID: 1, Role: permissions.RoleSuper}
	ctx := context.Background()

	_, err := svc.UserMetrics(ctx, id)
	require.NoError(t, err)
	_, err = svc.UserMetrics(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), source.loads.Load())

	require.NoError(t, svc.Refresh(ctx))
	_, err = svc.UserMetrics(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(2), source.loads.Load(), "refresh should force recompute")
}

func TestComputeSurfacesSourceErrors(t *testing.T) {
	source := &stubSource{err: errors.New("gateway down")}
	svc := newMetricsService(t, source, stubAccess{})

	_, err := svc.Compute(context.Background())
	require.ErrorContains(t, err, "gateway down")
}

func TestUserRatiosRequiresInputs(t *testing.T) {
	svc := newMetricsService(t, sampleSource(), stubAccess{granted: map[string]bool{
		"metrics.cac.view": true,
		"metrics.ltv.view": true,
	}})
	id := permissions.Identity{ID: 2, Role: "agent"}

	ratios, err := svc.UserRatios(context.Background(), id)
	require.NoError(t, err)
	require.Zero(t, ratios.LTGPToCAC, "hidden ratio must be zeroed")

	denied := newMetricsService(t, sampleSource(), stubAccess{})
	_, err = denied.UserRatios(context.Background(), id)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestUserAdditionalFiltered(t *testing.T) {
	svc := newMetricsService(t, sampleSource(), stubAccess{granted: map[string]bool{
		"metrics.gross_margin.view": true,
	}})
	id := permissions.Identity{ID: 2, Role: "agent"}

	values, err := svc.UserAdditional(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Contains(t, values, "gross_margin")
}

func TestWarmPrimesCache(t *testing.T) {
	source := sampleSource()
	svc := newMetricsService(t, source, stubAccess{})

	require.NoError(t, svc.Warm(context.Background()))
	require.Equal(t, int64(1), source.loads.Load())

	id := permissions.Identity{ID: 1, Role: permissions.RoleSuper}
	_, err := svc.UserMetrics(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(1), source.loads.Load(), "read after warm should hit cache")
}
