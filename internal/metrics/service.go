package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pulsehq/pulse/internal/features"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/sheets"
)

// Source supplies the spreadsheet records metrics are computed from.
type Source interface {
	Customers(ctx context.Context) ([]sheets.Customer, error)
	Expenses(ctx context.Context) ([]sheets.Expense, error)
	Projects(ctx context.Context) ([]sheets.Project, error)
}

// Access decides whether a caller may see a feature.
type Access interface {
	Check(ctx context.Context, id permissions.Identity, featureKey string) (bool, error)
}

// Snapshot is one full computation over the current sheet data.
type Snapshot struct {
	Metrics    map[string]Metric `json:"metrics"`
	Ratios     Ratios            `json:"ratios"`
	Additional Additional        `json:"additional"`
	ComputedAt time.Time         `json:"computed_at"`
}

// Service computes, caches and access-filters dashboard metrics.
type Service struct {
	logger *slog.Logger
	source Source
	access Access
	cache  *cache.JSONCache
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the metrics service.
func NewService(logger *slog.Logger, source Source, access Access, jsonCache *cache.JSONCache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger: logger,
		source: source,
		access: access,
		cache:  jsonCache,
		now:    time.Now,
	}
}

// Compute recalculates every metric from fresh sheet reads.
func (s *Service) Compute(ctx context.Context) (Snapshot, error) {
	var (
		customers []sheets.Customer
		expenses  []sheets.Expense
		projects  []sheets.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = s.source.Customers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.source.Expenses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = s.source.Projects(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("metrics: load sheet data: %w", err)
	}

	now := s.now()
	mrr := CalcMRR(customers)
	cac := CalcCAC(customers, expenses, now)
	ltv := CalcLTV(customers)
	qvc := CalcQVC(projects, now)
	ltgp := CalcLTGP(customers)

	return Snapshot{
		Metrics: map[string]Metric{
			MetricMRR:  mrr,
			MetricCAC:  cac,
			MetricLTV:  ltv,
			MetricQVC:  qvc,
			MetricLTGP: ltgp,
		},
		Ratios: CalcRatios(ltv, ltgp, cac),
		Additional: Additional{
			NRR:                   CalcNRR(customers),
			GrossMargin:           CalcGrossMargin(customers, expenses),
			CustomerConcentration: CalcCustomerConcentration(customers),
		},
		ComputedAt: now.UTC(),
	}, nil
}

// Warm recomputes the snapshot and primes the cache.
func (s *Service) Warm(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	_, err := s.snapshot(ctx)
	return err
}

// UserMetrics returns the headline metrics the caller may see.
func (s *Service) UserMetrics(ctx context.Context, id permissions.Identity) (map[string]Metric, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	visible := make(map[string]Metric)
	for _, name := range Names() {
		ok, err := s.access.Check(ctx, id, features.MetricViewKey(name))
		if err != nil {
			return nil, err
		}
		if ok {
			visible[name] = snap.Metrics[name]
		}
	}
	return visible, nil
}

// UserMetric returns one metric, enforcing the caller's access to it.
func (s *Service) UserMetric(ctx context.Context, id permissions.Identity, name string) (Metric, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return Metric{}, err
	}
	metric, known := snap.Metrics[name]
	if !known {
		return Metric{}, httpx.ErrNotFound
	}
	ok, err := s.access.Check(ctx, id, features.MetricViewKey(name))
	if err != nil {
		return Metric{}, err
	}
	if !ok {
		return Metric{}, httpx.ErrForbidden
	}
	return metric, nil
}

// UserRatios returns the derived ratios whose inputs the caller may see.
// Hidden ratios are zeroed; if none are visible the caller is refused.
func (s *Service) UserRatios(ctx context.Context, id permissions.Identity) (Ratios, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return Ratios{}, err
	}
	cacOK, err := s.access.Check(ctx, id, features.MetricViewKey(MetricCAC))
	if err != nil {
		return Ratios{}, err
	}
	ltvOK, err := s.access.Check(ctx, id, features.MetricViewKey(MetricLTV))
	if err != nil {
		return Ratios{}, err
	}
	ltgpOK, err := s.access.Check(ctx, id, features.MetricViewKey(MetricLTGP))
	if err != nil {
		return Ratios{}, err
	}

	var ratios Ratios
	if cacOK && ltvOK {
		ratios.LTVToCAC = snap.Ratios.LTVToCAC
	}
	if cacOK && ltgpOK {
		ratios.LTGPToCAC = snap.Ratios.LTGPToCAC
	}
	if !(cacOK && (ltvOK || ltgpOK)) {
		return Ratios{}, httpx.ErrForbidden
	}
	return ratios, nil
}

// Additional metric names to their gating feature keys.
var additionalGates = map[string]string{
	"nrr":                    features.MetricViewKey("retention"),
	"gross_margin":           features.MetricViewKey("gross_margin"),
	"customer_concentration": features.MetricViewKey("customer_count"),
}

// UserAdditional returns the secondary indicators the caller may see.
func (s *Service) UserAdditional(ctx context.Context, id permissions.Identity) (map[string]float64, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	values := map[string]float64{
		"nrr":                    snap.Additional.NRR,
		"gross_margin":           snap.Additional.GrossMargin,
		"customer_concentration": snap.Additional.CustomerConcentration,
	}
	visible := make(map[string]float64)
	for name, key := range additionalGates {
		ok, err := s.access.Check(ctx, id, key)
		if err != nil {
			return nil, err
		}
		if ok {
			visible[name] = values[name]
		}
	}
	return visible, nil
}

// Refresh invalidates the cached snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// snapshot loads the cached computation, collapsing concurrent recomputes.
func (s *Service) snapshot(ctx context.Context) (Snapshot, error) {
	key, err := s.cache.BuildKey(ctx, "metrics", "snapshot")
	if err != nil {
		return Snapshot{}, err
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var snap Snapshot
		err := s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (interface{}, error) {
			return s.Compute(ctx)
		})
		return snap, err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return value.(Snapshot), nil
}
