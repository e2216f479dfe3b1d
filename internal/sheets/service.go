package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse/internal/platform/cache"
)

// Source provides typed access to the business spreadsheet.
type Source interface {
	Customers(ctx context.Context) ([]Customer, error)
	Expenses(ctx context.Context) ([]Expense, error)
	Projects(ctx context.Context) ([]Project, error)
	Snapshots(ctx context.Context) ([]Snapshot, error)
	ListRows(ctx context.Context, sheet string) ([]Row, error)
	UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error
	AppendRow(ctx context.Context, sheet string, values []string) error
}

// Ranges read per tab. A:I covers every populated column.
var sheetRanges = map[string]string{
	SheetCustomers: SheetCustomers + "!A:I",
	SheetExpenses:  SheetExpenses + "!A:E",
	SheetProjects:  SheetProjects + "!A:I",
	SheetSnapshots: SheetSnapshots + "!A:H",
}

// Service caches gateway reads in Redis and funnels mutations back through
// the gateway, invalidating the cache afterwards.
type Service struct {
	logger  *slog.Logger
	gateway Gateway
	cache   *cache.JSONCache
}

// NewService constructs the sheet source.
func NewService(logger *slog.Logger, gateway Gateway, jsonCache *cache.JSONCache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, gateway: gateway, cache: jsonCache}
}

// Customers returns every customer row.
func (s *Service) Customers(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	err := s.fetch(ctx, SheetCustomers, "", &customers, func(values [][]string) any {
		return parseCustomers(values)
	})
	return customers, err
}

// Expenses returns every expense row.
func (s *Service) Expenses(ctx context.Context) ([]Expense, error) {
	var expenses []Expense
	err := s.fetch(ctx, SheetExpenses, "", &expenses, func(values [][]string) any {
		return parseExpenses(values)
	})
	return expenses, err
}

// Projects returns every project row.
func (s *Service) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.fetch(ctx, SheetProjects, "", &projects, func(values [][]string) any {
		return parseProjects(values)
	})
	return projects, err
}

// Snapshots returns the monthly snapshot rows.
func (s *Service) Snapshots(ctx context.Context) ([]Snapshot, error) {
	var snapshots []Snapshot
	err := s.fetch(ctx, SheetSnapshots, "", &snapshots, func(values [][]string) any {
		return parseSnapshots(values)
	})
	return snapshots, err
}

// ListRows returns raw header-keyed rows for a known tab.
func (s *Service) ListRows(ctx context.Context, sheet string) ([]Row, error) {
	if _, ok := sheetRanges[sheet]; !ok {
		return nil, fmt.Errorf("sheets: unknown sheet %q", sheet)
	}
	var rows []Row
	err := s.fetch(ctx, sheet, ":rows", &rows, func(values [][]string) any {
		return RowsFromValues(values)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateRow writes a row through the gateway and drops cached reads.
func (s *Service) UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error {
	if _, ok := sheetRanges[sheet]; !ok {
		return fmt.Errorf("sheets: unknown sheet %q", sheet)
	}
	if err := s.gateway.UpdateRow(ctx, sheet, rowIndex, values); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AppendRow appends a row through the gateway and drops cached reads.
func (s *Service) AppendRow(ctx context.Context, sheet string, values []string) error {
	if _, ok := sheetRanges[sheet]; !ok {
		return fmt.Errorf("sheets: unknown sheet %q", sheet)
	}
	if err := s.gateway.AppendRow(ctx, sheet, values); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Refresh forces the next read of every tab to hit the gateway.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) fetch(ctx context.Context, sheet, suffix string, dest any, transform func([][]string) any) error {
	rangeName, ok := sheetRanges[sheet]
	if !ok {
		return fmt.Errorf("sheets: unknown sheet %q", sheet)
	}
	key, err := s.cache.BuildKey(ctx, "sheets", sheet+suffix)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (interface{}, error) {
		values, err := s.gateway.ReadRange(ctx, rangeName)
		if err != nil {
			return nil, err
		}
		return transform(values), nil
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump sheet cache", slog.Any("error", err))
	}
}

var _ Source = (*Service)(nil)
