package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsehq/pulse/internal/audit"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.Entry
	lastFilters audit.Filters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.Filters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newLogHandler(t *testing.T, service *stubTimelineService) *Handler {
	t.Helper()
	handler := NewHandler(nil, service)
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	return handler
}

func TestTimelineReturnsEntries(t *testing.T) {
	rows := []audit.Entry{{
		ID:         1,
		ActorID:    7,
		ActorEmail: "admin@test.local",
		Action:     "permissions.override.set",
		Detail:     "user=2 keys=1",
		CreatedAt:  time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	handler := newLogHandler(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/logs?from=2026-03-01&to=2026-03-15", nil)
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "admin@test.local") {
		t.Fatalf("expected actor email in response: %s", body)
	}
	if service.lastFilters.From.Format("2006-01-02") != "2026-03-01" {
		t.Fatalf("unexpected filters: %+v", service.lastFilters)
	}
	// The upper bound covers the whole selected day.
	if service.lastFilters.To.Format("2006-01-02") != "2026-03-16" {
		t.Fatalf("unexpected to bound: %+v", service.lastFilters.To)
	}
}

func TestTimelineDefaultsDateRange(t *testing.T) {
	service := &stubTimelineService{}
	handler := newLogHandler(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/logs", nil)
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if service.lastFilters.To.Sub(service.lastFilters.From) > 9*24*time.Hour {
		t.Fatalf("expected roughly one-week default window, got %v", service.lastFilters.To.Sub(service.lastFilters.From))
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	handler := newLogHandler(t, &stubTimelineService{})

	cases := map[string]string{
		"bad to":       "/api/admin/logs?to=notadate",
		"bad page":     "/api/admin/logs?page=0",
		"bad actor":    "/api/admin/logs?actor_id=x",
		"inverted":     "/api/admin/logs?from=2026-03-20&to=2026-03-01",
		"too wide":     "/api/admin/logs?from=2020-01-01&to=2026-03-01",
		"bad pagesize": "/api/admin/logs?page_size=-5",
	}
	for name, target := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		handler.handleTimeline(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	rows := []audit.Entry{{ID: 1, ActorID: 7, ActorEmail: "admin@test.local", Action: "permissions.role.promote", CreatedAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}}
	service := &stubTimelineService{exportRows: rows}
	handler := newLogHandler(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/logs/export.csv?from=2026-03-01&to=2026-03-05", nil)
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), "permissions.role.promote") {
		t.Fatalf("expected action in csv: %s", rr.Body.String())
	}
}
