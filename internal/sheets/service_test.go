package sheets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/sheets"
)

type stubGateway struct {
	reads   atomic.Int64
	values  map[string][][]string
	updated []string
	appends []string
}

func (g *stubGateway) ReadRange(ctx context.Context, rangeName string) ([][]string, error) {
	g.reads.Add(1)
	return g.values[rangeName], nil
}

func (g *stubGateway) UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error {
	g.updated = append(g.updated, sheet)
	return nil
}

func (g *stubGateway) AppendRow(ctx context.Context, sheet string, values []string) error {
	g.appends = append(g.appends, sheet)
	return nil
}

func newService(t *testing.T, gateway sheets.Gateway) *sheets.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	jsonCache := cache.NewJSONCache(client, "sheets-test", time.Minute)
	return sheets.NewService(nil, gateway, jsonCache)
}

func TestServiceCachesReads(t *testing.T) {
	gateway := &stubGateway{values: map[string][][]string{
		"Customers!A:I": {
			{"Customer_Name", "Status", "MRR"},
			{"Acme", "Active", "100"},
		},
	}}
	svc := newService(t, gateway)
	ctx := context.Background()

	first, err := svc.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.Customers(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int64(1), gateway.reads.Load())
}

func TestServiceMutationInvalidatesCache(t *testing.T) {
	gateway := &stubGateway{values: map[string][][]string{
		"Customers!A:I": {
			{"Customer_Name", "Status", "MRR"},
			{"Acme", "Active", "100"},
		},
	}}
	svc := newService(t, gateway)
	ctx := context.Background()

	_, err := svc.Customers(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.AppendRow(ctx, sheets.SheetCustomers, []string{"Globex", "Active", "50"}))
	require.Equal(t, []string{sheets.SheetCustomers}, gateway.appends)

	_, err = svc.Customers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), gateway.reads.Load(), "cache should be cold after append")
}

func TestServiceRejectsUnknownSheet(t *testing.T) {
	svc := newService(t, &stubGateway{})
	ctx := context.Background()

	_, err := svc.ListRows(ctx, "Nope")
	require.Error(t, err)
	require.Error(t, svc.UpdateRow(ctx, "Nope", 1, nil))
	require.Error(t, svc.AppendRow(ctx, "Nope", nil))
}

func TestServiceListRows(t *testing.T) {
	gateway := &stubGateway{values: map[string][][]string{
		"Expenses!A:E": {
			{"Date", "Category", "Amount"},
			{"2026-02-01", "Marketing", "500"},
		},
	}}
	svc := newService(t, gateway)

	rows, err := svc.ListRows(context.Background(), sheets.SheetExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Marketing", rows[0]["Category"])
}

func TestClientReadRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		require.Equal(t, "/values/Customers%21A:I", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]string{{"Customer_Name"}, {"Acme"}},
		})
	}))
	defer server.Close()

	client := sheets.NewClient(server.URL, "secret")
	values, err := client.ReadRange(context.Background(), "Customers!A:I")
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, "Acme", values[1][0])
}

func TestClientUpdateRow(t *testing.T) {
	var gotBody struct {
		Values []string `json:"values"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := sheets.NewClient(server.URL, "secret")
	err := client.UpdateRow(context.Background(), "Customers", 3, []string{"Acme", "Active"})
	require.NoError(t, err)
	require.Equal(t, []string{"Acme", "Active"}, gotBody.Values)

	require.Error(t, client.UpdateRow(context.Background(), "Customers", 0, nil))
}

func TestClientSurfacesGatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	client := sheets.NewClient(server.URL, "bad-key")
	_, err := client.ReadRange(context.Background(), "Customers!A:I")
	require.ErrorContains(t, err, "403")
}
