package jobs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/sheets"
	"github.com/pulsehq/pulse/jobs"
)

type countingGateway struct {
	reads atomic.Int64
}

func (g *countingGateway) ReadRange(ctx context.Context, rangeName string) ([][]string, error) {
	g.reads.Add(1)
	return [][]string{
		{"Customer_Name", "Status", "MRR"},
		{"Acme", "Active", "100"},
	}, nil
}

func (g *countingGateway) UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error {
	return nil
}

func (g *countingGateway) AppendRow(ctx context.Context, sheet string, values []string) error {
	return nil
}

func newSheetService(t *testing.T, gateway sheets.Gateway) *sheets.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return sheets.NewService(nil, gateway, cache.NewJSONCache(client, "jobs-test", time.Minute))
}

func TestSheetsSyncInvalidatesCachedReads(t *testing.T) {
	gateway := &countingGateway{}
	svc := newSheetService(t, gateway)
	ctx := context.Background()

	_, err := svc.Customers(ctx)
	require.NoError(t, err)
	_, err = svc.Customers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), gateway.reads.Load())

	task, err := jobs.NewSheetsSyncTask(jobs.SheetsSyncPayload{})
	require.NoError(t, err)
	job := jobs.NewSheetsSyncJob(svc, nil, nil)
	require.NoError(t, job.Handle(ctx, task))

	_, err = svc.Customers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), gateway.reads.Load())
}

func TestSheetsSyncSkipsRetryOnBadPayload(t *testing.T) {
	svc := newSheetService(t, &countingGateway{})
	job := jobs.NewSheetsSyncJob(svc, nil, nil)

	task := asynq.NewTask(jobs.TaskSheetsSync, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSheetsSyncRequiresService(t *testing.T) {
	job := &jobs.SheetsSyncJob{}
	task, err := jobs.NewSheetsSyncTask(jobs.SheetsSyncPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}
