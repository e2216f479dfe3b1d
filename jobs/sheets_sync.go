package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pulsehq/pulse/internal/jobs"
	"github.com/pulsehq/pulse/internal/sheets"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SheetsSyncJob refreshes cached sheet data from the upstream gateway so the
// first dashboard request after a sync never pays the fetch cost.
type SheetsSyncJob struct {
	Sheets  *sheets.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSheetsSyncJob wires dependencies for the sync handler.
func NewSheetsSyncJob(sheetsSvc *sheets.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SheetsSyncJob {
	return &SheetsSyncJob{Sheets: sheetsSvc, Logger: logger, Metrics: metrics}
}

// Handle processes sheet sync tasks.
func (j *SheetsSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sheets == nil {
		return errors.New("sheets sync: handler not configured")
	}
	var payload SheetsSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskSheetsSync)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting sheet sync")

	syncCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if resultErr = j.Sheets.Refresh(syncCtx); resultErr != nil {
		logger.Error("sheet sync", slog.Any("error", resultErr))
		return resultErr
	}

	logger.Info("completed sheet sync", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *SheetsSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSheetsSync))
	}
	return slog.Default().With(slog.String("job", TaskSheetsSync))
}

func (j *SheetsSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
