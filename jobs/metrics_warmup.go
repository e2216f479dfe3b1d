package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pulsehq/pulse/internal/jobs"
	"github.com/pulsehq/pulse/internal/metrics"
)

// MetricsWarmupJob recomputes the headline metric snapshot so dashboard
// requests hit a warm cache.
type MetricsWarmupJob struct {
	Metrics *metrics.Service
	Logger  *slog.Logger
	JobMet  *jobmetrics.Metrics
}

// NewMetricsWarmupJob wires dependencies for the warmup handler.
func NewMetricsWarmupJob(metricsSvc *metrics.Service, logger *slog.Logger, jobMet *jobmetrics.Metrics) *MetricsWarmupJob {
	return &MetricsWarmupJob{Metrics: metricsSvc, Logger: logger, JobMet: jobMet}
}

// Handle processes metric warmup tasks.
func (j *MetricsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Metrics == nil {
		return errors.New("metrics warmup: handler not configured")
	}

	tracker := j.jobMetrics().Track(TaskMetricsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting metric warmup")

	warmCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if resultErr = j.Metrics.Warm(warmCtx); resultErr != nil {
		logger.Error("metric warmup", slog.Any("error", resultErr))
		return resultErr
	}

	logger.Info("completed metric warmup", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *MetricsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMetricsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskMetricsWarmup))
}

func (j *MetricsWarmupJob) jobMetrics() *jobmetrics.Metrics {
	if j.JobMet != nil {
		return j.JobMet
	}
	return defaultJobMetrics
}
