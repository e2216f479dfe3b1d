package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pulsehq/pulse/internal/app"
	"github.com/pulsehq/pulse/internal/metrics"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/sheets"
	"github.com/pulsehq/pulse/jobs"
)

// warmupAccess lets the warmup job compute the full snapshot without a user.
type warmupAccess struct{}

func (warmupAccess) Check(ctx context.Context, id permissions.Identity, featureKey string) (bool, error) {
	return id.IsSuper(), nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	sheetCache := cache.NewJSONCache(redisClient, "sheets", cfg.SheetCacheTTL)
	sheetGateway := sheets.NewClient(cfg.SheetsAPIURL, cfg.SheetsAPIKey)
	sheetService := sheets.NewService(logger, sheetGateway, sheetCache)

	metricCache := cache.NewJSONCache(redisClient, "metrics", cfg.SheetCacheTTL)
	metricService := metrics.NewService(logger, sheetService, warmupAccess{}, metricCache)

	syncJob := jobs.NewSheetsSyncJob(sheetService, logger, nil)
	warmupJob := jobs.NewMetricsWarmupJob(metricService, logger, nil)

	syncTask, err := jobs.NewSheetsSyncTask(jobs.SheetsSyncPayload{})
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSheetsSync, Handler: syncJob.Handle},
			{Type: jobs.TaskMetricsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "5/10 * * * *", Task: jobs.NewMetricsWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
