package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pulsehq/pulse/cmd/pulse/cli"
	"github.com/pulsehq/pulse/internal/alfred"
	"github.com/pulsehq/pulse/internal/app"
	"github.com/pulsehq/pulse/internal/audit"
	audithttp "github.com/pulsehq/pulse/internal/audit/http"
	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/features"
	"github.com/pulsehq/pulse/internal/metrics"
	metrichttp "github.com/pulsehq/pulse/internal/metrics/http"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/cache"
	"github.com/pulsehq/pulse/internal/platform/db"
	"github.com/pulsehq/pulse/internal/shared"
	"github.com/pulsehq/pulse/internal/sheets"
	"github.com/pulsehq/pulse/internal/users"
	"github.com/pulsehq/pulse/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(os.Args[2:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pulse_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)

	featuresRepo := features.NewRepository(dbpool)
	featuresService := features.NewService(featuresRepo)

	permStore := permissions.NewPGStore(dbpool)
	resolver := permissions.NewResolver(permStore, featuresService)
	perms := permissions.Middleware{Resolver: resolver, Directory: usersService, Logger: logger}

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(logger, auditRepo)

	usersHandler := users.NewHandler(logger, usersService, perms)
	permissionsHandler := permissions.NewHandler(logger, resolver, featuresService, perms, auditService)

	sheetCache := cache.NewJSONCache(redisClient, "sheets", cfg.SheetCacheTTL)
	sheetGateway := sheets.NewClient(cfg.SheetsAPIURL, cfg.SheetsAPIKey)
	sheetService := sheets.NewService(logger, sheetGateway, sheetCache)

	metricCache := cache.NewJSONCache(redisClient, "metrics", cfg.SheetCacheTTL)
	metricService := metrics.NewService(logger, sheetService, resolver, metricCache)
	metricsHandler := metrichttp.NewHandler(logger, metricService)

	var chatClient alfred.ChatClient
	if cfg.OpenAIAPIKey != "" {
		chatClient = alfred.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		logger.Warn("assistant disabled, OPENAI_API_KEY not set")
	}
	alfredService := alfred.NewService(logger, chatClient, redisClient, metricService, sheetService, resolver)
	alfredHandler := alfred.NewHandler(logger, alfredService, usersService, auditService)

	auditHandler := audithttp.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	httpMetrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		Pool:               dbpool,
		Redis:              redisClient,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		MetricsHandler:     metricsHandler,
		AlfredHandler:      alfredHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Perms:              perms,
		Metrics:            httpMetrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles `pulse jobs trigger <name>` and `pulse jobs stats`.
func runJobsCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pulse jobs [trigger <name>|stats]")
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init jobs cli:", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pulse jobs trigger <name>")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "trigger:", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "stats:", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		fmt.Fprintln(os.Stderr, "unknown jobs command:", args[0])
		return 2
	}
	return 0
}
