package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pulsehq/pulse/internal/alfred"
	audithttp "github.com/pulsehq/pulse/internal/audit/http"
	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/features"
	metrichttp "github.com/pulsehq/pulse/internal/metrics/http"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/shared"
	"github.com/pulsehq/pulse/internal/users"
	"github.com/pulsehq/pulse/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Pool           *pgxpool.Pool
	Redis          *redis.Client

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *permissions.Handler
	MetricsHandler     *metrichttp.Handler
	AlfredHandler      *alfred.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler

	Perms   permissions.Middleware
	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router serving the dashboard API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := `{"status":"ok"}`
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if params.Pool != nil {
			if err := params.Pool.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded","postgres":"down"}`
			}
		}
		if status == http.StatusOK && params.Redis != nil {
			if err := params.Redis.Ping(ctx).Err(); err != nil {
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded","redis":"down"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.MetricsHandler != nil {
			r.Route("/metrics", func(r chi.Router) {
				r.Use(params.Perms.Authenticate())
				params.MetricsHandler.MountRoutes(r)
			})
		}
		if params.AlfredHandler != nil {
			r.Route("/alfred", func(r chi.Router) {
				r.Use(params.Perms.Require(features.KeyAlfredChat))
				params.AlfredHandler.MountRoutes(r)
			})
		}
		if params.AuditHandler != nil {
			r.Route("/admin/logs", func(r chi.Router) {
				r.Use(params.Perms.Require(features.KeyLogsView))
				params.AuditHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
