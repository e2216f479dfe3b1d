package metrichttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pulsehq/pulse/internal/shared"
)

// MountRoutes registers the metrics endpoints onto the router. The caller
// wraps the group with identity resolution; per-metric access is enforced
// by the service.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.handleOverview)
	r.Get("/{name}", h.handleMetric)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/refresh", h.handleRefresh)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
