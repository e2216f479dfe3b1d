package metrichttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pulsehq/pulse/internal/metrics"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/httpx"
)

// MetricsService defines the dashboard data contract used by the handler.
type MetricsService interface {
	UserMetrics(ctx context.Context, id permissions.Identity) (map[string]metrics.Metric, error)
	UserMetric(ctx context.Context, id permissions.Identity, name string) (metrics.Metric, error)
	UserRatios(ctx context.Context, id permissions.Identity) (metrics.Ratios, error)
	UserAdditional(ctx context.Context, id permissions.Identity) (map[string]float64, error)
	Refresh(ctx context.Context) error
}

// Handler serves the metrics dashboard API.
type Handler struct {
	logger  *slog.Logger
	service MetricsService
}

// NewHandler constructs the metrics HTTP handler.
func NewHandler(logger *slog.Logger, service MetricsService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type metricPayload struct {
	Current          float64 `json:"current_value"`
	Previous         float64 `json:"previous_value"`
	ChangePct        float64 `json:"change_percentage"`
	Trend            string  `json:"trend"`
	CurrentDisplay   string  `json:"current_display"`
	ChangePctDisplay string  `json:"change_display"`
}

type overviewResponse struct {
	Metrics    map[string]metricPayload `json:"metrics"`
	Ratios     map[string]float64       `json:"ratios,omitempty"`
	Additional map[string]float64       `json:"additional,omitempty"`
}

func toMetricPayload(m metrics.Metric) metricPayload {
	return metricPayload{
		Current:          m.Current,
		Previous:         m.Previous,
		ChangePct:        m.ChangePct,
		Trend:            m.Trend,
		CurrentDisplay:   metrics.FormatCurrency(m.Current),
		ChangePctDisplay: metrics.FormatPercent(m.ChangePct),
	}
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	id := permissions.IdentityFromContext(r.Context())

	visible, err := h.service.UserMetrics(r.Context(), id)
	if err != nil {
		h.logger.Error("load metrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := overviewResponse{Metrics: make(map[string]metricPayload, len(visible))}
	for name, metric := range visible {
		payload.Metrics[name] = toMetricPayload(metric)
	}

	if ratios, err := h.service.UserRatios(r.Context(), id); err == nil {
		payload.Ratios = map[string]float64{}
		if ratios.LTVToCAC != 0 {
			payload.Ratios["ltv_to_cac"] = ratios.LTVToCAC
		}
		if ratios.LTGPToCAC != 0 {
			payload.Ratios["ltgp_to_cac"] = ratios.LTGPToCAC
		}
	} else if !errors.Is(err, httpx.ErrForbidden) {
		h.logger.Error("load ratios", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	additional, err := h.service.UserAdditional(r.Context(), id)
	if err != nil {
		h.logger.Error("load additional metrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if len(additional) > 0 {
		payload.Additional = additional
	}

	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) handleMetric(w http.ResponseWriter, r *http.Request) {
	id := permissions.IdentityFromContext(r.Context())
	name := strings.ToLower(chi.URLParam(r, "name"))

	metric, err := h.service.UserMetric(r.Context(), id, name)
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrForbidden) {
			h.logger.Error("load metric", slog.String("metric", name), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMetricPayload(metric))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh metrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
