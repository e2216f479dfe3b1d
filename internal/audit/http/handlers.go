package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsehq/pulse/internal/audit"
	"github.com/pulsehq/pulse/internal/platform/httpx"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 50
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for log data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Handler serves the admin action log.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler constructs a log handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

type entryPayload struct {
	ID         int64     `json:"id"`
	ActorID    int64     `json:"actor_id"`
	ActorEmail string    `json:"actor_email,omitempty"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type pagingPayload struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

type timelineResponse struct {
	Entries []entryPayload `json:"entries"`
	Paging  pagingPayload  `json:"paging"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		var v validationError
		if errors.As(err, &v) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid filter: "+v.field)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	entries := make([]entryPayload, 0, len(result.Rows))
	for _, row := range result.Rows {
		entries = append(entries, entryPayload{
			ID:         row.ID,
			ActorID:    row.ActorID,
			ActorEmail: row.ActorEmail,
			Action:     row.Action,
			Detail:     row.Detail,
			IP:         row.IP,
			CreatedAt:  row.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Entries: entries,
		Paging: pagingPayload{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
			PrevPage: result.Paging.PrevPage,
			NextPage: result.Paging.NextPage,
		},
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		var v validationError
		if errors.As(err, &v) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid filter: "+v.field)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="admin-log.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	now := h.now().UTC()
	query := r.URL.Query()

	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.Filters{}, validationError{field: "to"}
	}
	// End of the selected day.
	toTime = toTime.Add(24 * time.Hour)

	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange - 24*time.Hour).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.Filters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return audit.Filters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRange+24*time.Hour {
		return audit.Filters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	var actorID int64
	if v := strings.TrimSpace(query.Get("actor_id")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "actor_id"}
		}
		actorID = parsed
	}

	return audit.Filters{
		From:     fromTime,
		To:       toTime,
		ActorID:  actorID,
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
