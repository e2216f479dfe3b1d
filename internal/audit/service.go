package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Service coordinates recording and retrieval of the admin action log.
type Service struct {
	logger *slog.Logger
	repo   Repository
}

// NewService constructs a new audit Service.
func NewService(logger *slog.Logger, repo Repository) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo}
}

// Record appends an entry for a request-scoped admin action. Failures are
// logged rather than returned so a broken log never blocks the mutation.
func (s *Service) Record(r *http.Request, actorID int64, action, detail string) {
	entry := Entry{
		ActorID:   actorID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if r != nil {
		entry.IP = clientIP(r)
	}
	ctx := context.Background()
	if r != nil {
		ctx = context.WithoutCancel(r.Context())
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Warn("record audit entry",
			slog.String("action", action),
			slog.Int64("actor_id", actorID),
			slog.Any("error", err),
		)
	}
}

// Timeline fetches one page of the log.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the full matching log without paging.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
