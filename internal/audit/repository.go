package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence for the admin action log.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	TimelineWindow(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
	TimelineAll(ctx context.Context, filters Filters) ([]Entry, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends an entry to the log.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO audit_logs (actor_id, action, detail, ip, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query, entry.ActorID, entry.Action, entry.Detail, entry.IP, createdAt)
	return err
}

const timelineSelect = `
	SELECT l.id, l.actor_id, COALESCE(u.email, ''), l.action, l.detail, COALESCE(l.ip, ''), l.created_at
	FROM audit_logs l
	LEFT JOIN users u ON u.id = l.actor_id`

// TimelineWindow fetches a single page of the log, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	where, args := timelineWhere(filters)
	args = append(args, limit, offset)
	query := timelineSelect + where +
		" ORDER BY l.created_at DESC, l.id DESC" +
		placeholderSuffix(len(args))
	return r.queryEntries(ctx, query, args)
}

// TimelineAll fetches every matching row, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, filters Filters) ([]Entry, error) {
	where, args := timelineWhere(filters)
	query := timelineSelect + where + " ORDER BY l.created_at DESC, l.id DESC"
	return r.queryEntries(ctx, query, args)
}

func (r *PGRepository) queryEntries(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.Action, &entry.Detail, &entry.IP, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = createdAt.Time
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func timelineWhere(filters Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func() string {
		return "$" + strconv.Itoa(len(args))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From.UTC())
		clauses = append(clauses, "l.created_at >= "+next())
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To.UTC())
		clauses = append(clauses, "l.created_at < "+next())
	}
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		clauses = append(clauses, "l.actor_id = "+next())
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		args = append(args, action)
		clauses = append(clauses, "l.action = "+next())
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholderSuffix(argCount int) string {
	return " LIMIT $" + strconv.Itoa(argCount-1) + " OFFSET $" + strconv.Itoa(argCount)
}

var _ Repository = (*PGRepository)(nil)
