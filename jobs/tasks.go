// Package jobs defines background task types and the Asynq worker shell.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSheetsSync refreshes the sheet caches from the upstream gateway.
	TaskSheetsSync = "sheets:sync"
	// TaskMetricsWarmup recomputes the metric snapshot ahead of requests.
	TaskMetricsWarmup = "metrics:warmup"
)

// SheetsSyncPayload scopes a sync run to specific sheet tabs. An empty list
// refreshes everything.
type SheetsSyncPayload struct {
	Sheets []string `json:"sheets,omitempty"`
}

// NewSheetsSyncTask constructs a sheet sync task.
func NewSheetsSyncTask(payload SheetsSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetsSync, data), nil
}

// NewMetricsWarmupTask constructs a metric warmup task.
func NewMetricsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskMetricsWarmup, nil)
}
