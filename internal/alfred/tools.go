package alfred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pulsehq/pulse/internal/features"
	"github.com/pulsehq/pulse/internal/metrics"
	"github.com/pulsehq/pulse/internal/permissions"
	"github.com/pulsehq/pulse/internal/platform/httpx"
	"github.com/pulsehq/pulse/internal/sheets"
)

// Tool names exposed to the model.
const (
	ToolGetMetric     = "get_metric"
	ToolListSheetRows = "list_sheet_rows"
	ToolUpdateRow     = "update_sheet_row"
	ToolAppendRow     = "append_sheet_row"
)

// MetricReader discloses one metric to a caller.
type MetricReader interface {
	UserMetric(ctx context.Context, id permissions.Identity, name string) (metrics.Metric, error)
}

// RowStore reads and mutates sheet rows.
type RowStore interface {
	ListRows(ctx context.Context, sheet string) ([]sheets.Row, error)
	UpdateRow(ctx context.Context, sheet string, rowIndex int, values []string) error
	AppendRow(ctx context.Context, sheet string, values []string) error
}

// Access answers feature checks for tool availability.
type Access interface {
	Check(ctx context.Context, id permissions.Identity, featureKey string) (bool, error)
}

type tool struct {
	def        FunctionDef
	featureKey string
	run        func(ctx context.Context, id permissions.Identity, args json.RawMessage) (any, error)
}

type toolset struct {
	metrics MetricReader
	rows    RowStore
	access  Access
}

// featureKey "" means the tool is available to every authenticated caller;
// get_metric re-checks disclosure per metric inside the call.
func (t *toolset) all() []tool {
	return []tool{
		{
			def: FunctionDef{
				Name:        ToolGetMetric,
				Description: "Get the current value of a business metric the user may view",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"metric": {"type": "string", "enum": ["mrr", "cac", "ltv", "qvc", "ltgp"], "description": "Metric name"}
					},
					"required": ["metric"]
				}`),
			},
			run: t.runGetMetric,
		},
		{
			def: FunctionDef{
				Name:        ToolListSheetRows,
				Description: "List the rows of a business data sheet",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"sheet": {"type": "string", "enum": ["Customers", "Expenses", "Projects", "Monthly_Snapshots"], "description": "Sheet tab name"}
					},
					"required": ["sheet"]
				}`),
			},
			featureKey: features.KeyConfigView,
			run:        t.runListRows,
		},
		{
			def: FunctionDef{
				Name:        ToolUpdateRow,
				Description: "Replace one data row of a business data sheet. Row 1 is the first row below the header.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"sheet": {"type": "string", "enum": ["Customers", "Expenses", "Projects", "Monthly_Snapshots"]},
						"row": {"type": "integer", "description": "1-based data row index"},
						"values": {"type": "array", "items": {"type": "string"}, "description": "Full row values in column order"}
					},
					"required": ["sheet", "row", "values"]
				}`),
			},
			featureKey: features.KeyConfigEdit,
			run:        t.runUpdateRow,
		},
		{
			def: FunctionDef{
				Name:        ToolAppendRow,
				Description: "Append one data row to a business data sheet",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"sheet": {"type": "string", "enum": ["Customers", "Expenses", "Projects", "Monthly_Snapshots"]},
						"values": {"type": "array", "items": {"type": "string"}, "description": "Full row values in column order"}
					},
					"required": ["sheet", "values"]
				}`),
			},
			featureKey: features.KeyConfigEdit,
			run:        t.runAppendRow,
		},
	}
}

// available filters the toolset by the caller's permissions.
func (t *toolset) available(ctx context.Context, id permissions.Identity) ([]tool, error) {
	var out []tool
	for _, candidate := range t.all() {
		if candidate.featureKey != "" {
			ok, err := t.access.Check(ctx, id, candidate.featureKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, candidate)
	}
	return out, nil
}

func defs(tools []tool) []ToolDef {
	out := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDef{Type: "function", Function: t.def})
	}
	return out
}

func findTool(tools []tool, name string) (tool, bool) {
	for _, t := range tools {
		if t.def.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

type getMetricArgs struct {
	Metric string `json:"metric"`
}

func (t *toolset) runGetMetric(ctx context.Context, id permissions.Identity, args json.RawMessage) (any, error) {
	var parsed getMetricArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("alfred: get_metric arguments: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(parsed.Metric))
	metric, err := t.metrics.UserMetric(ctx, id, name)
	if err != nil {
		if errors.Is(err, httpx.ErrForbidden) {
			return map[string]any{"error": "you do not have access to this metric"}, nil
		}
		if errors.Is(err, httpx.ErrNotFound) {
			return map[string]any{"error": "unknown metric"}, nil
		}
		return nil, err
	}
	return map[string]any{
		"metric":            name,
		"current_value":     metric.Current,
		"previous_value":    metric.Previous,
		"change_percentage": metric.ChangePct,
		"trend":             metric.Trend,
		"display":           metrics.FormatCurrency(metric.Current),
	}, nil
}

type listRowsArgs struct {
	Sheet string `json:"sheet"`
}

func (t *toolset) runListRows(ctx context.Context, id permissions.Identity, args json.RawMessage) (any, error) {
	var parsed listRowsArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("alfred: list_sheet_rows arguments: %w", err)
	}
	rows, err := t.rows.ListRows(ctx, parsed.Sheet)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	return map[string]any{"sheet": parsed.Sheet, "rows": rows, "count": len(rows)}, nil
}

type updateRowArgs struct {
	Sheet  string   `json:"sheet"`
	Row    int      `json:"row"`
	Values []string `json:"values"`
}

func (t *toolset) runUpdateRow(ctx context.Context, id permissions.Identity, args json.RawMessage) (any, error) {
	var parsed updateRowArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("alfred: update_sheet_row arguments: %w", err)
	}
	if err := t.rows.UpdateRow(ctx, parsed.Sheet, parsed.Row, parsed.Values); err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	return map[string]any{"status": "updated", "sheet": parsed.Sheet, "row": parsed.Row}, nil
}

type appendRowArgs struct {
	Sheet  string   `json:"sheet"`
	Values []string `json:"values"`
}

func (t *toolset) runAppendRow(ctx context.Context, id permissions.Identity, args json.RawMessage) (any, error) {
	var parsed appendRowArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("alfred: append_sheet_row arguments: %w", err)
	}
	if err := t.rows.AppendRow(ctx, parsed.Sheet, parsed.Values); err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	return map[string]any{"status": "appended", "sheet": parsed.Sheet}, nil
}
