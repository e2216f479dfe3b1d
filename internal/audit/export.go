package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteCSV renders log entries as a CSV document.
func WriteCSV(rows []Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"at", "actor_id", "actor_email", "action", "detail", "ip"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.ActorEmail,
			row.Action,
			row.Detail,
			row.IP,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
