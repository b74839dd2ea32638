package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/switchhub/internal/device"
)

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the stored layout and plain RFC 3339 rows written
// by older tools.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}

func scanRecords(rows *sql.Rows) ([]device.StatusRecord, error) {
	defer rows.Close()

	var records []device.StatusRecord
	for rows.Next() {
		var rec device.StatusRecord
		var status, ts string
		if err := rows.Scan(&rec.ID, &rec.DeviceName, &status, &ts); err != nil {
			return nil, fmt.Errorf("scanning device status: %w", err)
		}
		rec.Status = device.NormalizeStatus(status)

		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = parsed

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device status: %w", err)
	}
	return records, nil
}
