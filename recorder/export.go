package recorder

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"sealink/telemetry"
)

// SessionInfo describes one recorded session. EndedAt is zero while
// the session is still recording.
type SessionInfo struct {
	ID        string    `json:"id"`
	Port      string    `json:"port"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Samples   int64     `json:"samples"`
}

// Sessions lists recorded sessions oldest first, with sample counts.
func (r *Recorder) Sessions(ctx context.Context) (sessions []SessionInfo, err error) {
	db, err := r.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var info SessionInfo
		var ended sql.NullTime
		if err = rows.Scan(&info.ID, &info.Port, &info.StartedAt, &ended, &info.Samples); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if ended.Valid {
			info.EndedAt = ended.Time
		}
		sessions = append(sessions, info)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// ExportSession writes one session's samples to w as CSV: a timestamp
// column, the fixed columns of every sensor kind present and one
// column per generic key in first-seen order. Each sample fills its
// own columns and leaves the rest empty.
func (r *Recorder) ExportSession(ctx context.Context, sessionID string, w io.Writer) (err error) {
	db, err := r.getReadDB()
	if err != nil {
		return fmt.Errorf("getting read connection: %w", err)
	}

	var id string
	if err = db.QueryRowContext(ctx, selectSessionSQL, sessionID).Scan(&id); err != nil {
		return fmt.Errorf("looking up session %q: %w", sessionID, err)
	}

	rows, err := db.QueryContext(ctx, selectSessionSamplesSQL, sessionID)
	if err != nil {
		return fmt.Errorf("querying samples: %w", err)
	}
	defer closeWithError(rows, &err)

	return writeCSV(w, rows)
}

// ExportAll writes every recorded sample across all sessions to w as
// one CSV dataset, in insertion order.
func (r *Recorder) ExportAll(ctx context.Context, w io.Writer) (err error) {
	db, err := r.getReadDB()
	if err != nil {
		return fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectAllSamplesSQL)
	if err != nil {
		return fmt.Errorf("querying samples: %w", err)
	}
	defer closeWithError(rows, &err)

	return writeCSV(w, rows)
}

type exportRow struct {
	timestamp time.Time
	kind      telemetry.Kind
	tempC     sql.NullFloat64
	humidity  sql.NullFloat64
	yaw       sql.NullFloat64
	pitch     sql.NullFloat64
	roll      sql.NullFloat64
	payload   sql.NullString
	entries   []payloadEntry
}

func writeCSV(w io.Writer, rows *sql.Rows) error {
	var (
		data       []exportRow
		hasDHT     bool
		hasIMU     bool
		keyOrder   []string
		keyColumns = make(map[string]int)
	)

	for rows.Next() {
		var row exportRow
		if err := rows.Scan(&row.timestamp, &row.kind, &row.tempC, &row.humidity,
			&row.yaw, &row.pitch, &row.roll, &row.payload); err != nil {
			return fmt.Errorf("scanning sample: %w", err)
		}

		switch row.kind {
		case telemetry.KindDHT:
			hasDHT = true
		case telemetry.KindIMU:
			hasIMU = true
		case telemetry.KindGeneric:
			entries, err := unmarshalPayload(row.payload)
			if err != nil {
				return fmt.Errorf("decoding payload: %w", err)
			}
			row.entries = entries
			for _, e := range entries {
				if _, ok := keyColumns[e.Key]; !ok {
					keyColumns[e.Key] = 0
					keyOrder = append(keyOrder, e.Key)
				}
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating samples: %w", err)
	}

	header := []string{"timestamp"}
	if hasDHT {
		header = append(header, "temperature_c", "humidity_pct")
	}
	if hasIMU {
		header = append(header, "yaw", "pitch", "roll")
	}
	for _, k := range keyOrder {
		keyColumns[k] = len(header)
		header = append(header, k)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range data {
		for i := range record {
			record[i] = ""
		}
		record[0] = row.timestamp.Format(telemetry.TimeFormat)

		col := 1
		if hasDHT {
			if row.tempC.Valid {
				record[col] = formatFloat(row.tempC.Float64)
			}
			if row.humidity.Valid {
				record[col+1] = formatFloat(row.humidity.Float64)
			}
			col += 2
		}
		if hasIMU {
			if row.yaw.Valid {
				record[col] = formatFloat(row.yaw.Float64)
			}
			if row.pitch.Valid {
				record[col+1] = formatFloat(row.pitch.Float64)
			}
			if row.roll.Valid {
				record[col+2] = formatFloat(row.roll.Float64)
			}
		}
		for _, e := range row.entries {
			record[keyColumns[e.Key]] = e.Value
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func unmarshalPayload(payload sql.NullString) ([]payloadEntry, error) {
	if !payload.Valid || payload.String == "" {
		return nil, nil
	}
	var entries []payloadEntry
	if err := json.Unmarshal([]byte(payload.String), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
