// Package recorder persists telemetry sessions to a SQLite log and
// exports recorded data as CSV.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"sealink/hub"
	"sealink/telemetry"
)

var (
	// ErrLogWriteFailed marks a failed insert into the session log.
	ErrLogWriteFailed = errors.New("session log write failed")

	// ErrSessionActive is returned by StartSession while another
	// session is still recording.
	ErrSessionActive = errors.New("recording session already active")

	// ErrNoActiveSession is returned by Append and Stop when nothing
	// is recording.
	ErrNoActiveSession = errors.New("no active recording session")
)

// Recorder appends samples of the active session to a SQLite log and
// serves exports from a separate read-only connection, so exporting
// never contends with a live recording. All methods are safe for
// concurrent use.
type Recorder struct {
	dbPath string
	logger *slog.Logger

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error

	mu         sync.Mutex
	sessionID  string
	insertStmt *sql.Stmt

	appends  atomic.Int64
	failures atomic.Int64
}

// New creates a recorder backed by the SQLite file at dbPath. The file
// and schema are created lazily on first use.
func New(dbPath string, logger *slog.Logger) *Recorder {
	return &Recorder{dbPath: dbPath, logger: logger}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (r *Recorder) getWriteDB() (*sql.DB, error) {
	r.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", r.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			r.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			r.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		r.writeDB = db
	})

	return r.writeDB, r.writeDBErr
}

func (r *Recorder) getReadDB() (*sql.DB, error) {
	// The write side creates the file and schema, which must exist
	// before a read-only connection can serve queries.
	if _, err := r.getWriteDB(); err != nil {
		return nil, err
	}

	r.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", r.dbPath, "mode=ro"))
		if err != nil {
			r.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		r.readDB = db
	})

	return r.readDB, r.readDBErr
}

// StartSession opens a new recording session for the given port and
// returns its id. At most one session records at a time.
func (r *Recorder) StartSession(port telemetry.PortDescriptor) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID != "" {
		return "", fmt.Errorf("session %s is recording: %w", r.sessionID, ErrSessionActive)
	}

	db, err := r.getWriteDB()
	if err != nil {
		return "", fmt.Errorf("getting write connection: %w", err)
	}

	id := uuid.NewString()
	if _, err = db.Exec(insertSessionSQL, id, port.Label(), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	stmt, err := db.Prepare(insertSampleSQL)
	if err != nil {
		return "", fmt.Errorf("preparing sample insert: %w", err)
	}

	r.sessionID = id
	r.insertStmt = stmt
	r.logger.Info("Recording session started", "session", id, "port", port.Label())
	return id, nil
}

// Append writes one sample to the active session. Inserts are
// synchronous and keep arrival order; a storage failure is reported
// wrapped in ErrLogWriteFailed.
func (r *Recorder) Append(sample telemetry.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		return ErrNoActiveSession
	}

	var tempC, humidity, yaw, pitch, roll sql.NullFloat64
	var payload sql.NullString

	switch sample.Kind {
	case telemetry.KindDHT:
		tempC = sql.NullFloat64{Float64: sample.DHT.TemperatureC, Valid: true}
		humidity = sql.NullFloat64{Float64: sample.DHT.Humidity, Valid: true}
	case telemetry.KindIMU:
		yaw = sql.NullFloat64{Float64: sample.IMU.Yaw, Valid: true}
		pitch = sql.NullFloat64{Float64: sample.IMU.Pitch, Valid: true}
		roll = sql.NullFloat64{Float64: sample.IMU.Roll, Valid: true}
	case telemetry.KindGeneric:
		p, err := marshalPayload(sample.Generic)
		if err != nil {
			r.failures.Add(1)
			return fmt.Errorf("encoding payload: %w", errors.Join(ErrLogWriteFailed, err))
		}
		payload = sql.NullString{String: p, Valid: true}
	}

	_, err := r.insertStmt.Exec(
		r.sessionID,
		int64(sample.Seq),
		sample.Time.UTC(),
		string(sample.Kind),
		tempC,
		humidity,
		yaw,
		pitch,
		roll,
		payload,
	)
	if err != nil {
		r.failures.Add(1)
		return fmt.Errorf("inserting sample: %w", errors.Join(ErrLogWriteFailed, err))
	}

	r.appends.Add(1)
	return nil
}

// Stop marks the active session ended. Appends are synchronous, so
// nothing is buffered at the time Stop returns.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		return ErrNoActiveSession
	}

	id := r.sessionID
	r.sessionID = ""
	if r.insertStmt != nil {
		_ = r.insertStmt.Close()
		r.insertStmt = nil
	}

	db, err := r.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	if _, err = db.Exec(endSessionSQL, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}

	r.logger.Info("Recording session stopped", "session", id)
	return nil
}

// Active returns the id of the recording session, if any.
func (r *Recorder) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID, r.sessionID != ""
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	ActiveSession string `json:"active_session,omitempty"`
	Appends       int64  `json:"appends"`
	Failures      int64  `json:"failures"`
}

// Stats reports the active session and cumulative counters.
func (r *Recorder) Stats() Stats {
	id, _ := r.Active()
	return Stats{
		ActiveSession: id,
		Appends:       r.appends.Load(),
		Failures:      r.failures.Load(),
	}
}

// Close stops any active session state and releases both database
// connections. The recorder is unusable afterwards.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		if r.insertStmt != nil {
			_ = r.insertStmt.Close()
			r.insertStmt = nil
		}
		r.sessionID = ""
		r.mu.Unlock()

		var writeErr, readErr error

		if r.writeDB != nil {
			writeErr = r.writeDB.Close()
			r.writeDB = nil
		}

		if r.readDB != nil {
			readErr = r.readDB.Close()
			r.readDB = nil
		}

		r.closeErr = errors.Join(writeErr, readErr)
	})

	return r.closeErr
}

// payloadEntry preserves generic key order inside the payload column.
type payloadEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func marshalPayload(g *telemetry.GenericReading) (string, error) {
	entries := make([]payloadEntry, 0, len(g.Keys))
	for _, k := range g.Keys {
		entries = append(entries, payloadEntry{Key: k, Value: g.Values[k].String()})
	}
	p, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Consume drains sub and appends every sample that arrives while a
// session is recording. On a write failure the session is stopped;
// draining continues so upstream delivery is unaffected. Consume
// returns when ctx is cancelled or the subscription closes.
func Consume(ctx context.Context, sub *hub.Subscription, rec *Recorder) {
	for {
		sample, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if _, active := rec.Active(); !active {
			continue
		}
		if err := rec.Append(sample); err != nil {
			if errors.Is(err, ErrNoActiveSession) {
				continue
			}
			rec.logger.Error("Recording halted", "error", err)
			_ = rec.Stop()
		}
	}
}
