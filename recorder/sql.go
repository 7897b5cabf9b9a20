package recorder

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    port       TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS samples (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL REFERENCES sessions(id),
    seq           INTEGER NOT NULL,
    timestamp     TIMESTAMP NOT NULL,
    kind          TEXT NOT NULL,
    temperature_c REAL,
    humidity_pct  REAL,
    yaw           REAL,
    pitch         REAL,
    roll          REAL,
    payload       TEXT
);

CREATE INDEX IF NOT EXISTS idx_samples_session ON samples (session_id, id);
`

const (
	insertSessionSQL = `
INSERT INTO sessions (id, port, started_at)
VALUES (?, ?, ?)`

	endSessionSQL = `
UPDATE sessions
SET ended_at = ?
WHERE id = ?`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     seq,
                     timestamp,
                     kind,
                     temperature_c,
                     humidity_pct,
                     yaw,
                     pitch,
                     roll,
                     payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    s.id,
    s.port,
    s.started_at,
    s.ended_at,
    COUNT(m.id)
FROM sessions s
LEFT JOIN samples m ON m.session_id = s.id
GROUP BY s.id
ORDER BY s.started_at, s.id`

	selectSessionSamplesSQL = `
SELECT
    timestamp,
    kind,
    temperature_c,
    humidity_pct,
    yaw,
    pitch,
    roll,
    payload
FROM samples
WHERE session_id = ?
ORDER BY id`

	selectAllSamplesSQL = `
SELECT
    timestamp,
    kind,
    temperature_c,
    humidity_pct,
    yaw,
    pitch,
    roll,
    payload
FROM samples
ORDER BY id`
)
