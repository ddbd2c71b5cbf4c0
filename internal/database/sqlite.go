package database

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// sqliteSchema mirrors migrations/ for the embedded store. Timestamps are
// RFC 3339 text in UTC.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    organizer_id  TEXT NOT NULL,
    session_token TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'ended')),
    start_time    TEXT NOT NULL,
    end_time      TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_organizer ON events (organizer_id, start_time);
CREATE INDEX IF NOT EXISTS idx_events_status_end ON events (status, end_time);

CREATE TABLE IF NOT EXISTS students (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    full_name  TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
    id                     TEXT PRIMARY KEY,
    event_id               TEXT NOT NULL,
    event_name             TEXT NOT NULL DEFAULT '',
    attendee_id            TEXT NOT NULL,
    attendee_name          TEXT NOT NULL DEFAULT '',
    attendee_email         TEXT NOT NULL DEFAULT '',
    device_info            TEXT NOT NULL DEFAULT '',
    time_in                TEXT NOT NULL,
    time_out               TEXT,
    total_duration_minutes INTEGER,
    status                 TEXT NOT NULL CHECK (status IN ('present', 'late')),
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL,
    UNIQUE (event_id, attendee_id),
    CHECK ((time_out IS NULL) = (total_duration_minutes IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_attendance_attendee ON attendance (attendee_id, time_in);

CREATE TABLE IF NOT EXISTS receipts (
    id            TEXT PRIMARY KEY,
    record_id     TEXT NOT NULL,
    action        TEXT NOT NULL,
    recipient     TEXT NOT NULL,
    status        TEXT NOT NULL,
    retry_count   INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at    TEXT NOT NULL,
    completed_at  TEXT
);
`

// MemoryPath names a shared-cache in-memory database. Every connection of a
// pool opened on it sees the same data; the database is dropped when the
// last connection closes.
func MemoryPath(name string) string {
	return "file:" + url.PathEscape(name) + "?mode=memory&cache=shared"
}

// NewSQLitePool opens the embedded attendance store. In tests use
// MemoryPath or a file under t.TempDir(); a bare ":memory:" is rejected by
// the pool because each connection would get its own database.
func NewSQLitePool(path string, poolSize int, logger *slog.Logger) (*sqlitex.Pool, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	logger.Info("sqlite pool opened", "path", path, "pool_size", poolSize)
	return pool, nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}
