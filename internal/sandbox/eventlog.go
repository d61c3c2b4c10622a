package sandbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shellbox/shellbox/pkg/types"
)

const eventLogSchema = `
CREATE TABLE IF NOT EXISTS command_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    idx INTEGER NOT NULL,
    command TEXT NOT NULL,
    standalone INTEGER NOT NULL DEFAULT 0,
    exit_code INTEGER,
    duration_ms INTEGER,
    stdout_len INTEGER,
    stderr_len INTEGER,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lifecycle (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    detail TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// EventLog is the durable per-sandbox audit trail. The in-memory
// trajectory answers API reads; the event log survives a server restart
// for postmortem inspection. Write failures are reported to the caller but
// never fail the operation being logged.
type EventLog struct {
	db        *sql.DB
	sandboxID string
}

// OpenEventLog opens (or creates) the SQLite log for a sandbox under
// dataDir.
func OpenEventLog(dataDir, sandboxID string) (*EventLog, error) {
	dir := filepath.Join(dataDir, sandboxID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "events.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(eventLogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &EventLog{db: db, sandboxID: sandboxID}, nil
}

// Close closes the database connection.
func (e *EventLog) Close() error {
	return e.db.Close()
}

// LogCommand records an executed command. Output bodies are not persisted,
// only their sizes; the full output lives in the trajectory.
func (e *EventLog) LogCommand(rec types.TrajectoryRecord) error {
	_, err := e.db.Exec(
		`INSERT INTO command_log (idx, command, standalone, exit_code, duration_ms, stdout_len, stderr_len) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Index, rec.Command, rec.Standalone, rec.ExitCode,
		rec.EndedAt.Sub(rec.StartedAt).Milliseconds(),
		len(rec.Stdout), len(rec.Stderr))
	if err != nil {
		return fmt.Errorf("failed to log command: %w", err)
	}
	return nil
}

// LogTransition records a lifecycle state change. detail carries the
// triggering error, if any.
func (e *EventLog) LogTransition(from, to types.SandboxState, detail string) error {
	_, err := e.db.Exec(
		`INSERT INTO lifecycle (from_state, to_state, detail) VALUES (?, ?, ?)`,
		string(from), string(to), detail)
	return err
}

// LifecycleEntry is one recorded state change.
type LifecycleEntry struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Lifecycle returns the recorded state changes in order.
func (e *EventLog) Lifecycle() ([]LifecycleEntry, error) {
	rows, err := e.db.Query(
		`SELECT from_state, to_state, COALESCE(detail, ''), created_at FROM lifecycle ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LifecycleEntry
	for rows.Next() {
		var le LifecycleEntry
		if err := rows.Scan(&le.FromState, &le.ToState, &le.Detail, &le.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, le)
	}
	return entries, rows.Err()
}

// Summary reports aggregate command statistics for the sandbox.
type Summary struct {
	Commands   int           `json:"commands"`
	Failures   int           `json:"failures"`
	TotalSpent time.Duration `json:"-"`
}

// MarshalJSON includes the spent time in milliseconds.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	return json.Marshal(struct {
		alias
		SpentMS int64 `json:"spent_ms"`
	}{alias(s), s.TotalSpent.Milliseconds()})
}

// CommandSummary aggregates the command log.
func (e *EventLog) CommandSummary() (Summary, error) {
	var s Summary
	var ms sql.NullInt64
	err := e.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(exit_code != 0), 0), SUM(duration_ms) FROM command_log`).
		Scan(&s.Commands, &s.Failures, &ms)
	if err != nil {
		return Summary{}, err
	}
	s.TotalSpent = time.Duration(ms.Int64) * time.Millisecond
	return s, nil
}

// RemoveEventLogData removes a sandbox's on-disk state.
func RemoveEventLogData(dataDir, sandboxID string) error {
	return os.RemoveAll(filepath.Join(dataDir, sandboxID))
}
