package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/induction/core/schedule"
)

// SQLiteLedger persists ledger entries to a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates the database at path and ensures schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS ledger_entries (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        schedule_id TEXT NOT NULL,
        depot_id TEXT,
        kind TEXT,
        at INTEGER,
        entry TEXT
    );
    CREATE INDEX IF NOT EXISTS ledger_entries_schedule ON ledger_entries (schedule_id, seq);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteLedger{db: db}, nil
}

// Append writes the entry to the database.
func (l *SQLiteLedger) Append(ctx context.Context, e schedule.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, schedule_id, depot_id, kind, at, entry) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScheduleID, e.DepotID, string(e.Kind), e.At.UnixNano(), string(b))
	return err
}

// List returns the entries of a schedule in append order.
func (l *SQLiteLedger) List(ctx context.Context, scheduleID string) ([]schedule.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT entry FROM ledger_entries WHERE schedule_id = ? ORDER BY seq`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []schedule.Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e schedule.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error { return l.db.Close() }
