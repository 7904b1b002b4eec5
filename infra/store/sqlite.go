package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/induction/core/schedule"
)

// SQLiteStore implements schedule.Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps writes serialized and in-memory databases shared.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS schedules (
        id TEXT PRIMARY KEY,
        depot_id TEXT NOT NULL,
        date TEXT NOT NULL,
        status TEXT NOT NULL,
        version INTEGER NOT NULL,
        doc TEXT NOT NULL,
        UNIQUE (depot_id, date)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// Create inserts a new schedule with version 1.
func (s *SQLiteStore) Create(ctx context.Context, sc *schedule.Schedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schedules WHERE id = ? OR (depot_id = ? AND date = ?)`,
		sc.ID, sc.DepotID, day(sc.Date)).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return schedule.ErrDuplicate
	}
	prev := sc.Version
	sc.Version = 1
	doc, err := json.Marshal(sc)
	if err != nil {
		sc.Version = prev
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (id, depot_id, date, status, version, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.DepotID, day(sc.Date), string(sc.Status), sc.Version, string(doc)); err != nil {
		sc.Version = prev
		return err
	}
	return tx.Commit()
}

// Get returns the schedule with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*schedule.Schedule, error) {
	return s.scan(s.db.QueryRowContext(ctx, `SELECT doc FROM schedules WHERE id = ?`, id))
}

// GetByDepotDate returns the schedule of a depot for one operating day.
func (s *SQLiteStore) GetByDepotDate(ctx context.Context, depotID string, date time.Time) (*schedule.Schedule, error) {
	return s.scan(s.db.QueryRowContext(ctx, `SELECT doc FROM schedules WHERE depot_id = ? AND date = ?`, depotID, day(date)))
}

func (s *SQLiteStore) scan(row *sql.Row) (*schedule.Schedule, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrNotFound
		}
		return nil, err
	}
	var sc schedule.Schedule
	if err := json.Unmarshal([]byte(doc), &sc); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return &sc, nil
}

// Update replaces the stored schedule when its version equals expectedVersion.
func (s *SQLiteStore) Update(ctx context.Context, sc *schedule.Schedule, expectedVersion int) error {
	next := *sc
	next.Version = expectedVersion + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET status = ?, version = ?, doc = ? WHERE id = ? AND version = ?`,
		string(next.Status), next.Version, string(doc), sc.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, sc.ID); err != nil {
			return err
		}
		return schedule.ErrVersionConflict
	}
	sc.Version = next.Version
	return nil
}

// DeleteDraft removes a schedule that is still a draft.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status != schedule.StatusDraft {
		return &schedule.TransitionError{ScheduleID: id, From: cur.Status, To: schedule.StatusDraft}
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND status = ?`, id, string(schedule.StatusDraft))
	return err
}

// List returns the schedules of a depot ordered by date. An empty depot
// lists every schedule.
func (s *SQLiteStore) List(ctx context.Context, depotID string) ([]*schedule.Schedule, error) {
	query := `SELECT doc FROM schedules`
	var args []any
	if depotID != "" {
		query += ` WHERE depot_id = ?`
		args = append(args, depotID)
	}
	query += ` ORDER BY date, depot_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*schedule.Schedule
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sc schedule.Schedule
		if err := json.Unmarshal([]byte(doc), &sc); err != nil {
			return nil, fmt.Errorf("unmarshal schedule: %w", err)
		}
		out = append(out, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
