package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/snapshot"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    INTEGER NOT NULL,
	applied_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_results (
	source_id TEXT NOT NULL,
	slot      TEXT NOT NULL CHECK (slot IN ('current', 'previous')),
	payload   BLOB NOT NULL,
	PRIMARY KEY (source_id, slot)
);
CREATE TABLE IF NOT EXISTS aggregation_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	report      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS aggregation_runs_started_at_idx ON aggregation_runs (started_at DESC);
`

// SQLite stores snapshots in a single database file.
// Timestamps are stored as unix nanoseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save replaces the persisted snapshot with st in one transaction.
func (s *SQLite) Save(ctx context.Context, st *snapshot.State) error {
	rows, err := stateRows(st)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_results`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_results (source_id, slot, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.sourceID, r.slot, r.payload); err != nil {
			return fmt.Errorf("failed to write %s result for %s: %w", r.slot, r.sourceID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, version, applied_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET version = excluded.version, applied_at = excluded.applied_at`,
		int64(st.Version), st.AppliedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. Returns nil if nothing was saved yet.
func (s *SQLite) Load(ctx context.Context) (*snapshot.State, error) {
	st := newState()

	var version, appliedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, applied_at FROM snapshot_meta WHERE id = 1`,
	).Scan(&version, &appliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	st.Version = uint64(version)
	st.AppliedAt = time.Unix(0, appliedAt).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT source_id, slot, payload FROM snapshot_results`)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.sourceID, &r.slot, &r.payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot result: %w", err)
		}
		if err := placeRow(st, r); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot results: %w", err)
	}
	return st, nil
}

// RecordRun stores a run report.
func (s *SQLite) RecordRun(ctx context.Context, report *aggregate.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO aggregation_runs (id, started_at, finished_at, succeeded, failed, report)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET finished_at = excluded.finished_at,
		   succeeded = excluded.succeeded, failed = excluded.failed, report = excluded.report`,
		report.RunID.String(), report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
		report.Succeeded(), report.Failed(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run reports, newest first.
func (s *SQLite) RecentRuns(ctx context.Context, limit int) ([]aggregate.Report, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM aggregation_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var reports []aggregate.Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var r aggregate.Report
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return reports, nil
}
