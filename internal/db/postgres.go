package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/snapshot"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	version    BIGINT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_results (
	source_id TEXT NOT NULL,
	slot      TEXT NOT NULL CHECK (slot IN ('current', 'previous')),
	payload   JSONB NOT NULL,
	PRIMARY KEY (source_id, slot)
);
CREATE TABLE IF NOT EXISTS aggregation_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	succeeded   INT NOT NULL,
	failed      INT NOT NULL,
	report      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS aggregation_runs_started_at_idx ON aggregation_runs (started_at DESC);
`

// Postgres wraps a PostgreSQL connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool to the database
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool
func (db *Postgres) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// EnsureSchema creates the tables if they do not exist
func (db *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save replaces the persisted snapshot with st in one transaction
func (db *Postgres) Save(ctx context.Context, st *snapshot.State) error {
	rows, err := stateRows(st)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM snapshot_results`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO snapshot_results (source_id, slot, payload) VALUES ($1, $2, $3)`,
			r.sourceID, r.slot, r.payload,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write snapshot results: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshot_meta (id, version, applied_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET version = $1, applied_at = $2`,
		int64(st.Version), st.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. Returns nil if nothing was saved yet.
func (db *Postgres) Load(ctx context.Context) (*snapshot.State, error) {
	st := newState()

	var version int64
	err := db.pool.QueryRow(ctx,
		`SELECT version, applied_at FROM snapshot_meta WHERE id = 1`,
	).Scan(&version, &st.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	st.Version = uint64(version)

	rows, err := db.pool.Query(ctx, `SELECT source_id, slot, payload FROM snapshot_results`)
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

// RecordRun stores a run report
func (db *Postgres) RecordRun(ctx context.Context, report *aggregate.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO aggregation_runs (id, started_at, finished_at, succeeded, failed, report)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET finished_at = $3, succeeded = $4, failed = $5, report = $6`,
		report.RunID, report.StartedAt, report.FinishedAt, report.Succeeded(), report.Failed(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run reports, newest first
func (db *Postgres) RecentRuns(ctx context.Context, limit int) ([]aggregate.Report, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}

	rows, err := db.pool.Query(ctx,
		`SELECT report FROM aggregation_runs ORDER BY started_at DESC LIMIT $1`, limit)
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
