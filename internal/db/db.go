// Package db provides persistent storage for snapshots and run history.
// PostgreSQL (pgx) serves shared deployments; SQLite serves single-node ones.
package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/snapshot"
	"github.com/jonathan/discount-watch/internal/types"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Slot names for the two results kept per source.
const (
	SlotCurrent  = "current"
	SlotPrevious = "previous"
)

// DefaultRecentRuns is the default number of runs returned by RecentRuns.
const DefaultRecentRuns = 20

// Store persists snapshots and run reports.
type Store interface {
	snapshot.Store
	RecordRun(ctx context.Context, report *aggregate.Report) error
	RecentRuns(ctx context.Context, limit int) ([]aggregate.Report, error)
	Close() error
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverPostgres:
		pg, err := ConnectPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case DriverSQLite:
		lite, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := lite.EnsureSchema(ctx); err != nil {
			_ = lite.Close()
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// row is one persisted source result.
type row struct {
	sourceID string
	slot     string
	payload  []byte
}

func stateRows(st *snapshot.State) ([]row, error) {
	rows := make([]row, 0, len(st.Current)+len(st.Previous))
	add := func(slot string, results map[string]types.SourceResult) error {
		for id, r := range results {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal %s result for %s: %w", slot, id, err)
			}
			rows = append(rows, row{sourceID: id, slot: slot, payload: payload})
		}
		return nil
	}
	if err := add(SlotCurrent, st.Current); err != nil {
		return nil, err
	}
	if err := add(SlotPrevious, st.Previous); err != nil {
		return nil, err
	}
	return rows, nil
}

func placeRow(st *snapshot.State, r row) error {
	var res types.SourceResult
	if err := json.Unmarshal(r.payload, &res); err != nil {
		return fmt.Errorf("failed to unmarshal %s result for %s: %w", r.slot, r.sourceID, err)
	}
	switch r.slot {
	case SlotCurrent:
		st.Current[r.sourceID] = res
	case SlotPrevious:
		st.Previous[r.sourceID] = res
	default:
		return fmt.Errorf("unknown snapshot slot %q for %s", r.slot, r.sourceID)
	}
	return nil
}

func newState() *snapshot.State {
	return &snapshot.State{
		Current:  map[string]types.SourceResult{},
		Previous: map[string]types.SourceResult{},
	}
}
