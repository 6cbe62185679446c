// Package snapshot keeps the current and previous result of every source.
//
// The whole snapshot is an immutable State published through one atomic
// pointer. Readers never lock; Apply builds the next State and swaps it in.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/discount-watch/internal/types"
)

// State is one published version of the snapshot. It must not be modified.
type State struct {
	Version   uint64                        `json:"version"`
	AppliedAt time.Time                     `json:"applied_at"`
	Current   map[string]types.SourceResult `json:"current"`
	Previous  map[string]types.SourceResult `json:"previous"`
}

// Store persists states. Load returns nil, nil when nothing was saved yet.
type Store interface {
	Save(ctx context.Context, st *State) error
	Load(ctx context.Context) (*State, error)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex // serializes writers
	state atomic.Pointer[State]
	store Store
	now   func() time.Time
}

// New creates an empty cache. store may be nil for a memory-only cache.
func New(store Store) *Cache {
	c := &Cache{store: store, now: time.Now}
	c.state.Store(emptyState())
	return c
}

func emptyState() *State {
	return &State{
		Current:  map[string]types.SourceResult{},
		Previous: map[string]types.SourceResult{},
	}
}

// View returns the currently published state for multi-source reads.
func (c *Cache) View() *State {
	return c.state.Load()
}

// Get returns the current result of a source; false when there is no data yet.
func (c *Cache) Get(sourceID string) (types.SourceResult, bool) {
	r, ok := c.state.Load().Current[sourceID]
	if !ok {
		return types.SourceResult{}, false
	}
	return r.Clone(), true
}

// GetPrevious returns the result that was current before the last apply of the source.
func (c *Cache) GetPrevious(sourceID string) (types.SourceResult, bool) {
	r, ok := c.state.Load().Previous[sourceID]
	if !ok {
		return types.SourceResult{}, false
	}
	return r.Clone(), true
}

// Pair returns current and previous from the same state version.
// previous is nil when the source has been applied only once.
func (c *Cache) Pair(sourceID string) (current types.SourceResult, previous *types.SourceResult, ok bool) {
	st := c.state.Load()
	cur, ok := st.Current[sourceID]
	if !ok {
		return types.SourceResult{}, nil, false
	}
	if prev, has := st.Previous[sourceID]; has {
		p := prev.Clone()
		previous = &p
	}
	return cur.Clone(), previous, true
}

// Sources returns the IDs that have current data, sorted.
func (c *Cache) Sources() []string {
	st := c.state.Load()
	ids := make([]string, 0, len(st.Current))
	for id := range st.Current {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply publishes a batch: for each source in it, previous takes the old current
// and current takes the new result. Sources absent from the batch keep both.
// With a store configured, the new state is saved first; on failure nothing changes.
func (c *Cache) Apply(ctx context.Context, batch map[string]types.SourceResult) error {
	if len(batch) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.state.Load()
	next := &State{
		Version:   old.Version + 1,
		AppliedAt: c.now(),
		Current:   make(map[string]types.SourceResult, len(old.Current)+len(batch)),
		Previous:  make(map[string]types.SourceResult, len(old.Previous)+len(batch)),
	}
	for id, r := range old.Current {
		next.Current[id] = r
	}
	for id, r := range old.Previous {
		next.Previous[id] = r
	}
	for id, r := range batch {
		if cur, ok := old.Current[id]; ok {
			next.Previous[id] = cur
		}
		r = r.Clone()
		r.SourceID = id
		next.Current[id] = r
	}

	if c.store != nil {
		if err := c.store.Save(ctx, next); err != nil {
			return fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}

	c.state.Store(next)
	return nil
}

// Restore replaces the in-memory state with the last persisted one.
// It is a no-op without a store or when the store is empty.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if st == nil {
		return nil
	}
	if st.Current == nil {
		st.Current = map[string]types.SourceResult{}
	}
	if st.Previous == nil {
		st.Previous = map[string]types.SourceResult{}
	}
	c.state.Store(st)
	return nil
}
