// Package memory provides an in-process refresh history and snapshot store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// MaxRuns bounds the retained refresh history.
const MaxRuns = 500

type Memory struct {
	mu        sync.RWMutex
	runs      []sqlite.RefreshRun // ordered by StartedAt, oldest first
	snapshots map[string]sqlite.Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]sqlite.Snapshot),
	}
}

// RecordRefreshRun appends a run. An empty ID is generated.
func (m *Memory) RecordRefreshRun(_ context.Context, run sqlite.RefreshRun) (sqlite.RefreshRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	// Binary search for insertion point; runs arrive almost always in order
	i := sort.Search(len(m.runs), func(i int) bool {
		return m.runs[i].StartedAt.After(run.StartedAt)
	})
	m.runs = append(m.runs, sqlite.RefreshRun{})
	copy(m.runs[i+1:], m.runs[i:])
	m.runs[i] = run

	if len(m.runs) > MaxRuns {
		m.runs = append([]sqlite.RefreshRun(nil), m.runs[len(m.runs)-MaxRuns:]...)
	}
	return run, nil
}

// ListRefreshRuns returns the most recent runs, newest first.
// A limit <= 0 returns every run.
func (m *Memory) ListRefreshRuns(_ context.Context, limit int) ([]sqlite.RefreshRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]sqlite.RefreshRun, 0, n)
	for i := len(m.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

// SaveSnapshot replaces the snapshot for source. Tables are immutable once
// loaded, so the pointer is kept as is.
func (m *Memory) SaveSnapshot(_ context.Context, source string, table *sheet.Table, capturedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[source] = sqlite.Snapshot{Source: source, Table: table, CapturedAt: capturedAt}
	return nil
}

// LatestSnapshot returns the snapshot for source, or nil if there is none.
func (m *Memory) LatestSnapshot(_ context.Context, source string) (*sqlite.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[source]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}
