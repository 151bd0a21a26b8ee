/*
fetcher.go - Spreadsheet loading with refresh bookkeeping and snapshot fallback

PURPOSE:
  SnapshotFetcher is the production cache.Fetcher. It loads the configured
  source, records the attempt in the refresh history and keeps the last good
  table so a flaky spreadsheet host does not blank the dashboard.

OUTCOMES:
  succeeded: Source loaded, snapshot replaced
  fallback:  Source failed, latest snapshot served instead
  failed:    Source failed and no snapshot exists

  Bookkeeping failures are logged and never fail the load.

SEE ALSO:
  - sheet/loader.go: The underlying loader
  - store/sqlite/sqlite.go: Run and snapshot persistence
  - cache/cache.go: Calls Fetch on a miss
*/
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

// ErrNoRows is returned when the source loaded but held no data rows.
var ErrNoRows = errors.New("source returned no rows")

// Loader loads a table from a location.
type Loader interface {
	Load(ctx context.Context, location string) (*sheet.Table, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, location string) (*sheet.Table, error)

func (f LoaderFunc) Load(ctx context.Context, location string) (*sheet.Table, error) {
	return f(ctx, location)
}

// Store is the persistence the fetcher needs.
type Store interface {
	RecordRefreshRun(ctx context.Context, run sqlite.RefreshRun) (sqlite.RefreshRun, error)
	SaveSnapshot(ctx context.Context, source string, table *sheet.Table, capturedAt time.Time) error
	LatestSnapshot(ctx context.Context, source string) (*sqlite.Snapshot, error)
}

// SnapshotFetcher loads one source. A nil Store disables bookkeeping.
type SnapshotFetcher struct {
	Loader Loader
	Store  Store
	Source string
	Logger *zap.Logger

	now func() time.Time
}

// NewSnapshotFetcher creates a fetcher for source.
func NewSnapshotFetcher(loader Loader, store Store, source string, logger *zap.Logger) *SnapshotFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotFetcher{
		Loader: loader,
		Store:  store,
		Source: source,
		Logger: logger,
		now:    time.Now,
	}
}

// Fetch loads the source, falling back to the latest snapshot on failure.
// It matches cache.Fetcher.
func (f *SnapshotFetcher) Fetch(ctx context.Context) (*sheet.Table, error) {
	started := f.now()

	table, err := f.Loader.Load(ctx, f.Source)
	if err == nil && table.IsEmpty() {
		err = ErrNoRows
	}
	if err == nil {
		f.saveSnapshot(ctx, table, started)
		f.record(ctx, sqlite.RefreshRun{
			Status:    sqlite.RunSucceeded,
			Rows:      table.Len(),
			Columns:   len(table.Columns),
			StartedAt: started,
		})
		return table, nil
	}

	f.Logger.Warn("source load failed", zap.String("source", f.Source), zap.Error(err))

	if snap := f.latestSnapshot(ctx); snap != nil {
		f.Logger.Info("serving snapshot",
			zap.String("source", f.Source),
			zap.Time("captured_at", snap.CapturedAt),
			zap.Int("rows", snap.Table.Len()))
		f.record(ctx, sqlite.RefreshRun{
			Status:    sqlite.RunFallback,
			Rows:      snap.Table.Len(),
			Columns:   len(snap.Table.Columns),
			Error:     err.Error(),
			StartedAt: started,
		})
		return snap.Table, nil
	}

	f.record(ctx, sqlite.RefreshRun{
		Status:    sqlite.RunFailed,
		Error:     err.Error(),
		StartedAt: started,
	})
	if table == nil {
		table = sheet.NewTable("", nil, nil)
	}
	return table, err
}

func (f *SnapshotFetcher) saveSnapshot(ctx context.Context, table *sheet.Table, at time.Time) {
	if f.Store == nil {
		return
	}
	if err := f.Store.SaveSnapshot(ctx, f.Source, table, at); err != nil {
		f.Logger.Warn("snapshot save failed", zap.String("source", f.Source), zap.Error(err))
	}
}

func (f *SnapshotFetcher) latestSnapshot(ctx context.Context) *sqlite.Snapshot {
	if f.Store == nil {
		return nil
	}
	snap, err := f.Store.LatestSnapshot(ctx, f.Source)
	if err != nil {
		f.Logger.Warn("snapshot lookup failed", zap.String("source", f.Source), zap.Error(err))
		return nil
	}
	if snap == nil || snap.Table.IsEmpty() {
		return nil
	}
	return snap
}

func (f *SnapshotFetcher) record(ctx context.Context, run sqlite.RefreshRun) {
	if f.Store == nil {
		return
	}
	run.Source = f.Source
	run.FinishedAt = f.now()
	if _, err := f.Store.RecordRefreshRun(ctx, run); err != nil {
		f.Logger.Warn("refresh run not recorded", zap.String("source", f.Source), zap.Error(err))
	}
}
