/*
scheduler.go - Periodic table refresh

PURPOSE:
  Keeps the cached spreadsheet warm by reloading it on a fixed interval,
  so requests rarely pay for a fetch and the refresh history shows how
  reliable the source is.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Refreshes once immediately on Start
  - Each refresh gets its own timeout; Stop cancels one in flight
  - Failures are logged; the cache keeps serving whatever the fetcher
    fell back to

CONFIGURATION:
  - Interval: How often to reload (0 disables the scheduler)
  - Timeout:  Upper bound for one reload (default: 1 minute)

USAGE:
  scheduler := NewRefreshScheduler(tableCache, 15*time.Minute, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshTable (RunNow) and Health (LastRun, NextRunTime)
  - cache/cache.go: Refresh
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/sheet"
)

// Refresher reloads the table.
type Refresher interface {
	Refresh(ctx context.Context) (*sheet.Table, error)
}

// RefreshScheduler reloads the table on an interval.
type RefreshScheduler struct {
	Tables   Refresher
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger

	ticker   *time.Ticker
	stop     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	lastTick time.Time
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(tables Refresher, interval time.Duration, logger *zap.Logger) *RefreshScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshScheduler{
		Tables:   tables,
		Interval: interval,
		Timeout:  time.Minute,
		Logger:   logger,
	}
}

// Enabled reports whether the scheduler has an interval to run on.
func (rs *RefreshScheduler) Enabled() bool {
	return rs.Interval > 0
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled() {
		rs.Logger.Info("refresh scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker, rs.stop)

	rs.Logger.Info("refresh scheduler started", zap.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for a refresh in flight to return.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.Logger.Info("refresh scheduler stopped")
}

func (rs *RefreshScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.tick(ctx)

	for {
		select {
		case <-ticker.C:
			rs.tick(ctx)
		case <-stop:
			return
		}
	}
}

func (rs *RefreshScheduler) tick(ctx context.Context) {
	rs.mu.Lock()
	rs.lastTick = time.Now()
	rs.mu.Unlock()
	_, _ = rs.refresh(ctx)
}

func (rs *RefreshScheduler) refresh(parent context.Context) (*sheet.Table, error) {
	ctx, cancel := context.WithTimeout(parent, rs.Timeout)
	defer cancel()

	start := time.Now()
	table, err := rs.Tables.Refresh(ctx)

	rs.mu.Lock()
	rs.lastRun = start
	rs.lastErr = err
	rs.mu.Unlock()

	if err != nil {
		rs.Logger.Warn("refresh failed", zap.Error(err))
		return nil, err
	}
	rs.Logger.Info("refresh completed",
		zap.Int("rows", table.Len()),
		zap.Duration("duration", time.Since(start)))
	return table, nil
}

// RunNow refreshes immediately and records the outcome as the last run.
// Used by the manual refresh endpoint.
func (rs *RefreshScheduler) RunNow(ctx context.Context) (*sheet.Table, error) {
	return rs.refresh(ctx)
}

// LastRun returns when the last refresh started and how it ended.
func (rs *RefreshScheduler) LastRun() (time.Time, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRun, rs.lastErr
}

// NextRunTime returns when the next scheduled refresh will occur. Manual
// RunNow calls do not move it.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastTick.IsZero() {
		return time.Now()
	}
	return rs.lastTick.Add(rs.Interval)
}
