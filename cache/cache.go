/*
cache.go - Process-wide read-through cache for the goal table

PURPOSE:
  The spreadsheet is fetched once and shared by every request until it
  expires or is invalidated. The cache is an explicit object handed to the
  API layer; nothing reads the table from a package-level variable.

LOOKUP ORDER (Get):
  1. In-memory table, if younger than TTL (TTL 0 = never expires)
  2. Backend (Redis), if configured
  3. Fetcher - the single population point

  Concurrent misses share one population call (singleflight). The shared
  call runs detached from the first caller's cancellation, bounded by the
  load timeout. An empty table is never stored: the caller gets ErrEmptyTable and the next Get
  retries.

INVALIDATION:
  Invalidate drops the in-memory table and deletes the backend entry.
  A load that was already in flight when Invalidate ran does not repopulate
  the cache with its (now stale) result.

SEE ALSO:
  - redis.go: Backend implementation shared between processes
  - ingest/fetcher.go: The Fetcher used in production
  - api/scheduler.go: Periodic Refresh
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/attainment-dashboard/sheet"
)

// ErrEmptyTable is returned when the fetcher produced a table with no rows.
var ErrEmptyTable = errors.New("fetched table is empty")

// DefaultKey is the backend key used when none is configured.
const DefaultKey = "dashboard:table"

// Fetcher loads a fresh table from the source.
type Fetcher func(ctx context.Context) (*sheet.Table, error)

// Backend is an optional second tier shared between processes.
type Backend interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TableCache is a read-through cache with a single population point.
type TableCache struct {
	key     string
	fetch   Fetcher
	ttl     time.Duration
	timeout time.Duration
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	sf singleflight.Group

	mu         sync.RWMutex
	table      *sheet.Table
	loadedAt   time.Time
	generation uint64
}

// Option configures a TableCache.
type Option func(*TableCache)

// WithTTL sets how long a loaded table stays fresh. Zero never expires.
func WithTTL(ttl time.Duration) Option {
	return func(c *TableCache) { c.ttl = ttl }
}

// WithLoadTimeout bounds one shared population call. Zero means no bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *TableCache) { c.timeout = d }
}

// WithBackend adds a shared second tier.
func WithBackend(b Backend) Option {
	return func(c *TableCache) { c.backend = b }
}

// WithKey sets the backend key.
func WithKey(key string) Option {
	return func(c *TableCache) { c.key = key }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *TableCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TableCache) { c.now = now }
}

// New creates a cache around fetch.
func New(fetch Fetcher, opts ...Option) *TableCache {
	if fetch == nil {
		panic("cache: fetcher is required")
	}
	c := &TableCache{
		key:    DefaultKey,
		fetch:  fetch,
		ttl:     10 * time.Minute,
		timeout: time.Minute,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached table, loading it if needed.
func (c *TableCache) Get(ctx context.Context) (*sheet.Table, error) {
	if t, ok := c.fresh(); ok {
		return t, nil
	}

	v, err, shared := c.sf.Do(c.key, func() (any, error) {
		if t, ok := c.fresh(); ok {
			return t, nil
		}
		loadCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, c.timeout)
			defer cancel()
		}
		return c.populate(loadCtx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("table load shared", zap.String("key", c.key))
	}
	return v.(*sheet.Table), nil
}

// Invalidate drops the cached table from memory and from the backend.
func (c *TableCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.table = nil
	c.loadedAt = time.Time{}
	c.generation++
	c.mu.Unlock()

	c.sf.Forget(c.key)

	if c.backend != nil {
		if err := c.backend.Delete(ctx, c.key); err != nil {
			c.logger.Warn("backend delete failed", zap.String("key", c.key), zap.Error(err))
		}
	}
	c.logger.Info("table cache invalidated", zap.String("key", c.key))
}

// Refresh invalidates and reloads.
func (c *TableCache) Refresh(ctx context.Context) (*sheet.Table, error) {
	c.Invalidate(ctx)
	return c.Get(ctx)
}

// LoadedAt returns when the current table was stored, zero if none.
func (c *TableCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *TableCache) fresh() (*sheet.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.loadedAt) >= c.ttl {
		return nil, false
	}
	return c.table, true
}

func (c *TableCache) populate(ctx context.Context) (*sheet.Table, error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	if c.backend != nil {
		var shared sheet.Table
		err := c.backend.Get(ctx, c.key, &shared)
		switch {
		case err == nil && !shared.IsEmpty():
			c.logger.Debug("table loaded from backend", zap.String("key", c.key))
			c.store(gen, &shared)
			return &shared, nil
		case err != nil:
			c.logger.Debug("backend miss", zap.String("key", c.key), zap.Error(err))
		}
	}

	start := c.now()
	t, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading table: %w", err)
	}
	if t.IsEmpty() {
		return nil, ErrEmptyTable
	}

	if c.backend != nil {
		if err := c.backend.Set(ctx, c.key, t, c.ttl); err != nil {
			c.logger.Warn("backend set failed", zap.String("key", c.key), zap.Error(err))
		}
	}

	c.store(gen, t)
	c.logger.Info("table loaded",
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns)),
		zap.Duration("duration", c.now().Sub(start)))
	return t, nil
}

func (c *TableCache) store(gen uint64, t *sheet.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.table = t
	c.loadedAt = c.now()
}
