package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/cache"
	"github.com/warp/attainment-dashboard/config"
	"github.com/warp/attainment-dashboard/ingest"
	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/memory"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

var (
	flagSource string
	flagLayout string
	flagDays   int
	flagPort   int
)

var rootCmd = &cobra.Command{
	Use:          "dashboard",
	Short:        "Goal attainment dashboard",
	Long:         "Month-to-date targets, actuals and end-of-month projections per aging bucket, read from a spreadsheet.",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagSource, "source", "s", "", "Spreadsheet URL or file path (overrides SOURCE_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagLayout, "layout", "l", "", "Layout preset (default, portuguese) or TOML file (overrides LAYOUT_FILE)")
	rootCmd.PersistentFlags().IntVarP(&flagDays, "days", "n", -1, "Days remaining in the month (default: from today's date)")

	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP port (overrides PORT)")
	serveCmd.Flags().AddFlagSet(rootCmd.Flags())

	rootCmd.AddCommand(serveCmd, reportCmd)
}

// =============================================================================
// SHARED WIRING
// =============================================================================

// runHistory records refresh runs and keeps snapshots.
type runHistory interface {
	ingest.Store
	ListRefreshRuns(ctx context.Context, limit int) ([]sqlite.RefreshRun, error)
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	layout  sheet.Layout
	store   *sqlite.Store // nil when DB_PATH is empty
	history runHistory
	redis   *cache.Redis
	tables  *cache.TableCache
	engine  *metrics.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.LoadFromEnv()
	if flagSource != "" {
		cfg.SourceURL = flagSource
	}
	if flagLayout != "" {
		cfg.LayoutFile = flagLayout
	}
	if flagPort > 0 {
		cfg.Port = flagPort
	}
	if cfg.SourceURL == "" {
		return nil, errors.New("no source: set SOURCE_URL or pass --source")
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}

	layout, err := config.ResolveLayout(cfg.LayoutFile)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, layout: layout}

	if cfg.DBPath != "" {
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating data dir: %w", err)
			}
		}
		a.store, err = sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		logger.Info("Database initialized", zap.String("path", cfg.DBPath))
		a.history = a.store
	} else {
		logger.Info("No DB_PATH, keeping refresh history in memory")
		a.history = memory.NewMemory()
	}

	opts := []cache.Option{
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
		cache.WithKey("dashboard:table:" + cfg.SourceURL),
	}
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.redis, err = cache.NewRedis(pingCtx,
			cache.WithAddress(cfg.RedisAddr),
			cache.WithPassword(cfg.RedisPassword),
			cache.WithDB(cfg.RedisDB),
		)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, using in-process cache only",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			logger.Info("Cache client initialized", zap.String("addr", cfg.RedisAddr))
			opts = append(opts, cache.WithBackend(a.redis))
		}
	}

	loader := sheet.NewLoader(layout)
	loader.Delimiter = cfg.CSVDelimiter

	fetcher := ingest.NewSnapshotFetcher(loader, a.history, cfg.SourceURL, logger)

	a.tables = cache.New(fetcher.Fetch, opts...)
	a.engine = metrics.NewEngine(layout, logger)
	return a, nil
}

// daysRemaining honours --days, else the calendar.
func (a *app) daysRemaining() int {
	if flagDays >= 0 {
		return flagDays
	}
	return metrics.DaysRemaining(time.Now())
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("database shutdown error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
