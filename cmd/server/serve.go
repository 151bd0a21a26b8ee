package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := api.NewRefreshScheduler(a.tables, a.cfg.RefreshInterval, a.logger)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(a.tables, a.engine, a.history, a.logger)
	handler.Schedule = scheduler
	if flagDays >= 0 {
		handler.FixedDays = flagDays
	}
	router := api.NewRouter(handler, a.cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting",
			zap.Int("port", a.cfg.Port),
			zap.String("source", a.cfg.SourceURL),
			zap.String("env", a.cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server stopped")
	return nil
}
