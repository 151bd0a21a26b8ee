/*
handlers.go - HTTP API handlers for the attainment dashboard

PURPOSE:
  Exposes the metrics engine via a read-only REST API. Handles HTTP
  request/response and JSON serialization, and delegates to the metrics
  engine on the cached table.

ENDPOINTS:
  Overview:
    GET    /api/summary                   Target vs. actual cards + bucket bars
    GET    /api/projections               Every bucket's projection + diagnostics
    GET    /api/totals                    Flat totals + per-bucket history

  Buckets:
    GET    /api/buckets                   Configured buckets
    GET    /api/buckets/{bucket}          One projection
    GET    /api/buckets/{bucket}/trend    Daily increments + moving average
    GET    /api/buckets/{bucket}/forecast Projection line + gap analysis

  Data:
    POST   /api/refresh                   Drop the cache and reload the sheet
    GET    /api/refreshes                 Recent load attempts

QUERY PARAMETERS:
  ?days=N  Overrides the days remaining in the month (N >= 0)

REQUEST FLOW:
  1. Get the table from the cache (503 when it cannot be loaded)
  2. Compute what the endpoint needs, per request
  3. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid query parameter
  - 404: Unknown bucket or bucket without data
  - 503: Table unavailable
  /api/totals never fails: it returns empty totals with an "error" field.

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// TableSource is the cached spreadsheet.
type TableSource interface {
	Get(ctx context.Context) (*sheet.Table, error)
	Refresh(ctx context.Context) (*sheet.Table, error)
	LoadedAt() time.Time
}

// RunLister lists recorded load attempts.
type RunLister interface {
	ListRefreshRuns(ctx context.Context, limit int) ([]sqlite.RefreshRun, error)
}

// DefaultRunLimit is how many refresh runs GET /api/refreshes returns by default.
const DefaultRunLimit = 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tables TableSource
	Engine *metrics.Engine
	Runs   RunLister // optional
	Logger *zap.Logger

	// Schedule, when set, runs manual refreshes and reports its state in Health.
	Schedule *RefreshScheduler

	// FixedDays replaces the calendar-based days remaining when >= 0.
	// A ?days= query parameter still wins.
	FixedDays int

	now func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(tables TableSource, engine *metrics.Engine, runs RunLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Tables:    tables,
		Engine:    engine,
		Runs:      runs,
		Logger:    logger,
		FixedDays: -1,
		now:       time.Now,
	}
}

// =============================================================================
// OVERVIEW HANDLERS
// =============================================================================

// GetSummary returns the overview cards.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	days, ok := h.daysRemaining(w, r)
	if !ok {
		return
	}
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	set := h.Engine.ComputeProjections(table, days)
	totals, err := h.Engine.ComputeTotals(table)
	summary := h.Engine.Summarize(totals, set)

	dto := toSummaryDTO(summary, h.Tables.LoadedAt())
	if err != nil {
		h.Logger.Warn("summary totals unavailable", zap.Error(err))
		dto.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetProjections returns every bucket's projection plus the diagnostics for
// the buckets that could not be projected.
func (h *Handler) GetProjections(w http.ResponseWriter, r *http.Request) {
	days, ok := h.daysRemaining(w, r)
	if !ok {
		return
	}
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	set := h.Engine.ComputeProjections(table, days)

	resp := ProjectionsResponse{
		DaysRemaining: set.DaysRemaining,
		Projections:   []ProjectionDTO{},
		Diagnostics:   toDiagnosticDTOs(set.Diagnostics),
	}
	for _, p := range set.Ordered(h.Engine.Layout.Buckets) {
		resp.Projections = append(resp.Projections, toProjectionDTO(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTotals returns the month totals. A computation failure yields empty
// totals plus the error text, still with 200.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	totals, err := h.Engine.ComputeTotals(table)
	if err != nil {
		writeJSON(w, http.StatusOK, TotalsResponse{
			Totals: map[string]float64{},
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, toTotalsResponse(totals))
}

// =============================================================================
// BUCKET HANDLERS
// =============================================================================

// ListBuckets returns the configured buckets and their column names.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	layout := h.Engine.Layout
	result := make([]BucketDTO, 0, len(layout.Buckets))
	for _, b := range layout.Buckets {
		result = append(result, BucketDTO{
			Bucket:       string(b),
			TargetColumn: layout.Column(sheet.RoleTarget, b),
			ActualColumn: layout.Column(sheet.RoleActual, b),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBucket returns one bucket's projection.
func (h *Handler) GetBucket(w http.ResponseWriter, r *http.Request) {
	days, ok := h.daysRemaining(w, r)
	if !ok {
		return
	}
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	p, ok := h.projection(w, table, chi.URLParam(r, "bucket"), days)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProjectionDTO(p))
}

// GetBucketTrend returns the daily increments and their moving average.
func (h *Handler) GetBucketTrend(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(w, chi.URLParam(r, "bucket"))
	if !ok {
		return
	}
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	points, err := h.Engine.Trend(table, bucket)
	if err != nil {
		writeError(w, http.StatusNotFound, "No trend for bucket "+string(bucket), err)
		return
	}
	writeJSON(w, http.StatusOK, toTrendDTOs(points))
}

// GetBucketForecast returns the projection line over the remaining days.
func (h *Handler) GetBucketForecast(w http.ResponseWriter, r *http.Request) {
	days, ok := h.daysRemaining(w, r)
	if !ok {
		return
	}
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	p, ok := h.projection(w, table, chi.URLParam(r, "bucket"), days)
	if !ok {
		return
	}

	f, err := h.Engine.Forecast(table, p, h.now())
	if err != nil {
		writeError(w, http.StatusNotFound, "No forecast for bucket "+string(p.Bucket), err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(f, p))
}

// =============================================================================
// DATA HANDLERS
// =============================================================================

// RefreshTable drops the cached table and reloads it.
func (h *Handler) RefreshTable(w http.ResponseWriter, r *http.Request) {
	var (
		table *sheet.Table
		err   error
	)
	if h.Schedule != nil {
		table, err = h.Schedule.RunNow(r.Context())
	} else {
		table, err = h.Tables.Refresh(r.Context())
	}
	if err != nil {
		h.Logger.Warn("manual refresh failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to reload table", err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		Rows:     table.Len(),
		Columns:  len(table.Columns),
		LoadedAt: formatTime(h.Tables.LoadedAt()),
	})
}

// ListRefreshRuns returns recent load attempts, newest first.
func (h *Handler) ListRefreshRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	result := []RefreshRunDTO{}
	if h.Runs != nil {
		runs, err := h.Runs.ListRefreshRuns(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list refresh runs", err)
			return
		}
		for _, run := range runs {
			result = append(result, toRefreshRunDTO(run))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// Health reports liveness, when the table was last loaded and, with a
// running scheduler, the last and next refresh.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":    "ok",
		"loaded_at": formatTime(h.Tables.LoadedAt()),
	}
	if h.Schedule != nil && h.Schedule.Enabled() {
		last, err := h.Schedule.LastRun()
		resp["last_refresh"] = formatTime(last)
		resp["next_refresh"] = formatTime(h.Schedule.NextRunTime())
		if err != nil {
			resp["last_refresh_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) table(w http.ResponseWriter, r *http.Request) (*sheet.Table, bool) {
	table, err := h.Tables.Get(r.Context())
	if err != nil {
		h.Logger.Warn("table unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Table unavailable", err)
		return nil, false
	}
	return table, true
}

// daysRemaining reads ?days=, defaulting to the days left in the current month.
func (h *Handler) daysRemaining(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		if h.FixedDays >= 0 {
			return h.FixedDays, true
		}
		return metrics.DaysRemaining(h.now()), true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer", err)
		return 0, false
	}
	return n, true
}

func (h *Handler) bucket(w http.ResponseWriter, raw string) (sheet.Bucket, bool) {
	for _, b := range h.Engine.Layout.Buckets {
		if string(b) == raw {
			return b, true
		}
	}
	writeError(w, http.StatusNotFound, "Unknown bucket "+raw, nil)
	return "", false
}

// projection computes one bucket's projection, writing a 404 that carries the
// diagnostic when the bucket could not be projected.
func (h *Handler) projection(w http.ResponseWriter, table *sheet.Table, raw string, days int) (metrics.Projection, bool) {
	bucket, ok := h.bucket(w, raw)
	if !ok {
		return metrics.Projection{}, false
	}

	set := h.Engine.ComputeProjections(table, days)
	if p, ok := set.Get(bucket); ok {
		return p, true
	}

	var reason error = errors.New("no projection")
	for _, d := range set.Diagnostics {
		if d.Bucket == bucket || d.Bucket == "" {
			reason = d.Err
			break
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("No projection for bucket %s", bucket), reason)
	return metrics.Projection{}, false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
