/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Overview endpoints (summary, projections, totals)
- Bucket detail endpoints and their 404s
- Table unavailable (503) and invalid ?days= (400)
- Refresh and refresh history
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attainment-dashboard/cache"
	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testLayout() sheet.Layout {
	l := sheet.DefaultLayout()
	l.Buckets = []sheet.Bucket{"1-30", "31", "61"}
	return l
}

// goalTable has 10 daily rows (Actual 1-30 = 10, Actual 31 = 5) and the MTD
// row {1-30: 1000/400, 31: 200/100}. Bucket 61 has no columns.
func goalTable() *sheet.Table {
	cols := []string{"Target 1-30", "Actual 1-30", "Target 31", "Actual 31"}
	var rows []sheet.Row
	for d := 1; d <= 10; d++ {
		rows = append(rows, sheet.Row{
			Label:  fmt.Sprintf("2025-03-%02d", d),
			Values: []sheet.Cell{sheet.Null, sheet.Num(10), sheet.Null, sheet.Num(5)},
		})
	}
	rows = append(rows, sheet.Row{
		Label:  "MTD",
		Values: []sheet.Cell{sheet.Num(1000), sheet.Num(400), sheet.Num(200), sheet.Num(100)},
	})
	return sheet.NewTable("Day", cols, rows)
}

type testEnv struct {
	handler *Handler
	router  http.Handler
	fetches *atomic.Int32
}

func newTestEnv(t *testing.T, fetch cache.Fetcher) *testEnv {
	t.Helper()
	var fetches atomic.Int32
	counted := func(ctx context.Context) (*sheet.Table, error) {
		fetches.Add(1)
		return fetch(ctx)
	}

	h := NewHandler(cache.New(counted), metrics.NewEngine(testLayout(), nil), nil, nil)
	h.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	return &testEnv{
		handler: h,
		router:  NewRouter(h, nil),
		fetches: &fetches,
	}
}

func staticTable(table *sheet.Table) cache.Fetcher {
	return func(ctx context.Context) (*sheet.Table, error) { return table, nil }
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// OVERVIEW
// =============================================================================

func TestGetSummary(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/summary?days=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	s := decode[SummaryDTO](t, rec)
	assert.True(t, s.Available)
	assert.Equal(t, 1200.0, s.TargetTotal)
	assert.Equal(t, 500.0, s.ActualTotal)
	assert.InDelta(t, 41.6667, s.AttainedPercent, 0.0001)
	assert.Equal(t, 5, s.DaysRemaining)
	require.Len(t, s.Buckets, 2)
	assert.Equal(t, "1-30", s.Buckets[0].Bucket)
	assert.Equal(t, 40.0, s.Buckets[0].AttainedPercent)
	assert.Equal(t, "31", s.Buckets[1].Bucket)
	assert.NotEmpty(t, s.LoadedAt)
}

func TestGetSummary_TotalsFailureIsReported(t *testing.T) {
	// GIVEN: Two aggregate rows, which totals refuse
	table := goalTable()
	rows := append(table.Rows, table.Rows[len(table.Rows)-1])
	env := newTestEnv(t, staticTable(sheet.NewTable("Day", table.Columns, rows)))

	// WHEN
	rec := env.do(t, http.MethodGet, "/api/summary?days=5")

	// THEN: Still 200, marked unavailable with the reason
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[SummaryDTO](t, rec)
	assert.False(t, s.Available)
	assert.NotEmpty(t, s.Error)
}

func TestGetSummary_DefaultDaysFromClock(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/summary")

	require.Equal(t, http.StatusOK, rec.Code)
	// 2025-03-10: 31 - 10
	assert.Equal(t, 21, decode[SummaryDTO](t, rec).DaysRemaining)
}

func TestGetProjections_PartialResults(t *testing.T) {
	// GIVEN: A table where bucket 61 has no columns
	env := newTestEnv(t, staticTable(goalTable()))

	// WHEN
	rec := env.do(t, http.MethodGet, "/api/projections?days=5")

	// THEN: 1-30 and 31 are projected, 61 is reported as a diagnostic
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProjectionsResponse](t, rec)
	require.Len(t, resp.Projections, 2)

	p := resp.Projections[0]
	assert.Equal(t, "1-30", p.Bucket)
	assert.Equal(t, 450.0, p.ProjectedEndOfPeriod)
	assert.Equal(t, 45.0, p.ProjectedPercentOfTarget)
	assert.Equal(t, 600.0, p.TotalGap)
	assert.Equal(t, 120.0, p.RequiredDailyGap)
	assert.False(t, p.OnTrack)

	assert.Equal(t, 125.0, resp.Projections[1].ProjectedEndOfPeriod)

	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, "61", resp.Diagnostics[0].Bucket)
	assert.Contains(t, resp.Diagnostics[0].Error, "Actual 61")
}

func TestGetProjections_InvalidDays(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	for _, q := range []string{"-1", "soon", "2.5"} {
		rec := env.do(t, http.MethodGet, "/api/projections?days="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", q)
	}
	assert.Equal(t, int32(0), env.fetches.Load(), "bad input is rejected before loading")
}

func TestGetTotals(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/totals")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[TotalsResponse](t, rec)
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1200.0, resp.Totals["target_total"])
	assert.Equal(t, 500.0, resp.Totals["actual_total"])
	assert.Equal(t, 80.0, resp.Totals["1-30_total"], "last two daily rows are excluded")
	assert.Equal(t, 40.0, resp.Totals["31_total"])
	assert.Equal(t, 0.0, resp.Totals["61_total"])

	assert.Len(t, resp.Series["1-30"], 8)
	assert.NotContains(t, resp.Series, "61")
}

func TestGetTotals_FailureIsEmptyWithError(t *testing.T) {
	// GIVEN: Two aggregate rows
	table := goalTable()
	rows := append(table.Rows, table.Rows[len(table.Rows)-1])
	dup := sheet.NewTable("Day", table.Columns, rows)
	env := newTestEnv(t, staticTable(dup))

	// WHEN
	rec := env.do(t, http.MethodGet, "/api/totals")

	// THEN: Still 200, with empty totals and the reason
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[TotalsResponse](t, rec)
	assert.Empty(t, resp.Totals)
	assert.NotEmpty(t, resp.Error)
}

func TestTableUnavailable(t *testing.T) {
	env := newTestEnv(t, func(ctx context.Context) (*sheet.Table, error) {
		return sheet.NewTable("Day", nil, nil), sheet.ErrSourceUnreachable
	})

	for _, path := range []string{"/api/summary", "/api/projections", "/api/totals", "/api/buckets/1-30"} {
		rec := env.do(t, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, decode[ErrorResponse](t, rec).Details, "source unreachable", path)
	}
}

func TestTableUnavailable_EmptyTable(t *testing.T) {
	env := newTestEnv(t, staticTable(sheet.NewTable("Day", nil, nil)))

	rec := env.do(t, http.MethodGet, "/api/summary")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// BUCKETS
// =============================================================================

func TestListBuckets(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/buckets")

	require.Equal(t, http.StatusOK, rec.Code)
	buckets := decode[[]BucketDTO](t, rec)
	require.Len(t, buckets, 3)
	assert.Equal(t, BucketDTO{Bucket: "61", TargetColumn: "Target 61", ActualColumn: "Actual 61"}, buckets[2])
}

func TestGetBucket(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/buckets/31?days=5")

	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[ProjectionDTO](t, rec)
	assert.Equal(t, "31", p.Bucket)
	assert.Equal(t, 5.0, p.RecentDailyAverage)
	assert.Equal(t, 7, p.SampleDays)
	assert.Equal(t, 50.0, p.AttainedPercent)
}

func TestGetBucket_NotFound(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/buckets/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Configured but without columns: 404 carrying the reason
	rec = env.do(t, http.MethodGet, "/api/buckets/61")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "Target 61")
}

func TestGetBucketTrend(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/buckets/1-30/trend")

	require.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]TrendPointDTO](t, rec)
	require.Len(t, points, 10)
	assert.Equal(t, "2025-03-01", points[0].Label)
	require.NotNil(t, points[0].Actual)
	assert.Equal(t, 10.0, *points[0].Actual)
	assert.Equal(t, 0.0, points[9].Increment)

	rec = env.do(t, http.MethodGet, "/api/buckets/61/trend")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBucketForecast(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/buckets/1-30/forecast?days=3")

	require.Equal(t, http.StatusOK, rec.Code)
	f := decode[ForecastDTO](t, rec)
	assert.Equal(t, "2025-03-10", f.Start)
	assert.Equal(t, 10.0, f.LastActual)
	assert.Equal(t, 1000.0, f.Target)
	require.Len(t, f.Points, 3)
	assert.Equal(t, ForecastPointDTO{Date: "2025-03-11", Value: 20}, f.Points[0])
	assert.Equal(t, ForecastPointDTO{Date: "2025-03-13", Value: 40}, f.Points[2])
	assert.Equal(t, 3, f.Projection.DaysRemaining)
}

// =============================================================================
// DATA
// =============================================================================

func TestRefreshTable(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RefreshResponse](t, rec)
	assert.Equal(t, 11, resp.Rows)
	assert.Equal(t, 4, resp.Columns)
	assert.Equal(t, int32(2), env.fetches.Load())
}

func TestRefreshTable_Failure(t *testing.T) {
	env := newTestEnv(t, func(ctx context.Context) (*sheet.Table, error) {
		return nil, errors.New("boom")
	})

	rec := env.do(t, http.MethodPost, "/api/refresh")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListRefreshRuns(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.RecordRefreshRun(ctx, sqlite.RefreshRun{
			Source:     "sheet.csv",
			Status:     sqlite.RunSucceeded,
			Rows:       11,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + 250*time.Millisecond),
		})
		require.NoError(t, err)
	}

	env := newTestEnv(t, staticTable(goalTable()))
	env.handler.Runs = store

	rec := env.do(t, http.MethodGet, "/api/refreshes?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]RefreshRunDTO](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, "2025-03-10T09:02:00Z", runs[0].StartedAt)
	assert.Equal(t, int64(250), runs[0].DurationMS)

	rec = env.do(t, http.MethodGet, "/api/refreshes?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRefreshRuns_WithoutStore(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/api/refreshes")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

// =============================================================================
// ROUTER
// =============================================================================

func TestHealthAndLandingPage(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))

	rec := env.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "/api/summary")
}

func TestRefreshTable_ThroughScheduleUpdatesHealth(t *testing.T) {
	// GIVEN: A handler whose refreshes go through an hourly scheduler
	env := newTestEnv(t, staticTable(goalTable()))
	env.handler.Schedule = NewRefreshScheduler(env.handler.Tables, time.Hour, nil)

	// WHEN
	rec := env.do(t, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Health shows the manual run and when the next one is due
	rec = env.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]string](t, rec)
	_, err := time.Parse(time.RFC3339, health["last_refresh"])
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, health["next_refresh"])
	require.NoError(t, err)
	assert.NotContains(t, health, "last_refresh_error")
	assert.Equal(t, int32(1), env.fetches.Load())
}

func TestCORS(t *testing.T) {
	h := NewHandler(cache.New(staticTable(goalTable())), metrics.NewEngine(testLayout(), nil), nil, nil)
	router := NewRouter(h, []string{"https://dash.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFixedDays(t *testing.T) {
	env := newTestEnv(t, staticTable(goalTable()))
	env.handler.FixedDays = 4

	rec := env.do(t, http.MethodGet, "/api/projections")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[ProjectionsResponse](t, rec).DaysRemaining)

	rec = env.do(t, http.MethodGet, "/api/projections?days=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[ProjectionsResponse](t, rec).DaysRemaining)
}
