/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for API communication. Metric values are
  computed as decimals and converted to float64 only here, at the edge.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

TYPES:
  Overview:
    SummaryDTO, BucketAttainmentDTO

  Projections:
    ProjectionDTO, DiagnosticDTO, ProjectionsResponse

  Totals:
    TotalsResponse, SeriesPointDTO

  Bucket detail:
    BucketDTO, TrendPointDTO, ForecastDTO

  Refreshes:
    RefreshRunDTO, RefreshResponse

SEE ALSO:
  - handlers.go: Uses these types
  - metrics/: Source types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
	"github.com/warp/attainment-dashboard/store/sqlite"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SummaryDTO is the overview card set.
type SummaryDTO struct {
	TargetTotal     float64               `json:"target_total"`
	ActualTotal     float64               `json:"actual_total"`
	AttainedPercent float64               `json:"attained_percent"`
	DaysRemaining   int                   `json:"days_remaining"`
	Available       bool                  `json:"available"`
	Buckets         []BucketAttainmentDTO `json:"buckets"`
	LoadedAt        string                `json:"loaded_at,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// BucketAttainmentDTO is one bar of the target-vs-actual chart.
type BucketAttainmentDTO struct {
	Bucket          string  `json:"bucket"`
	Target          float64 `json:"target"`
	Actual          float64 `json:"actual"`
	AttainedPercent float64 `json:"attained_percent"`
}

// ProjectionDTO is one bucket's end-of-period outlook.
type ProjectionDTO struct {
	Bucket                   string  `json:"bucket"`
	TargetTotal              float64 `json:"target_total"`
	ActualToDate             float64 `json:"actual_to_date"`
	AttainedPercent          float64 `json:"attained_percent"`
	RecentDailyAverage       float64 `json:"recent_daily_average"`
	SampleDays               int     `json:"sample_days"`
	DaysRemaining            int     `json:"days_remaining"`
	ProjectedEndOfPeriod     float64 `json:"projected_end_of_period"`
	ProjectedPercentOfTarget float64 `json:"projected_percent_of_target"`
	ProjectedDelta           float64 `json:"projected_delta"`
	TotalGap                 float64 `json:"total_gap"`
	RequiredDailyGap         float64 `json:"required_daily_gap"`
	AverageGap               float64 `json:"average_gap"`
	AverageGapPercent        float64 `json:"average_gap_percent"`
	OnTrack                  bool    `json:"on_track"`
}

// DiagnosticDTO explains why a bucket has no projection.
type DiagnosticDTO struct {
	Bucket string `json:"bucket,omitempty"`
	Error  string `json:"error"`
}

// ProjectionsResponse is the body of GET /api/projections.
type ProjectionsResponse struct {
	DaysRemaining int             `json:"days_remaining"`
	Projections   []ProjectionDTO `json:"projections"`
	Diagnostics   []DiagnosticDTO `json:"diagnostics"`
}

// SeriesPointDTO is one labelled history value. Value is null for empty cells.
type SeriesPointDTO struct {
	Label string   `json:"label"`
	Value *float64 `json:"value"`
}

// TotalsResponse is the body of GET /api/totals. On failure Totals is empty
// and Error says why.
type TotalsResponse struct {
	Totals map[string]float64          `json:"totals"`
	Series map[string][]SeriesPointDTO `json:"series,omitempty"`
	Error  string                      `json:"error,omitempty"`
}

// BucketDTO describes a configured bucket.
type BucketDTO struct {
	Bucket       string `json:"bucket"`
	TargetColumn string `json:"target_column"`
	ActualColumn string `json:"actual_column"`
}

// TrendPointDTO is one row of a bucket trend.
type TrendPointDTO struct {
	Label         string   `json:"label"`
	Actual        *float64 `json:"actual"`
	Increment     float64  `json:"increment"`
	MovingAverage float64  `json:"moving_average"`
}

// ForecastPointDTO is one projected day.
type ForecastPointDTO struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ForecastDTO is the projection line plus the gap analysis for a bucket.
type ForecastDTO struct {
	Bucket     string             `json:"bucket"`
	Start      string             `json:"start"`
	LastActual float64            `json:"last_actual"`
	Target     float64            `json:"target"`
	Points     []ForecastPointDTO `json:"points"`
	Projection ProjectionDTO      `json:"projection"`
}

// RefreshRunDTO is one recorded load attempt.
type RefreshRunDTO struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

// RefreshResponse is the body of POST /api/refresh.
type RefreshResponse struct {
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
	LoadedAt string `json:"loaded_at,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func num(d decimal.Decimal) float64 {
	return d.Round(4).InexactFloat64()
}

func cellPtr(c sheet.Cell) *float64 {
	if !c.Valid {
		return nil
	}
	v := num(c.Decimal)
	return &v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSummaryDTO(s metrics.Summary, loadedAt time.Time) SummaryDTO {
	dto := SummaryDTO{
		TargetTotal:     num(s.TargetTotal),
		ActualTotal:     num(s.ActualTotal),
		AttainedPercent: num(s.AttainedPercent),
		DaysRemaining:   s.DaysRemaining,
		Available:       s.Available,
		Buckets:         make([]BucketAttainmentDTO, 0, len(s.Buckets)),
		LoadedAt:        formatTime(loadedAt),
	}
	for _, b := range s.Buckets {
		dto.Buckets = append(dto.Buckets, BucketAttainmentDTO{
			Bucket:          string(b.Bucket),
			Target:          num(b.Target),
			Actual:          num(b.Actual),
			AttainedPercent: num(b.AttainedPercent),
		})
	}
	return dto
}

func toProjectionDTO(p metrics.Projection) ProjectionDTO {
	return ProjectionDTO{
		Bucket:                   string(p.Bucket),
		TargetTotal:              num(p.TargetTotal),
		ActualToDate:             num(p.ActualToDate),
		AttainedPercent:          num(p.AttainedPercent()),
		RecentDailyAverage:       num(p.RecentDailyAverage),
		SampleDays:               p.SampleDays,
		DaysRemaining:            p.DaysRemaining,
		ProjectedEndOfPeriod:     num(p.ProjectedEndOfPeriod),
		ProjectedPercentOfTarget: num(p.ProjectedPercentOfTarget),
		ProjectedDelta:           num(p.ProjectedDelta()),
		TotalGap:                 num(p.TotalGap),
		RequiredDailyGap:         num(p.RequiredDailyGap),
		AverageGap:               num(p.AverageGap()),
		AverageGapPercent:        num(p.AverageGapPercent()),
		OnTrack:                  p.OnTrack(),
	}
}

func toDiagnosticDTOs(diags []metrics.Diagnostic) []DiagnosticDTO {
	out := make([]DiagnosticDTO, 0, len(diags))
	for _, d := range diags {
		out = append(out, DiagnosticDTO{Bucket: string(d.Bucket), Error: d.Err.Error()})
	}
	return out
}

func toTotalsResponse(t metrics.Totals) TotalsResponse {
	resp := TotalsResponse{
		Totals: make(map[string]float64),
		Series: make(map[string][]SeriesPointDTO, len(t.Buckets)),
	}
	for k, v := range t.Flat() {
		resp.Totals[k] = num(v)
	}
	for b, h := range t.Buckets {
		if !h.Present {
			continue
		}
		points := make([]SeriesPointDTO, 0, len(h.Series))
		for _, p := range h.Series {
			points = append(points, SeriesPointDTO{Label: p.Label, Value: cellPtr(p.Value)})
		}
		resp.Series[string(b)] = points
	}
	return resp
}

func toTrendDTOs(points []metrics.TrendPoint) []TrendPointDTO {
	out := make([]TrendPointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, TrendPointDTO{
			Label:         p.Label,
			Actual:        cellPtr(p.Actual),
			Increment:     num(p.Increment),
			MovingAverage: num(p.MovingAverage),
		})
	}
	return out
}

func toForecastDTO(f metrics.Forecast, p metrics.Projection) ForecastDTO {
	dto := ForecastDTO{
		Bucket:     string(f.Bucket),
		Start:      f.Start.Format("2006-01-02"),
		LastActual: num(f.LastActual),
		Target:     num(f.Target),
		Points:     make([]ForecastPointDTO, 0, len(f.Points)),
		Projection: toProjectionDTO(p),
	}
	for _, pt := range f.Points {
		dto.Points = append(dto.Points, ForecastPointDTO{
			Date:  pt.Date.Format("2006-01-02"),
			Value: num(pt.Value),
		})
	}
	return dto
}

func toRefreshRunDTO(r sqlite.RefreshRun) RefreshRunDTO {
	return RefreshRunDTO{
		ID:         r.ID,
		Source:     r.Source,
		Status:     string(r.Status),
		Rows:       r.Rows,
		Columns:    r.Columns,
		Error:      r.Error,
		StartedAt:  formatTime(r.StartedAt),
		DurationMS: r.Duration().Milliseconds(),
	}
}
