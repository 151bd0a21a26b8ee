/*
projection.go - End-of-period projections per bucket

PURPOSE:
  Answers "where will each bucket land by the end of the month if the last
  week's pace holds, and how much per day is still needed to hit target?"

INPUTS:
  - Table: daily rows plus one aggregate (month-to-date) row
  - daysRemaining: calendar days left in the period (see period.go)

ALGORITHM (per bucket, in layout order):
  1. Both "<target> <bucket>" and "<actual> <bucket>" columns must exist
  2. Historical rows = every row except the aggregate row
  3. Recent average = mean of the actual column over the last 7 historical
     rows (fewer when history is shorter). A single null makes it null.
  4. Target and actual-to-date come from the aggregate row
  5. projection = actual + average * daysRemaining
     percent    = projection / target * 100   (0 when target <= 0)
     gap        = target - actual
     daily gap  = gap / daysRemaining         (0 when no days remain)

FAILURE MODEL:
  Partial-result accumulation (strategy.go). A bucket with missing columns,
  a null input or an unexpected failure is left out and reported as a
  Diagnostic; the other buckets are still computed. A missing aggregate row
  yields no results at all.

EXAMPLE:
  engine := metrics.NewEngine(sheet.DefaultLayout(), logger)
  set := engine.ComputeProjections(table, metrics.DaysRemaining(time.Now()))
  for _, p := range set.Ordered(layout.Buckets) {
      fmt.Println(p.Bucket, p.ProjectedEndOfPeriod)
  }

SEE ALSO:
  - totals.go: Month totals (all-or-nothing)
  - forecast.go: Day-by-day series built from a Projection
*/
package metrics

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/sheet"
)

// RecentWindow is how many trailing daily rows feed the recent average.
const RecentWindow = 7

var hundred = decimal.NewFromInt(100)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes metrics for tables laid out according to Layout. It holds no
// table state: every call receives the table explicitly.
type Engine struct {
	Layout sheet.Layout
	Logger *zap.Logger
}

// NewEngine creates an engine. A nil logger is replaced by a no-op logger.
func NewEngine(layout sheet.Layout, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Layout: layout, Logger: logger}
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// =============================================================================
// PROJECTION
// =============================================================================

// Projection is the end-of-period outlook for one bucket.
type Projection struct {
	Bucket sheet.Bucket

	TargetTotal        decimal.Decimal
	ActualToDate       decimal.Decimal
	RecentDailyAverage decimal.Decimal
	SampleDays         int // rows that fed RecentDailyAverage

	DaysRemaining            int
	ProjectedEndOfPeriod     decimal.Decimal
	ProjectedPercentOfTarget decimal.Decimal

	TotalGap         decimal.Decimal
	RequiredDailyGap decimal.Decimal
}

// AttainedPercent is actual-to-date as a percentage of target (0 when target <= 0).
func (p Projection) AttainedPercent() decimal.Decimal {
	return percentOf(p.ActualToDate, p.TargetTotal)
}

// ProjectedDelta is how far the projection lands above (positive) or below target.
func (p Projection) ProjectedDelta() decimal.Decimal {
	return p.ProjectedEndOfPeriod.Sub(p.TargetTotal)
}

// ProjectedDeltaPercent is ProjectedDelta relative to target (0 when target <= 0).
func (p Projection) ProjectedDeltaPercent() decimal.Decimal {
	return percentOf(p.ProjectedDelta(), p.TargetTotal)
}

// AverageGap is how much the daily pace must grow to close the gap.
// Negative means the current pace already exceeds what is required.
func (p Projection) AverageGap() decimal.Decimal {
	return p.RequiredDailyGap.Sub(p.RecentDailyAverage)
}

// AverageGapPercent is AverageGap relative to the required daily gap
// (0 when nothing is required).
func (p Projection) AverageGapPercent() decimal.Decimal {
	return percentOf(p.AverageGap(), p.RequiredDailyGap)
}

// OnTrack reports whether the recent pace meets the required daily gap.
func (p Projection) OnTrack() bool {
	return !p.AverageGap().IsPositive()
}

// ProjectionSet holds the buckets that could be projected and the reasons the
// others could not.
type ProjectionSet struct {
	DaysRemaining int
	Results       map[sheet.Bucket]Projection
	Diagnostics   []Diagnostic
}

// Get returns the projection for a bucket.
func (ps ProjectionSet) Get(b sheet.Bucket) (Projection, bool) {
	p, ok := ps.Results[b]
	return p, ok
}

// Ordered returns the present projections following the given bucket order.
func (ps ProjectionSet) Ordered(order []sheet.Bucket) []Projection {
	out := make([]Projection, 0, len(ps.Results))
	for _, b := range order {
		if p, ok := ps.Results[b]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ComputeProjections projects every layout bucket. It never fails as a whole:
// problems are reported through ProjectionSet.Diagnostics.
func (e *Engine) ComputeProjections(t *sheet.Table, daysRemaining int) ProjectionSet {
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	set := ProjectionSet{
		DaysRemaining: daysRemaining,
		Results:       map[sheet.Bucket]Projection{},
	}

	if t == nil || !t.HasLabel(e.Layout.AggregateLabel) {
		set.Diagnostics = []Diagnostic{{Err: ErrMissingAggregateRow}}
		e.log().Error("aggregate row not found",
			zap.String("label", e.Layout.AggregateLabel))
		return set
	}

	agg, aggErr := t.AggregateRow(e.Layout.AggregateLabel)
	historical := t.Historical(e.Layout.AggregateLabel)
	recent := historical
	if len(recent) > RecentWindow {
		recent = recent[len(recent)-RecentWindow:]
	}

	set.Results, set.Diagnostics = collectPartial(e.Layout.Buckets, func(b sheet.Bucket) (Projection, error) {
		if err := e.checkColumns(t, b); err != nil {
			return Projection{}, err
		}
		if aggErr != nil {
			return Projection{}, &ComputationError{Bucket: b, Cause: aggregateError(aggErr)}
		}
		return e.projectBucket(t, agg, recent, b, daysRemaining)
	})

	for _, d := range set.Diagnostics {
		e.log().Warn("bucket skipped",
			zap.String("bucket", string(d.Bucket)),
			zap.Error(d.Err))
	}
	return set
}

func (e *Engine) checkColumns(t *sheet.Table, b sheet.Bucket) error {
	var missing []string
	for _, role := range []sheet.Role{sheet.RoleActual, sheet.RoleTarget} {
		if col := e.Layout.Column(role, b); !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Bucket: b, Columns: missing}
	}
	return nil
}

func (e *Engine) projectBucket(t *sheet.Table, agg sheet.Row, recent []sheet.Row, b sheet.Bucket, days int) (Projection, error) {
	actualCol := e.Layout.Column(sheet.RoleActual, b)
	targetCol := e.Layout.Column(sheet.RoleTarget, b)

	average, ok := mean(t.Series(recent, actualCol))
	target := agg.Value(t, targetCol)
	actual := agg.Value(t, actualCol)

	switch {
	case !target.Valid:
		return Projection{}, &InvalidValueError{Bucket: b, Field: "target_total"}
	case !actual.Valid:
		return Projection{}, &InvalidValueError{Bucket: b, Field: "actual_to_date"}
	case !ok:
		return Projection{}, &InvalidValueError{Bucket: b, Field: "recent_daily_average"}
	}

	daysD := decimal.NewFromInt(int64(days))
	projected := actual.Decimal.Add(average.Mul(daysD))
	gap := target.Decimal.Sub(actual.Decimal)

	dailyGap := decimal.Zero
	if days > 0 {
		dailyGap = gap.Div(daysD)
	}

	return Projection{
		Bucket:                   b,
		TargetTotal:              target.Decimal,
		ActualToDate:             actual.Decimal,
		RecentDailyAverage:       average,
		SampleDays:               len(recent),
		DaysRemaining:            days,
		ProjectedEndOfPeriod:     projected,
		ProjectedPercentOfTarget: percentOf(projected, target.Decimal),
		TotalGap:                 gap,
		RequiredDailyGap:         dailyGap,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// mean averages cells. Any null, or no cells at all, yields ok=false.
func mean(cells []sheet.Cell) (decimal.Decimal, bool) {
	if len(cells) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, c := range cells {
		if !c.Valid {
			return decimal.Zero, false
		}
		sum = sum.Add(c.Decimal)
	}
	return sum.Div(decimal.NewFromInt(int64(len(cells)))), true
}

// percentOf returns part/whole*100, or 0 when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
