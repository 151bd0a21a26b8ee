package metrics_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newEngine() *metrics.Engine {
	return metrics.NewEngine(sheet.DefaultLayout(), nil)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// tableBuilder assembles a table row by row from label -> column -> value maps.
type tableBuilder struct {
	columns []string
	rows    []sheet.Row
}

func newTable(columns ...string) *tableBuilder {
	return &tableBuilder{columns: columns}
}

func (b *tableBuilder) row(label string, values map[string]sheet.Cell) *tableBuilder {
	r := sheet.Row{Label: label, Values: make([]sheet.Cell, len(b.columns))}
	for i, c := range b.columns {
		if v, ok := values[c]; ok {
			r.Values[i] = v
		}
	}
	b.rows = append(b.rows, r)
	return b
}

func (b *tableBuilder) build() *sheet.Table {
	return sheet.NewTable("Day", b.columns, b.rows)
}

// scenarioTable is 10 daily rows of Actual 1-30 = 10 plus the MTD row
// {Target 1-30: 1000, Actual 1-30: 400}.
func scenarioTable() *sheet.Table {
	b := newTable("Target 1-30", "Actual 1-30")
	for d := 1; d <= 10; d++ {
		b.row(dayLabel(d), map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)})
	}
	b.row("MTD", map[string]sheet.Cell{
		"Target 1-30": sheet.Num(1000),
		"Actual 1-30": sheet.Num(400),
	})
	return b.build()
}

func dayLabel(d int) string {
	return fmt.Sprintf("2025-03-%02d", d)
}

// =============================================================================
// PROJECTION SCENARIOS
// =============================================================================

func TestComputeProjections_LinearScenario(t *testing.T) {
	// GIVEN: 10 days of history at 10/day, MTD target 1000 and actual 400
	table := scenarioTable()

	// WHEN: 5 days remain
	set := newEngine().ComputeProjections(table, 5)

	// THEN
	p, ok := set.Get("1-30")
	require.True(t, ok, "bucket 1-30 should be projected")
	assertDec(t, "10", p.RecentDailyAverage)
	assert.Equal(t, 7, p.SampleDays)
	assertDec(t, "450", p.ProjectedEndOfPeriod)
	assertDec(t, "45", p.ProjectedPercentOfTarget)
	assertDec(t, "600", p.TotalGap)
	assertDec(t, "120", p.RequiredDailyGap)
	assert.False(t, p.OnTrack())
	assertDec(t, "110", p.AverageGap())
	assertDec(t, "40", p.AttainedPercent())
	assertDec(t, "-550", p.ProjectedDelta())
}

func TestComputeProjections_NoDaysRemaining(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("2025-03-30", map[string]sheet.Cell{"Actual 1-30": sheet.Num(20)}).
		row("2025-03-31", map[string]sheet.Cell{"Actual 1-30": sheet.Num(30)}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(500), "Actual 1-30": sheet.Num(500)}).
		build()

	set := newEngine().ComputeProjections(table, 0)

	p, ok := set.Get("1-30")
	require.True(t, ok)
	assertDec(t, "0", p.RequiredDailyGap)
	assertDec(t, "0", p.TotalGap)
	assertDec(t, "500", p.ProjectedEndOfPeriod)
	assert.True(t, p.OnTrack())
}

func TestComputeProjections_RequiredDailyGapZeroForAnyValuesWhenNoDaysRemain(t *testing.T) {
	for _, vals := range [][2]float64{{1000, 0}, {0, 1000}, {-50, 25}, {123.45, 67.89}} {
		table := newTable("Target 1-30", "Actual 1-30").
			row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(5)}).
			row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(vals[0]), "Actual 1-30": sheet.Num(vals[1])}).
			build()

		p, ok := newEngine().ComputeProjections(table, 0).Get("1-30")
		require.True(t, ok)
		assert.True(t, p.RequiredDailyGap.IsZero(), "target=%v actual=%v", vals[0], vals[1])
	}
}

func TestComputeProjections_ZeroTargetGivesZeroPercent(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(5)}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(0), "Actual 1-30": sheet.Num(50)}).
		build()

	p, ok := newEngine().ComputeProjections(table, 10).Get("1-30")
	require.True(t, ok)
	assert.True(t, p.ProjectedPercentOfTarget.IsZero())
	assert.True(t, p.AttainedPercent().IsZero())
	assertDec(t, "-50", p.TotalGap)
	assertDec(t, "-5", p.RequiredDailyGap)
}

func TestComputeProjections_TotalGapIsExact(t *testing.T) {
	cases := [][2]string{{"1000.10", "400.05"}, {"0.3", "0.1"}, {"99999999.99", "0.01"}}
	for _, c := range cases {
		table := newTable("Target 1-30", "Actual 1-30").
			row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.NumFromString("1")}).
			row("MTD", map[string]sheet.Cell{
				"Target 1-30": sheet.NumFromString(c[0]),
				"Actual 1-30": sheet.NumFromString(c[1]),
			}).
			build()

		p, ok := newEngine().ComputeProjections(table, 3).Get("1-30")
		require.True(t, ok)
		assert.True(t, dec(c[0]).Sub(dec(c[1])).Equal(p.TotalGap), "case %v", c)
	}
}

func TestComputeProjections_AverageUsesAtMostSevenRows(t *testing.T) {
	b := newTable("Target 1-30", "Actual 1-30")
	// Three early outliers followed by seven days at 20.
	for d := 1; d <= 3; d++ {
		b.row(dayLabel(d), map[string]sheet.Cell{"Actual 1-30": sheet.Num(1000)})
	}
	for d := 4; d <= 10; d++ {
		b.row(dayLabel(d), map[string]sheet.Cell{"Actual 1-30": sheet.Num(20)})
	}
	b.row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(5000), "Actual 1-30": sheet.Num(3140)})

	p, ok := newEngine().ComputeProjections(b.build(), 1).Get("1-30")
	require.True(t, ok)
	assertDec(t, "20", p.RecentDailyAverage)
}

func TestComputeProjections_ShortHistoryAveragesEverything(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)}).
		row("2025-03-02", map[string]sheet.Cell{"Actual 1-30": sheet.Num(20)}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(30)}).
		build()

	p, ok := newEngine().ComputeProjections(table, 2).Get("1-30")
	require.True(t, ok)
	assertDec(t, "15", p.RecentDailyAverage)
	assert.Equal(t, 2, p.SampleDays)
	assertDec(t, "60", p.ProjectedEndOfPeriod)
}

func TestComputeProjections_AggregateRowPositionDoesNotMatter(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(30)}).
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)}).
		row("2025-03-02", map[string]sheet.Cell{"Actual 1-30": sheet.Num(20)}).
		build()

	p, ok := newEngine().ComputeProjections(table, 2).Get("1-30")
	require.True(t, ok)
	assertDec(t, "15", p.RecentDailyAverage)
}

func TestComputeProjections_NegativeDaysAreClamped(t *testing.T) {
	set := newEngine().ComputeProjections(scenarioTable(), -3)
	assert.Equal(t, 0, set.DaysRemaining)
	p, ok := set.Get("1-30")
	require.True(t, ok)
	assert.True(t, p.RequiredDailyGap.IsZero())
}

// =============================================================================
// EXCLUSION RULES
// =============================================================================

func TestComputeProjections_BucketMissingTargetColumnIsExcluded(t *testing.T) {
	// GIVEN: bucket 181 has an Actual column but no Target column
	table := newTable("Target 1-30", "Actual 1-30", "Actual 181").
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(10), "Actual 181": sheet.Num(3)}).
		row("MTD", map[string]sheet.Cell{
			"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(10), "Actual 181": sheet.Num(3),
		}).
		build()

	set := newEngine().ComputeProjections(table, 4)

	_, ok := set.Get("181")
	assert.False(t, ok, "bucket 181 must be absent, not zero-filled")
	_, ok = set.Get("1-30")
	assert.True(t, ok)
	assert.Len(t, set.Results, 1)

	var found bool
	for _, d := range set.Diagnostics {
		if d.Bucket == "181" {
			found = true
			var mc *metrics.MissingColumnsError
			require.ErrorAs(t, d.Err, &mc)
			assert.Equal(t, []string{"Target 181"}, mc.Columns)
		}
	}
	assert.True(t, found, "bucket 181 should be reported")
}

func TestComputeProjections_NullValuesSkipBucket(t *testing.T) {
	tests := []struct {
		name  string
		mtd   map[string]sheet.Cell
		daily sheet.Cell
		field string
	}{
		{
			name:  "null target",
			mtd:   map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)},
			daily: sheet.Num(1),
			field: "target_total",
		},
		{
			name:  "null actual",
			mtd:   map[string]sheet.Cell{"Target 1-30": sheet.Num(10)},
			daily: sheet.Num(1),
			field: "actual_to_date",
		},
		{
			name:  "null inside the recent window",
			mtd:   map[string]sheet.Cell{"Target 1-30": sheet.Num(10), "Actual 1-30": sheet.Num(1)},
			daily: sheet.Null,
			field: "recent_daily_average",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := newTable("Target 1-30", "Actual 1-30").
				row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(4)}).
				row("2025-03-02", map[string]sheet.Cell{"Actual 1-30": tt.daily}).
				row("MTD", tt.mtd).
				build()

			set := newEngine().ComputeProjections(table, 3)

			assert.Empty(t, set.Results)
			require.Len(t, set.Diagnostics, len(sheet.DefaultBuckets))
			var iv *metrics.InvalidValueError
			require.ErrorAs(t, set.Diagnostics[0].Err, &iv)
			assert.Equal(t, tt.field, iv.Field)
			assert.ErrorIs(t, set.Diagnostics[0].Err, metrics.ErrInvalidValue)
		})
	}
}

func TestComputeProjections_NoHistoryMeansNoAverage(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(30)}).
		build()

	set := newEngine().ComputeProjections(table, 2)
	assert.Empty(t, set.Results)
}

func TestComputeProjections_MissingAggregateRow(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)}).
		build()

	set := newEngine().ComputeProjections(table, 5)

	assert.Empty(t, set.Results)
	require.Len(t, set.Diagnostics, 1)
	assert.ErrorIs(t, set.Diagnostics[0].Err, metrics.ErrMissingAggregateRow)
	assert.Equal(t, sheet.Bucket(""), set.Diagnostics[0].Bucket)

	assert.Empty(t, newEngine().ComputeProjections(nil, 5).Results)
}

func TestComputeProjections_DuplicateAggregateRowFailsPerBucket(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(30)}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(30)}).
		build()

	set := newEngine().ComputeProjections(table, 5)

	assert.Empty(t, set.Results)
	require.NotEmpty(t, set.Diagnostics)
	for _, d := range set.Diagnostics {
		if d.Bucket == "1-30" {
			assert.ErrorIs(t, d.Err, metrics.ErrComputationFailure)
			assert.ErrorIs(t, d.Err, metrics.ErrAmbiguousAggregateRow)
		} else {
			assert.True(t, errors.Is(d.Err, metrics.ErrMissingBucketColumns))
		}
	}
}

func TestProjectionSet_OrderedFollowsLayout(t *testing.T) {
	b := newTable("Target 361", "Actual 361", "Target 1-30", "Actual 1-30")
	b.row("2025-03-01", map[string]sheet.Cell{"Actual 1-30": sheet.Num(1), "Actual 361": sheet.Num(2)})
	b.row("MTD", map[string]sheet.Cell{
		"Target 1-30": sheet.Num(10), "Actual 1-30": sheet.Num(1),
		"Target 361": sheet.Num(20), "Actual 361": sheet.Num(2),
	})

	set := newEngine().ComputeProjections(b.build(), 1)
	ordered := set.Ordered(sheet.DefaultBuckets)
	require.Len(t, ordered, 2)
	assert.Equal(t, sheet.Bucket("1-30"), ordered[0].Bucket)
	assert.Equal(t, sheet.Bucket("361"), ordered[1].Bucket)
}
