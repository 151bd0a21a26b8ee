package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
)

func TestTrend_IncrementsAndMovingAverage(t *testing.T) {
	b := newTable("Target 1-30", "Actual 1-30")
	values := []float64{10, 20, 40, 40, 30, 50, 60, 80, 100}
	for i, v := range values {
		b.row(dayLabel(i+1), map[string]sheet.Cell{"Actual 1-30": sheet.Num(v)})
	}
	b.row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(1000), "Actual 1-30": sheet.Num(100)})

	points, err := newEngine().Trend(b.build(), "1-30")
	require.NoError(t, err)
	require.Len(t, points, len(values), "aggregate row is not part of the trend")

	// Increments: 0, 10, 20, 0, -10, 20, 10, 20, 20
	assertDec(t, "0", points[0].Increment)
	assertDec(t, "0", points[0].MovingAverage)
	assertDec(t, "10", points[1].Increment)
	assertDec(t, "5", points[1].MovingAverage)
	assertDec(t, "-10", points[4].Increment)
	// Window of 7 ending at index 6: 0,10,20,0,-10,20,10 -> 50/7
	assertDec(t, "50", points[6].MovingAverage.Mul(dec("7")).Round(8))
	// Window ending at index 8: 20,0,-10,20,10,20,20 -> 80/7
	assertDec(t, "80", points[8].MovingAverage.Mul(dec("7")).Round(8))
}

func TestTrend_NullNeighboursGiveZeroIncrement(t *testing.T) {
	table := newTable("Target 1-30", "Actual 1-30").
		row(dayLabel(1), map[string]sheet.Cell{"Actual 1-30": sheet.Num(10)}).
		row(dayLabel(2), map[string]sheet.Cell{}).
		row(dayLabel(3), map[string]sheet.Cell{"Actual 1-30": sheet.Num(30)}).
		row("MTD", map[string]sheet.Cell{"Actual 1-30": sheet.Num(40)}).
		build()

	points, err := newEngine().Trend(table, "1-30")
	require.NoError(t, err)
	assertDec(t, "0", points[1].Increment)
	assertDec(t, "0", points[2].Increment)
}

func TestTrend_MissingColumn(t *testing.T) {
	_, err := newEngine().Trend(totalsTable(), "181")
	assert.ErrorIs(t, err, metrics.ErrMissingBucketColumns)
}

func TestForecast_LinearSeriesFromLastDay(t *testing.T) {
	engine := newEngine()
	table := scenarioTable()
	set := engine.ComputeProjections(table, 5)
	p, ok := set.Get("1-30")
	require.True(t, ok)

	now := time.Date(2025, time.March, 26, 9, 0, 0, 0, time.UTC)
	f, err := engine.Forecast(table, p, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), f.Start)
	assertDec(t, "10", f.LastActual)
	assertDec(t, "1000", f.Target)
	require.Len(t, f.Points, 5)
	assert.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC), f.Points[0].Date)
	assertDec(t, "20", f.Points[0].Value)
	assertDec(t, "60", f.Points[4].Value)
}

func TestForecast_NonDateLabelsStartToday(t *testing.T) {
	engine := newEngine()
	table := newTable("Target 1-30", "Actual 1-30").
		row("day one", map[string]sheet.Cell{"Actual 1-30": sheet.Num(4)}).
		row("day two", map[string]sheet.Cell{}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(4)}).
		build()

	p := metrics.Projection{Bucket: "1-30", RecentDailyAverage: dec("2"), DaysRemaining: 2, TargetTotal: dec("100")}
	now := time.Date(2025, time.June, 29, 18, 30, 0, 0, time.UTC)

	f, err := engine.Forecast(table, p, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 29, 0, 0, 0, 0, time.UTC), f.Start)
	assertDec(t, "4", f.LastActual)
	require.Len(t, f.Points, 2)
	assertDec(t, "6", f.Points[0].Value)
	assertDec(t, "8", f.Points[1].Value)
}

func TestForecast_StartSkipsTrailingBlankLabels(t *testing.T) {
	engine := newEngine()
	table := newTable("Target 1-30", "Actual 1-30").
		row(dayLabel(7), map[string]sheet.Cell{"Actual 1-30": sheet.Num(12)}).
		row("", map[string]sheet.Cell{}).
		row("", map[string]sheet.Cell{}).
		row("MTD", map[string]sheet.Cell{"Target 1-30": sheet.Num(100), "Actual 1-30": sheet.Num(12)}).
		build()

	p := metrics.Projection{Bucket: "1-30", RecentDailyAverage: dec("3"), DaysRemaining: 1, TargetTotal: dec("100")}
	now := time.Date(2025, time.March, 20, 8, 0, 0, 0, time.UTC)

	f, err := engine.Forecast(table, p, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC), f.Start)
	assertDec(t, "12", f.LastActual)
	assertDec(t, "15", f.Points[0].Value)
}

func TestParseLabelDate(t *testing.T) {
	d, ok := metrics.ParseLabelDate("05/03/2025", time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), d)

	_, ok = metrics.ParseLabelDate("Mensal", time.UTC)
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	engine := newEngine()
	table := totalsTable()

	totals, err := engine.ComputeTotals(table)
	require.NoError(t, err)
	s := engine.Summarize(totals, engine.ComputeProjections(table, 4))

	assert.True(t, s.Available)
	assert.Equal(t, 4, s.DaysRemaining)
	assertDec(t, "1500", s.TargetTotal)
	require.Len(t, s.Buckets, 2)
	assert.Equal(t, sheet.Bucket("1-30"), s.Buckets[0].Bucket)
	assertDec(t, "1.5", s.Buckets[0].AttainedPercent)
	assertDec(t, "100", s.Buckets[1].AttainedPercent)

	empty := engine.Summarize(metrics.Totals{}, metrics.ProjectionSet{})
	assert.False(t, empty.Available)
	assert.True(t, empty.AttainedPercent.IsZero())
}
