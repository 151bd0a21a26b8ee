package metrics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attainment-dashboard/sheet"
)

// LabelDateLayouts are the period-label formats recognised as dates.
var LabelDateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// ForecastPoint is one projected day.
type ForecastPoint struct {
	Date  time.Time
	Value decimal.Decimal
}

// Forecast extends a bucket's actual series linearly over the remaining days.
type Forecast struct {
	Bucket     sheet.Bucket
	Start      time.Time // last known day; points begin the day after
	LastActual decimal.Decimal
	Target     decimal.Decimal
	Points     []ForecastPoint
}

// Forecast builds the day-by-day projection line for p:
// value(i) = last historical actual + average * i, for i in 1..DaysRemaining.
//
// The start date is the last historical label that parses as a date,
// otherwise now's calendar day. The last actual is the last non-null
// historical value, or zero when there is none.
func (e *Engine) Forecast(t *sheet.Table, p Projection, now time.Time) (Forecast, error) {
	col := e.Layout.Column(sheet.RoleActual, p.Bucket)
	if t == nil || !t.HasColumn(col) {
		return Forecast{}, &MissingColumnsError{Bucket: p.Bucket, Columns: []string{col}}
	}

	rows := t.Historical(e.Layout.AggregateLabel)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := len(rows) - 1; i >= 0; i-- {
		if d, ok := ParseLabelDate(rows[i].Label, now.Location()); ok {
			start = d
			break
		}
	}

	last := decimal.Zero
	for i := len(rows) - 1; i >= 0; i-- {
		if v := rows[i].Value(t, col); v.Valid {
			last = v.Decimal
			break
		}
	}

	f := Forecast{
		Bucket:     p.Bucket,
		Start:      start,
		LastActual: last,
		Target:     p.TargetTotal,
		Points:     make([]ForecastPoint, p.DaysRemaining),
	}
	for i := range f.Points {
		step := decimal.NewFromInt(int64(i + 1))
		f.Points[i] = ForecastPoint{
			Date:  start.AddDate(0, 0, i+1),
			Value: last.Add(p.RecentDailyAverage.Mul(step)),
		}
	}
	return f, nil
}

// ParseLabelDate parses a period label with LabelDateLayouts.
func ParseLabelDate(label string, loc *time.Location) (time.Time, bool) {
	label = strings.TrimSpace(label)
	for _, layout := range LabelDateLayouts {
		if d, err := time.ParseInLocation(layout, label, loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
