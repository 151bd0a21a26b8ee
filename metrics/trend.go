package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/warp/attainment-dashboard/sheet"
)

// MovingAverageWindow is the number of increments averaged by Trend.
const MovingAverageWindow = 7

// TrendPoint is one historical row of a bucket's actual series.
type TrendPoint struct {
	Label         string
	Actual        sheet.Cell
	Increment     decimal.Decimal // change from the previous row, 0 when unknown
	MovingAverage decimal.Decimal // mean of up to the last 7 increments
}

// Trend returns the day-over-day increments of a bucket's actual column over
// the historical rows, with a trailing moving average that needs only one
// observation.
func (e *Engine) Trend(t *sheet.Table, b sheet.Bucket) ([]TrendPoint, error) {
	col := e.Layout.Column(sheet.RoleActual, b)
	if t == nil || !t.HasColumn(col) {
		return nil, &MissingColumnsError{Bucket: b, Columns: []string{col}}
	}

	rows := t.Historical(e.Layout.AggregateLabel)
	points := make([]TrendPoint, len(rows))
	window := make([]decimal.Decimal, 0, MovingAverageWindow)
	sum := decimal.Zero

	var prev sheet.Cell
	for i, r := range rows {
		v := r.Value(t, col)
		inc := decimal.Zero
		if i > 0 && v.Valid && prev.Valid {
			inc = v.Decimal.Sub(prev.Decimal)
		}
		prev = v

		if len(window) == MovingAverageWindow {
			sum = sum.Sub(window[0])
			window = window[1:]
		}
		window = append(window, inc)
		sum = sum.Add(inc)

		points[i] = TrendPoint{
			Label:         r.Label,
			Actual:        v,
			Increment:     inc,
			MovingAverage: sum.Div(decimal.NewFromInt(int64(len(window)))),
		}
	}
	return points, nil
}
