/*
totals.go - Month totals and per-bucket history

PURPOSE:
  Feeds the overview cards (overall target vs. actual) and the history
  charts (one actual series per bucket).

COMPUTATION:
  - TargetTotal / ActualTotal: sum over every target-prefixed / actual-
    prefixed column of the aggregate row. Nulls count as nothing.
  - Per bucket: sum and full series of the actual column over the
    historical rows MINUS THEIR LAST TWO. That drops the trailing
    partial-period row the sheet keeps at the bottom; the projection
    average does not apply this trim.
  - A bucket without an actual column gets a zero sum and no series.

FAILURE MODEL:
  All-or-nothing (strategy.go). A missing or duplicated aggregate row, or
  any unexpected failure, returns an empty Totals and the error. Partial
  totals are never returned.

SEE ALSO:
  - projection.go: Bucket-isolated counterpart
  - summary.go: Combines Totals with projections for the overview
*/
package metrics

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/attainment-dashboard/sheet"
)

// TrailingRowsExcluded is how many trailing historical rows totals ignore.
const TrailingRowsExcluded = 2

// SeriesPoint is one labelled value of a history series.
type SeriesPoint struct {
	Label string
	Value sheet.Cell
}

// BucketHistory is the trimmed actual history of one bucket.
type BucketHistory struct {
	Bucket  sheet.Bucket
	Present bool // false when the actual column is absent
	Sum     decimal.Decimal
	Series  []SeriesPoint
}

// Totals is the month overview. The zero value is the empty result.
type Totals struct {
	TargetTotal decimal.Decimal
	ActualTotal decimal.Decimal
	Buckets     map[sheet.Bucket]BucketHistory
}

// IsEmpty reports whether the totals carry no data.
func (t Totals) IsEmpty() bool {
	return t.Buckets == nil
}

// Flat returns the named totals: "target_total", "actual_total" and one
// "<bucket>_total" per bucket. Empty totals flatten to an empty map.
func (t Totals) Flat() map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	if t.IsEmpty() {
		return out
	}
	out["target_total"] = t.TargetTotal
	out["actual_total"] = t.ActualTotal
	for b, h := range t.Buckets {
		out[string(b)+"_total"] = h.Sum
	}
	return out
}

// AttainedPercent is ActualTotal as a percentage of TargetTotal (0 when the
// target is not positive).
func (t Totals) AttainedPercent() decimal.Decimal {
	return percentOf(t.ActualTotal, t.TargetTotal)
}

// ComputeTotals computes the month totals. On any failure it returns empty
// Totals together with the reason.
func (e *Engine) ComputeTotals(t *sheet.Table) (Totals, error) {
	totals, err := allOrNothing(func() (Totals, error) {
		return e.computeTotals(t)
	})
	if err != nil {
		e.log().Error("totals computation aborted", zap.Error(err))
	}
	return totals, err
}

func (e *Engine) computeTotals(t *sheet.Table) (Totals, error) {
	if t == nil {
		return Totals{}, ErrMissingAggregateRow
	}
	agg, err := t.AggregateRow(e.Layout.AggregateLabel)
	if err != nil {
		return Totals{}, aggregateError(err)
	}

	totals := Totals{
		TargetTotal: sumColumns(t, agg, t.ColumnsWithPrefix(e.Layout.Prefix(sheet.RoleTarget))),
		ActualTotal: sumColumns(t, agg, t.ColumnsWithPrefix(e.Layout.Prefix(sheet.RoleActual))),
		Buckets:     make(map[sheet.Bucket]BucketHistory, len(e.Layout.Buckets)),
	}

	historical := t.Historical(e.Layout.AggregateLabel)
	if len(historical) > TrailingRowsExcluded {
		historical = historical[:len(historical)-TrailingRowsExcluded]
	} else {
		historical = nil
	}

	for _, b := range e.Layout.Buckets {
		col := e.Layout.Column(sheet.RoleActual, b)
		h := BucketHistory{Bucket: b, Sum: decimal.Zero}
		if t.HasColumn(col) {
			h.Present = true
			h.Series = make([]SeriesPoint, len(historical))
			for i, r := range historical {
				v := r.Value(t, col)
				h.Series[i] = SeriesPoint{Label: r.Label, Value: v}
				if v.Valid {
					h.Sum = h.Sum.Add(v.Decimal)
				}
			}
		}
		totals.Buckets[b] = h
	}

	return totals, nil
}

func sumColumns(t *sheet.Table, r sheet.Row, cols []string) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cols {
		if v := r.Value(t, c); v.Valid {
			sum = sum.Add(v.Decimal)
		}
	}
	return sum
}
