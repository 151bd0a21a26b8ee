package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/warp/attainment-dashboard/sheet"
)

// BucketAttainment is one bar of the target-vs-actual overview.
type BucketAttainment struct {
	Bucket          sheet.Bucket
	Target          decimal.Decimal
	Actual          decimal.Decimal
	AttainedPercent decimal.Decimal
}

// Summary is the overview card set.
type Summary struct {
	TargetTotal     decimal.Decimal
	ActualTotal     decimal.Decimal
	AttainedPercent decimal.Decimal
	DaysRemaining   int
	Buckets         []BucketAttainment
	Available       bool // false when totals could not be computed
}

// Summarize combines totals (overall cards) with projections (per-bucket bars).
func (e *Engine) Summarize(totals Totals, set ProjectionSet) Summary {
	s := Summary{
		TargetTotal:     totals.TargetTotal,
		ActualTotal:     totals.ActualTotal,
		AttainedPercent: totals.AttainedPercent(),
		DaysRemaining:   set.DaysRemaining,
		Available:       !totals.IsEmpty(),
	}
	for _, p := range set.Ordered(e.Layout.Buckets) {
		s.Buckets = append(s.Buckets, BucketAttainment{
			Bucket:          p.Bucket,
			Target:          p.TargetTotal,
			Actual:          p.ActualToDate,
			AttainedPercent: p.AttainedPercent(),
		})
	}
	return s
}
