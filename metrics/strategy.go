package metrics

import (
	"fmt"

	"github.com/warp/attainment-dashboard/sheet"
)

// =============================================================================
// ERROR CONTAINMENT STRATEGIES
// =============================================================================
//
// Projections and totals contain failures at different granularity:
//
//   collectPartial  - one guarded call per bucket. A failing bucket becomes a
//                     Diagnostic and the rest keep going.
//   allOrNothing    - one guarded call for the whole computation. Any failure
//                     discards everything computed so far.
//
// Both recover panics into ComputationError so the engine never takes a
// request down.

// collectPartial runs fn once per bucket and keeps the successes.
func collectPartial[T any](buckets []sheet.Bucket, fn func(sheet.Bucket) (T, error)) (map[sheet.Bucket]T, []Diagnostic) {
	results := make(map[sheet.Bucket]T, len(buckets))
	var diags []Diagnostic

	for _, b := range buckets {
		res, err := guard(b, func() (T, error) { return fn(b) })
		if err != nil {
			diags = append(diags, Diagnostic{Bucket: b, Err: err})
			continue
		}
		results[b] = res
	}
	return results, diags
}

// allOrNothing runs fn once; on any error the zero value is returned.
func allOrNothing[T any](fn func() (T, error)) (T, error) {
	res, err := guard("", fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return res, nil
}

// guard converts a panic inside fn into a ComputationError.
func guard[T any](b sheet.Bucket, fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = &ComputationError{Bucket: b, Cause: cause}
		}
	}()
	return fn()
}
