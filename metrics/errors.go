/*
errors.go - Error types for the metrics engine

PURPOSE:
  All engine errors in one place. None of them is fatal to a request:
  they either remove one bucket from the projections (reported as a
  Diagnostic) or empty the totals.

ERROR CATEGORIES:
  1. Table shape - aggregate row missing or duplicated
  2. Bucket shape - target/actual column pair incomplete
  3. Values - null target, actual or average
  4. Computation - anything unexpected, including recovered panics

USAGE:
  for _, d := range set.Diagnostics {
      if errors.Is(d.Err, metrics.ErrInvalidValue) { ... }
  }

SEE ALSO:
  - strategy.go: Where these errors are contained
*/
package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/attainment-dashboard/sheet"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingAggregateRow is returned when the table has no month-to-date row.
	ErrMissingAggregateRow = errors.New("aggregate row not found")

	// ErrAmbiguousAggregateRow is returned when the aggregate label appears on
	// more than one row.
	ErrAmbiguousAggregateRow = errors.New("aggregate row appears more than once")

	// ErrMissingBucketColumns is returned when a bucket lacks its target or
	// actual column.
	ErrMissingBucketColumns = errors.New("bucket columns not found")

	// ErrInvalidValue is returned when a target, actual or average is null.
	ErrInvalidValue = errors.New("invalid value")

	// ErrComputationFailure wraps anything else that went wrong mid-computation.
	ErrComputationFailure = errors.New("computation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingColumnsError names the columns a bucket is missing.
type MissingColumnsError struct {
	Bucket  sheet.Bucket
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("bucket %s: missing columns %s", e.Bucket, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingBucketColumns
}

// InvalidValueError names the field of a bucket that was null.
type InvalidValueError struct {
	Bucket sheet.Bucket
	Field  string // "target_total", "actual_to_date" or "recent_daily_average"
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("bucket %s: %s is not a number", e.Bucket, e.Field)
}

func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

// ComputationError records an unexpected failure, either a returned error or a
// recovered panic. Bucket is empty when the failure was not bucket-scoped.
type ComputationError struct {
	Bucket sheet.Bucket
	Cause  error
}

func (e *ComputationError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("computation failed: %v", e.Cause)
	}
	return fmt.Sprintf("bucket %s: computation failed: %v", e.Bucket, e.Cause)
}

func (e *ComputationError) Unwrap() []error {
	return []error{ErrComputationFailure, e.Cause}
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Diagnostic explains why a bucket is absent from a result. Bucket is empty
// for table-level conditions such as a missing aggregate row.
type Diagnostic struct {
	Bucket sheet.Bucket
	Err    error
}

// aggregateError maps table lookup errors onto engine errors.
func aggregateError(err error) error {
	switch {
	case errors.Is(err, sheet.ErrLabelNotFound):
		return ErrMissingAggregateRow
	case errors.Is(err, sheet.ErrAmbiguousLabel):
		return ErrAmbiguousAggregateRow
	default:
		return err
	}
}
