package metrics

import "time"

// =============================================================================
// PERIOD - Month boundaries for remaining-day counts
// =============================================================================

// EndOfMonth returns the last calendar day of t's month, at midnight in t's location.
func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
}

// DaysRemaining counts the calendar days left in now's month, not counting
// today. It is 0 on the last day of the month.
func DaysRemaining(now time.Time) int {
	return EndOfMonth(now).Day() - now.Day()
}
