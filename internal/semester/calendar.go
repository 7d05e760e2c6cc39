package semester

import "time"

// The teaching calendar runs fourteen numbered weeks with one unnumbered
// break between weeks 7 and 8. Week numbers are always derived from the
// semester start date, never stored, so schedule views and summaries can
// not drift apart.
const (
	FirstWeek = 1
	LastWeek  = 14

	breakStartDay = 49  // first day of the break week
	breakEndDay   = 56  // first day after the break week
	lastDay       = 105 // first day past week 14
)

// Week converts a semester start date and a wall-clock instant into the
// academic week number and a break flag. Time of day is ignored; both
// arguments are normalized to their calendar date first. Out-of-range
// inputs clamp to week 1 or week 14 rather than failing.
func Week(startDate, today time.Time) (week int, isBreak bool) {
	d := daysBetween(startDate, today)
	switch {
	case d < 0:
		return FirstWeek, false
	case d < breakStartDay:
		return d/7 + 1, false
	case d < breakEndDay:
		// The break sits where week 8 would start; it is reported as
		// week 8 with the flag raised.
		return 8, true
	case d < lastDay:
		return (d-7)/7 + 1, false
	default:
		return LastWeek, false
	}
}

// InBreak reports whether the instant falls in the mid-semester break.
func InBreak(startDate, today time.Time) bool {
	_, isBreak := Week(startDate, today)
	return isBreak
}

// daysBetween counts whole calendar days from a to b, negative when b is
// before a. Dates are compared by calendar date in their own locations,
// so daylight-saving shifts cannot skew the count.
func daysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// DateOnly strips an instant to its calendar date, rebuilt at UTC
// midnight so day arithmetic is exact.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
