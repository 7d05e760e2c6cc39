package semester

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeek(t *testing.T) {
	t.Parallel()
	start := date(2025, time.January, 6)

	cases := []struct {
		name      string
		today     time.Time
		wantWeek  int
		wantBreak bool
	}{
		{"before semester clamps to week 1", date(2024, time.December, 30), 1, false},
		{"first day", start, 1, false},
		{"last day of week 1", date(2025, time.January, 12), 1, false},
		{"first day of week 2", date(2025, time.January, 13), 2, false},
		{"day 35 is week 6", date(2025, time.February, 10), 6, false},
		{"day 42 is week 7", date(2025, time.February, 17), 7, false},
		{"day 48 closes week 7", date(2025, time.February, 23), 7, false},
		{"day 49 opens the break", date(2025, time.February, 24), 8, true},
		{"day 55 closes the break", date(2025, time.March, 2), 8, true},
		{"day 56 is week 8 proper", date(2025, time.March, 3), 8, false},
		{"day 63 is week 9", date(2025, time.March, 10), 9, false},
		{"day 104 closes week 14", date(2025, time.April, 20), 14, false},
		{"day 105 clamps to week 14", date(2025, time.April, 21), 14, false},
		{"long after semester clamps", date(2025, time.August, 1), 14, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			week, isBreak := Week(start, tc.today)
			if week != tc.wantWeek || isBreak != tc.wantBreak {
				t.Errorf("Week(%s) = (%d, %v), want (%d, %v)",
					tc.today.Format("2006-01-02"), week, isBreak, tc.wantWeek, tc.wantBreak)
			}
		})
	}
}

// Every input maps into [1,14], and the break flag is raised exactly for
// the seven days starting at day 49.
func TestWeekRangeProperty(t *testing.T) {
	t.Parallel()
	start := date(2025, time.January, 6)
	for d := -30; d < 200; d++ {
		today := start.AddDate(0, 0, d)
		week, isBreak := Week(start, today)
		if week < FirstWeek || week > LastWeek {
			t.Fatalf("day %d: week %d out of [1,14]", d, week)
		}
		wantBreak := d >= 49 && d < 56
		if isBreak != wantBreak {
			t.Fatalf("day %d: isBreak = %v, want %v", d, isBreak, wantBreak)
		}
		if isBreak && week != 8 {
			t.Fatalf("day %d: break reported on week %d, want 8", d, week)
		}
	}
}

func TestWeekIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, time.January, 6, 23, 59, 0, 0, time.UTC)
	today := time.Date(2025, time.January, 13, 0, 1, 0, 0, time.UTC)
	week, _ := Week(start, today)
	if week != 2 {
		t.Errorf("Week = %d, want 2 (time of day must be ignored)", week)
	}
}

func TestWeekAcrossLocations(t *testing.T) {
	t.Parallel()
	start := date(2025, time.January, 6)
	loc := time.FixedZone("UTC+11", 11*3600)
	today := time.Date(2025, time.February, 24, 1, 0, 0, 0, loc)
	week, isBreak := Week(start, today)
	if week != 8 || !isBreak {
		t.Errorf("Week = (%d, %v), want (8, true): calendar date decides, not the instant", week, isBreak)
	}
}

func TestInBreak(t *testing.T) {
	t.Parallel()
	start := date(2025, time.January, 6)
	if InBreak(start, date(2025, time.February, 17)) {
		t.Error("InBreak on a teaching day = true, want false")
	}
	if !InBreak(start, date(2025, time.February, 26)) {
		t.Error("InBreak mid-break = false, want true")
	}
}
