package semester

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContainsInclusiveBounds(t *testing.T) {
	t.Parallel()
	s := Semester{
		StartDate: date(2025, time.January, 6),
		EndDate:   date(2025, time.April, 25),
	}
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"day before start", date(2025, time.January, 5), false},
		{"first day", date(2025, time.January, 6), true},
		{"first day late evening", time.Date(2025, time.January, 6, 23, 59, 0, 0, time.UTC), true},
		{"midway", date(2025, time.March, 1), true},
		{"last day", date(2025, time.April, 25), true},
		{"day after end", date(2025, time.April, 26), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Contains(tc.at); got != tc.want {
				t.Fatalf("Contains(%s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestMemStoreActiveSemester(t *testing.T) {
	t.Parallel()
	m := NewMemStore()
	ctx := context.Background()

	if _, err := m.ActiveSemester(ctx); !errors.Is(err, ErrNoActive) {
		t.Fatalf("empty store error = %v, want ErrNoActive", err)
	}

	m.SetActive(Semester{ID: "sem-1", Status: "active"})
	got, err := m.ActiveSemester(ctx)
	if err != nil {
		t.Fatalf("ActiveSemester: %v", err)
	}
	if got.ID != "sem-1" {
		t.Fatalf("semester = %+v", got)
	}
}
