// Package schedule maps recurring class meetings onto concrete dates
// using the semester week numbering, and mints the occurrence keys that
// tie sessions to one meeting on one date.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"rollcall/internal/semester"
)

// ErrMeetingNotFound reports an unknown meeting id.
var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting is a recurring scheduled slot. Rows are owned by roster
// management; the engine treats them as immutable. Weekday uses Go's
// numbering (Sunday = 0). Minutes count from midnight local to the
// institution. A zero week bound means unbounded on that side.
type Meeting struct {
	ID          string       `json:"id"`
	ClassID     string       `json:"class_id"`
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
	StartWeek   int          `json:"start_week"`
	EndWeek     int          `json:"end_week"`
}

// ActiveInWeek reports whether the meeting occurs in the given week.
func (m Meeting) ActiveInWeek(week int) bool {
	start := m.StartWeek
	if start < 1 {
		start = semester.FirstWeek
	}
	end := m.EndWeek
	if end < 1 {
		end = semester.LastWeek
	}
	return week >= start && week <= end
}

// OccurrenceKey names one date instance of a meeting. Sessions opened for
// the same key land on the same uniqueness slot, which is what makes
// re-opens idempotent.
func OccurrenceKey(meetingID string, date time.Time) string {
	return meetingID + ":" + semester.DateOnly(date).Format("2006-01-02")
}

// WeekStart returns the calendar date on which an academic week begins.
// Weeks 8 and later sit one extra week after the break. Out-of-range
// weeks clamp, mirroring the week computation.
func WeekStart(sem semester.Semester, week int) time.Time {
	if week < semester.FirstWeek {
		week = semester.FirstWeek
	}
	if week > semester.LastWeek {
		week = semester.LastWeek
	}
	days := (week - 1) * 7
	if week >= 8 {
		days += 7
	}
	return semester.DateOnly(sem.StartDate).AddDate(0, 0, days)
}

// MeetingDate returns the date a meeting occurs in the given week.
func MeetingDate(sem semester.Semester, m Meeting, week int) time.Time {
	start := WeekStart(sem, week)
	offset := (int(m.Weekday) - int(start.Weekday()) + 7) % 7
	return start.AddDate(0, 0, offset)
}

// Occurrence is one concrete date instance of a recurring meeting.
type Occurrence struct {
	MeetingID     string    `json:"meeting_id"`
	ClassID       string    `json:"class_id"`
	Date          time.Time `json:"date"`
	StartMinute   int       `json:"start_minute"`
	EndMinute     int       `json:"end_minute"`
	OccurrenceKey string    `json:"occurrence_key"`
}

// OccurrencesForWeek expands the meetings active in one week into dated
// occurrences, in the order given.
func OccurrencesForWeek(sem semester.Semester, meetings []Meeting, week int) []Occurrence {
	var out []Occurrence
	for _, m := range meetings {
		if !m.ActiveInWeek(week) {
			continue
		}
		date := MeetingDate(sem, m, week)
		out = append(out, Occurrence{
			MeetingID:     m.ID,
			ClassID:       m.ClassID,
			Date:          date,
			StartMinute:   m.StartMinute,
			EndMinute:     m.EndMinute,
			OccurrenceKey: OccurrenceKey(m.ID, date),
		})
	}
	return out
}

// Store reads meeting rows.
type Store interface {
	// MeetingByID returns a meeting or ErrMeetingNotFound.
	MeetingByID(ctx context.Context, id string) (Meeting, error)
	// MeetingsForClass lists a class's meetings ordered by weekday and
	// start time.
	MeetingsForClass(ctx context.Context, classID string) ([]Meeting, error)
}

// Repository reads meetings from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) MeetingByID(ctx context.Context, id string) (Meeting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, weekday, start_minute, end_minute, start_week, end_week
		FROM class_meetings WHERE id = $1
	`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meeting{}, ErrMeetingNotFound
		}
		return Meeting{}, err
	}
	return m, nil
}

func (r *Repository) MeetingsForClass(ctx context.Context, classID string) ([]Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, weekday, start_minute, end_minute, start_week, end_week
		FROM class_meetings
		WHERE class_id = $1
		ORDER BY weekday, start_minute
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (Meeting, error) {
	var m Meeting
	var weekday int
	err := row.Scan(&m.ID, &m.ClassID, &weekday, &m.StartMinute, &m.EndMinute, &m.StartWeek, &m.EndWeek)
	if err != nil {
		return Meeting{}, err
	}
	m.Weekday = time.Weekday(weekday)
	return m, nil
}

// MemStore is an in-memory Store for dev mode and tests.
type MemStore struct {
	mu       sync.RWMutex
	meetings map[string]Meeting
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{meetings: make(map[string]Meeting)}
}

// AddMeeting seeds a meeting row.
func (m *MemStore) AddMeeting(mt Meeting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings[mt.ID] = mt
}

func (m *MemStore) MeetingByID(_ context.Context, id string) (Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.meetings[id]
	if !ok {
		return Meeting{}, ErrMeetingNotFound
	}
	return mt, nil
}

func (m *MemStore) MeetingsForClass(_ context.Context, classID string) ([]Meeting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Meeting
	for _, mt := range m.meetings {
		if mt.ClassID == classID {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}
