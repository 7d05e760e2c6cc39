// Package semester owns the academic calendar: the semester rows and the
// week-numbering rule derived from them.
package semester

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// ErrNoActive is returned when no semester row is currently active.
var ErrNoActive = errors.New("no active semester")

// Semester is a dated teaching period. Exactly one may be active at a
// time; the store enforces that. Week numbers are derived from StartDate
// with Week, never persisted.
type Semester struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    string    `json:"status"`
}

// CurrentWeek derives the week number and break flag for an instant.
func (s Semester) CurrentWeek(now time.Time) (int, bool) {
	return Week(s.StartDate, now)
}

// Contains reports whether the instant's calendar date falls inside the
// semester's date range, inclusive on both ends.
func (s Semester) Contains(now time.Time) bool {
	d := DateOnly(now)
	return !d.Before(DateOnly(s.StartDate)) && !d.After(DateOnly(s.EndDate))
}

// Store resolves the active semester. Callers resolve it once and pass the
// row down explicitly instead of re-reading ambient state.
type Store interface {
	ActiveSemester(ctx context.Context) (Semester, error)
}

// Repository reads semester rows from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ActiveSemester returns the single active semester, or ErrNoActive.
func (r *Repository) ActiveSemester(ctx context.Context) (Semester, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, status
		FROM semesters
		WHERE status = 'active'
		LIMIT 1
	`)
	var s Semester
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Semester{}, ErrNoActive
		}
		return Semester{}, err
	}
	return s, nil
}

// MemStore is an in-memory Store for dev mode and tests.
type MemStore struct {
	mu     sync.RWMutex
	active *Semester
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// SetActive installs the active semester.
func (m *MemStore) SetActive(s Semester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = &s
}

// ActiveSemester returns the installed semester, or ErrNoActive.
func (m *MemStore) ActiveSemester(_ context.Context) (Semester, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return Semester{}, ErrNoActive
	}
	return *m.active, nil
}
