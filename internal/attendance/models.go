// Package attendance implements the check-in engine: session lifecycle,
// check-in validation, and attendance reconciliation.
package attendance

import (
	"math"
	"time"
)

// Status is the derived attendance state for a (student, session) pair.
// It is recomputed from Session and CheckIn rows on every read and never
// persisted, so it cannot go stale.
type Status string

const (
	StatusPresent Status = "present"
	StatusMissed  Status = "missed"
	StatusPending Status = "pending"
)

// Tier is the coarse attendance-health label derived from a rate.
type Tier string

const (
	TierGood     Tier = "good"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

// Location is a reported GPS coordinate. Accuracy is the device-reported
// error radius in meters; it is advisory and never blocks a check-in.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Class is the engine's read-only view of a class row. Classes are owned
// by roster management; the engine only needs the lecturer reference and
// the room coordinates that seed geofence anchors.
type Class struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	LecturerID string   `json:"lecturer_id"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	RadiusM    *float64 `json:"radius_m,omitempty"`
}

// Session is one concrete check-in window for a class-meeting occurrence.
// Rows are never deleted; an expired session is the permanent record that
// a check-in opportunity existed.
type Session struct {
	ID            string    `json:"id"`
	ClassID       string    `json:"class_id"`
	OccurrenceKey string    `json:"occurrence_key"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	OnlineMode    bool      `json:"online_mode"`
	// IsExpired is set lazily; readers must still compare ExpiresAt.
	IsExpired bool      `json:"is_expired"`
	Anchor    *Location `json:"anchor,omitempty"`
	RadiusM   float64   `json:"radius_m,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveAt evaluates the lifecycle predicate at an instant: a session is
// active while the expiry flag is unset and now has not passed ExpiresAt.
// A lapsed deadline closes the window even while the flag is still unset.
func (s Session) ActiveAt(now time.Time) bool {
	return !s.IsExpired && !now.After(s.ExpiresAt)
}

// CheckIn is one student's attendance record against a session. At most
// one exists per (session, student); rows are immutable once created.
type CheckIn struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	Status      Status    `json:"status"`
	CheckedInAt time.Time `json:"checked_in_at"`
	Location    *Location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary aggregates a student's derived statuses across a class and
// semester window. Total counts session rows actually created in the
// range; pending sessions are excluded from the penalty, so the rate only
// drops for sessions that are definitively missed.
type Summary struct {
	StudentID string `json:"student_id"`
	ClassID   string `json:"class_id"`
	Total     int    `json:"total"`
	Present   int    `json:"present"`
	Missed    int    `json:"missed"`
	Pending   int    `json:"pending"`
	Rate      int    `json:"rate"`
	Tier      Tier   `json:"tier"`
}

// RateOf computes the attendance rate as a rounded percentage: the share
// of sessions not missed, over max(total, 1). Pending sessions count
// toward neither side of the penalty; only missed ones reduce the rate.
func RateOf(total, missed int) int {
	denom := total
	if denom < 1 {
		denom = 1
	}
	return int(math.Round(float64(total-missed) / float64(denom) * 100))
}

// TierFor buckets a rate into the coarse health label.
func TierFor(rate int) Tier {
	switch {
	case rate >= 90:
		return TierGood
	case rate >= 80:
		return TierWarning
	default:
		return TierCritical
	}
}
