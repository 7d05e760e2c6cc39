package attendance

import (
	"context"
	"time"
)

// Store is the engine's surface onto the relational store. All races are
// resolved here: the active-session and check-in uniqueness rules are
// constraints the store enforces, not in-process locks, so the engine
// stays correct when run as multiple instances.
//
// Implementations translate their uniqueness violations into
// ErrDuplicateActiveSession / ErrAlreadyCheckedIn, absence into the
// NotFound sentinels, and infrastructure failures into TransientError.
type Store interface {
	// ClassByID returns the class row or ErrClassNotFound.
	ClassByID(ctx context.Context, classID string) (Class, error)

	// RosterStudentIDs lists the students enrolled in a class.
	RosterStudentIDs(ctx context.Context, classID string) ([]string, error)

	// InsertSession persists a new session, failing with
	// ErrDuplicateActiveSession when a non-expired session already exists
	// for the same (class, occurrence).
	InsertSession(ctx context.Context, s Session) error

	// SessionByID returns a session row or ErrSessionNotFound.
	SessionByID(ctx context.Context, id string) (Session, error)

	// ActiveSessionForOccurrence returns the session for (class,
	// occurrence) that is active at now, or ErrSessionNotFound.
	ActiveSessionForOccurrence(ctx context.Context, classID, occurrenceKey string, now time.Time) (Session, error)

	// ActiveSessionsForClass lists all sessions of a class active at now.
	ActiveSessionsForClass(ctx context.Context, classID string, now time.Time) ([]Session, error)

	// ExpireDueForOccurrence lazily flags any session for (class,
	// occurrence) whose window has passed. Idempotent.
	ExpireDueForOccurrence(ctx context.Context, classID, occurrenceKey string, now time.Time) error

	// MarkExpired flips a session's expiry flag if its window has passed
	// and it is not already flagged. Returns whether this call flipped it,
	// so expiry events fire at most once per row.
	MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error)

	// DueSessions lists sessions whose window has passed but whose flag is
	// still unset, oldest first, for the sweep.
	DueSessions(ctx context.Context, now time.Time, limit int) ([]Session, error)

	// HasCheckIn reports whether a check-in exists for (session, student).
	HasCheckIn(ctx context.Context, sessionID, studentID string) (bool, error)

	// InsertCheckIn persists a check-in, failing with ErrAlreadyCheckedIn
	// when the (session, student) pair already has one.
	InsertCheckIn(ctx context.Context, ci CheckIn) error

	// SessionsForClassBetween lists a class's sessions with started_at in
	// [from, to).
	SessionsForClassBetween(ctx context.Context, classID string, from, to time.Time) ([]Session, error)

	// CheckedSessionIDs returns the set of session ids in the class and
	// range that the student has checked in to.
	CheckedSessionIDs(ctx context.Context, studentID, classID string, from, to time.Time) (map[string]struct{}, error)

	// CheckInsByStudent returns, for every student with at least one
	// check-in in the class and range, the set of session ids they
	// checked in to.
	CheckInsByStudent(ctx context.Context, classID string, from, to time.Time) (map[string]map[string]struct{}, error)
}
