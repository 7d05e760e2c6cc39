package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions and check-ins in Postgres. Concurrent
// opens and duplicate submissions are serialized by the partial unique
// index on (class_id, occurrence_key) WHERE NOT is_expired and the
// UNIQUE (session_id, student_id) constraint.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ClassByID returns a class row.
func (r *Repository) ClassByID(ctx context.Context, classID string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, lecturer_id, latitude, longitude, radius_m
		FROM classes WHERE id = $1
	`, classID)
	var c Class
	if err := row.Scan(&c.ID, &c.Name, &c.LecturerID, &c.Latitude, &c.Longitude, &c.RadiusM); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, ErrClassNotFound
		}
		return Class{}, transient(err)
	}
	return c, nil
}

// RosterStudentIDs lists enrolled students for a class.
func (r *Repository) RosterStudentIDs(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM class_students
		WHERE class_id = $1
		ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, transient(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return ids, nil
}

// InsertSession writes a new session row. A live session already holding
// the occurrence surfaces as ErrDuplicateActiveSession.
func (r *Repository) InsertSession(ctx context.Context, s Session) error {
	var lat, lon, radius sql.NullFloat64
	if s.Anchor != nil {
		lat = sql.NullFloat64{Float64: s.Anchor.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: s.Anchor.Longitude, Valid: true}
	}
	if !s.OnlineMode {
		radius = sql.NullFloat64{Float64: s.RadiusM, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, class_id, occurrence_key, started_at, expires_at, online_mode, is_expired, anchor_lat, anchor_lon, radius_m, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, s.ID, s.ClassID, s.OccurrenceKey, s.StartedAt, s.ExpiresAt, s.OnlineMode, s.IsExpired, lat, lon, radius, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveSession
		}
		return transient(err)
	}
	return nil
}

const sessionCols = `id, class_id, occurrence_key, started_at, expires_at, online_mode, is_expired, anchor_lat, anchor_lon, radius_m, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var lat, lon, radius sql.NullFloat64
	err := row.Scan(&s.ID, &s.ClassID, &s.OccurrenceKey, &s.StartedAt, &s.ExpiresAt,
		&s.OnlineMode, &s.IsExpired, &lat, &lon, &radius, &s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	if lat.Valid && lon.Valid {
		s.Anchor = &Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if radius.Valid {
		s.RadiusM = radius.Float64
	}
	return s, nil
}

// SessionByID loads one session row.
func (r *Repository) SessionByID(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionCols+` FROM sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, transient(err)
	}
	return s, nil
}

// ActiveSessionForOccurrence returns the live session holding an occurrence.
func (r *Repository) ActiveSessionForOccurrence(ctx context.Context, classID, occurrenceKey string, now time.Time) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE class_id = $1 AND occurrence_key = $2 AND NOT is_expired AND expires_at >= $3
		ORDER BY started_at DESC
		LIMIT 1
	`, classID, occurrenceKey, now)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, transient(err)
	}
	return s, nil
}

// ActiveSessionsForClass lists live sessions for a class.
func (r *Repository) ActiveSessionsForClass(ctx context.Context, classID string, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE class_id = $1 AND NOT is_expired AND expires_at >= $2
		ORDER BY started_at
	`, classID, now)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ExpireDueForOccurrence flags due sessions for one occurrence so the
// partial unique index frees up before a re-open.
func (r *Repository) ExpireDueForOccurrence(ctx context.Context, classID, occurrenceKey string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_expired = TRUE
		WHERE class_id = $1 AND occurrence_key = $2 AND NOT is_expired AND expires_at < $3
	`, classID, occurrenceKey, now)
	if err != nil {
		return transient(err)
	}
	return nil
}

// MarkExpired flips one due session to expired. It reports whether this
// call performed the transition.
func (r *Repository) MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_expired = TRUE
		WHERE id = $1 AND NOT is_expired AND expires_at < $2
	`, sessionID, now)
	if err != nil {
		return false, transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, transient(err)
	}
	return n == 1, nil
}

// DueSessions lists sessions whose window has lapsed but whose flag has
// not flipped yet.
func (r *Repository) DueSessions(ctx context.Context, now time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE NOT is_expired AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, transient(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return out, nil
}

// HasCheckIn reports whether a student already checked in to a session.
func (r *Repository) HasCheckIn(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM check_ins WHERE session_id = $1 AND student_id = $2)
	`, sessionID, studentID).Scan(&exists)
	if err != nil {
		return false, transient(err)
	}
	return exists, nil
}

// InsertCheckIn writes a check-in row. The once-per-student constraint
// surfaces as ErrAlreadyCheckedIn.
func (r *Repository) InsertCheckIn(ctx context.Context, ci CheckIn) error {
	var lat, lon, acc sql.NullFloat64
	if ci.Location != nil {
		lat = sql.NullFloat64{Float64: ci.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: ci.Location.Longitude, Valid: true}
		if ci.Location.Accuracy > 0 {
			acc = sql.NullFloat64{Float64: ci.Location.Accuracy, Valid: true}
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO check_ins
			(id, session_id, student_id, status, checked_in_at, latitude, longitude, accuracy, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ci.ID, ci.SessionID, ci.StudentID, string(ci.Status), ci.CheckedInAt, lat, lon, acc, ci.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyCheckedIn
		}
		return transient(err)
	}
	return nil
}

// SessionsForClassBetween lists a class's sessions started within [from, to).
func (r *Repository) SessionsForClassBetween(ctx context.Context, classID string, from, to time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE class_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at
	`, classID, from, to)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// CheckedSessionIDs returns the session ids one student checked in to
// across a class's sessions started within [from, to).
func (r *Repository) CheckedSessionIDs(ctx context.Context, studentID, classID string, from, to time.Time) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.session_id
		FROM check_ins ci
		JOIN sessions s ON s.id = ci.session_id
		WHERE ci.student_id = $1 AND s.class_id = $2 AND s.started_at >= $3 AND s.started_at < $4
	`, studentID, classID, from, to)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, transient(err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return set, nil
}

// CheckInsByStudent returns per-student checked-session sets for a whole
// class in one query, keyed by student id.
func (r *Repository) CheckInsByStudent(ctx context.Context, classID string, from, to time.Time) (map[string]map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.student_id, ci.session_id
		FROM check_ins ci
		JOIN sessions s ON s.id = ci.session_id
		WHERE s.class_id = $1 AND s.started_at >= $2 AND s.started_at < $3
	`, classID, from, to)
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()
	out := make(map[string]map[string]struct{})
	for rows.Next() {
		var studentID, sessionID string
		if err := rows.Scan(&studentID, &sessionID); err != nil {
			return nil, transient(err)
		}
		set, ok := out[studentID]
		if !ok {
			set = make(map[string]struct{})
			out[studentID] = set
		}
		set[sessionID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err)
	}
	return out, nil
}
