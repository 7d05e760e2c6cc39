package attendance

import (
	"context"
	"time"
)

// StatusAt derives the tri-state for one (student, session) pair from the
// facts alone: present if a check-in exists, missed if none exists and
// the window has closed, pending otherwise. It is recomputed on every
// read and never persisted.
func StatusAt(sess Session, hasCheckIn bool, now time.Time) Status {
	if hasCheckIn {
		return StatusPresent
	}
	if sess.ActiveAt(now) {
		return StatusPending
	}
	return StatusMissed
}

// Summarize folds one student's derived statuses over a set of sessions.
// checked holds the ids of sessions the student checked in to; a nil map
// means none.
func Summarize(studentID, classID string, sessions []Session, checked map[string]struct{}, now time.Time) Summary {
	sum := Summary{StudentID: studentID, ClassID: classID, Total: len(sessions)}
	for _, sess := range sessions {
		_, has := checked[sess.ID]
		switch StatusAt(sess, has, now) {
		case StatusPresent:
			sum.Present++
		case StatusMissed:
			sum.Missed++
		default:
			sum.Pending++
		}
	}
	sum.Rate = RateOf(sum.Total, sum.Missed)
	sum.Tier = TierFor(sum.Rate)
	return sum
}

// StatusFor reports the current tri-state for one (student, session).
func (s *Service) StatusFor(ctx context.Context, studentID, sessionID string) (Status, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	has, err := s.store.HasCheckIn(ctx, sessionID, studentID)
	if err != nil {
		return "", err
	}
	return StatusAt(sess, has, s.now()), nil
}

// StudentSummary aggregates one student's attendance over a class's
// sessions started within [from, to). Callers resolve the semester range
// themselves and pass it explicitly.
func (s *Service) StudentSummary(ctx context.Context, studentID, classID string, from, to time.Time) (Summary, error) {
	if _, err := s.store.ClassByID(ctx, classID); err != nil {
		return Summary{}, err
	}
	sessions, err := s.store.SessionsForClassBetween(ctx, classID, from, to)
	if err != nil {
		return Summary{}, err
	}
	checked, err := s.store.CheckedSessionIDs(ctx, studentID, classID, from, to)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(studentID, classID, sessions, checked, s.now()), nil
}

// ClassSummary aggregates every rostered student over the same window so
// the lecturer's table and the student's own view can never disagree:
// both reduce through Summarize over the same session rows.
func (s *Service) ClassSummary(ctx context.Context, classID string, from, to time.Time) ([]Summary, error) {
	if _, err := s.store.ClassByID(ctx, classID); err != nil {
		return nil, err
	}
	roster, err := s.store.RosterStudentIDs(ctx, classID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.SessionsForClassBetween(ctx, classID, from, to)
	if err != nil {
		return nil, err
	}
	byStudent, err := s.store.CheckInsByStudent(ctx, classID, from, to)
	if err != nil {
		return nil, err
	}
	now := s.now()
	summaries := make([]Summary, 0, len(roster))
	for _, studentID := range roster {
		summaries = append(summaries, Summarize(studentID, classID, sessions, byStudent[studentID], now))
	}
	return summaries, nil
}
