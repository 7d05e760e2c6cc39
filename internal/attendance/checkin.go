package attendance

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"rollcall/internal/geo"
	"rollcall/internal/notify"
)

// SubmitCheckIn validates and records one student's attempt against a
// session. Every failure is a definitive typed outcome; only a
// TransientError invites a retry. A concurrent duplicate from the same
// student is settled by the store's uniqueness rule, so exactly one
// attempt wins regardless of instance count.
func (s *Service) SubmitCheckIn(ctx context.Context, sessionID, studentID string, loc *Location) (CheckIn, error) {
	if studentID == "" {
		return CheckIn{}, errors.New("student id required")
	}
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return CheckIn{}, err
	}

	now := s.now()
	// The time predicate alone closes the window; a not-yet-swept expiry
	// flag cannot let a late check-in through.
	if !sess.ActiveAt(now) {
		return CheckIn{}, ErrSessionExpired
	}

	if !sess.OnlineMode {
		if loc == nil {
			return CheckIn{}, ErrLocationRequired
		}
		if !geo.ValidCoordinate(loc.Latitude, loc.Longitude) {
			return CheckIn{}, ErrMalformedCoordinates
		}
		if sess.Anchor == nil {
			return CheckIn{}, ErrMissingAnchor
		}
		radius := sess.RadiusM
		if radius <= 0 {
			radius = s.defaultRadiusM
		}
		distance := geo.DistanceMeters(sess.Anchor.Latitude, sess.Anchor.Longitude, loc.Latitude, loc.Longitude)
		if !geo.WithinRadius(distance, radius) {
			return CheckIn{}, &OutOfRangeError{DistanceM: distance, RadiusM: radius}
		}
		if loc.Accuracy > s.accuracyWarnM {
			log.Printf("attendance: accepting check-in with poor gps accuracy %.0fm (session=%s student=%s)", loc.Accuracy, sessionID, studentID)
		}
	}

	exists, err := s.store.HasCheckIn(ctx, sessionID, studentID)
	if err != nil {
		return CheckIn{}, err
	}
	if exists {
		return CheckIn{}, ErrAlreadyCheckedIn
	}

	ci := CheckIn{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		StudentID:   studentID,
		Status:      StatusPresent,
		CheckedInAt: now,
		CreatedAt:   now,
	}
	if !sess.OnlineMode {
		ci.Location = loc
	}
	if err := s.store.InsertCheckIn(ctx, ci); err != nil {
		return CheckIn{}, err
	}

	s.publish(ctx, notify.CheckInRecorded(sess.ClassID, sess.ID, studentID, ci.CheckedInAt))
	return ci, nil
}
