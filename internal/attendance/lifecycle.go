package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/geo"
	"rollcall/internal/notify"
)

// Authorizer decides whether a caller may manage a class's sessions.
// Implementations return ErrNotAllowed to deny; any other error is
// treated as an infrastructure failure.
type Authorizer interface {
	CanManage(ctx context.Context, callerID, classID string) error
}

// Config tunes the engine's fixed knobs.
type Config struct {
	// Window is how long a session accepts check-ins.
	Window time.Duration
	// DefaultRadiusM is the geofence radius when the class has none.
	DefaultRadiusM float64
	// AccuracyWarnM is the GPS accuracy above which a check-in is logged
	// as suspect. Accuracy is advisory and never blocks.
	AccuracyWarnM float64
}

// Service owns the session state machine and check-in validation. All
// cross-instance races are settled by the Store's uniqueness rules, so
// any number of Service instances may run against one store.
type Service struct {
	store Store
	authz Authorizer
	pub   notify.Publisher

	window         time.Duration
	defaultRadiusM float64
	accuracyWarnM  float64

	now func() time.Time
}

// NewService creates the engine. authz may be nil, in which case only the
// class's own lecturer may manage its sessions. pub may be nil to disable
// fan-out.
func NewService(store Store, authz Authorizer, pub notify.Publisher, cfg Config) *Service {
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Minute
	}
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = 500
	}
	if cfg.AccuracyWarnM <= 0 {
		cfg.AccuracyWarnM = 100
	}
	return &Service{
		store:          store,
		authz:          authz,
		pub:            pub,
		window:         cfg.Window,
		defaultRadiusM: cfg.DefaultRadiusM,
		accuracyWarnM:  cfg.AccuracyWarnM,
		now:            time.Now,
	}
}

func (s *Service) authorize(ctx context.Context, callerID string, c Class) error {
	if s.authz == nil {
		if callerID == c.LecturerID {
			return nil
		}
		return ErrNotAllowed
	}
	if err := s.authz.CanManage(ctx, callerID, c.ID); err != nil {
		if errors.Is(err, ErrNotAllowed) {
			return ErrNotAllowed
		}
		return transient(err)
	}
	return nil
}

// OpenSession opens a check-in window for one class-meeting occurrence,
// or returns the window that is already open for it. The second result
// reports whether an existing session was reused.
//
// Opens for the same occurrence are serialized by the store: when a
// concurrent open wins the insert, this call reads the winner back and
// returns it, so retries and double-clicks converge on one session.
func (s *Service) OpenSession(ctx context.Context, callerID, classID, occurrenceKey string, onlineMode bool, callerLoc *Location) (Session, bool, error) {
	if occurrenceKey == "" {
		return Session{}, false, errors.New("occurrence key required")
	}
	c, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return Session{}, false, err
	}
	if err := s.authorize(ctx, callerID, c); err != nil {
		return Session{}, false, err
	}

	now := s.now()
	// Free the occurrence's uniqueness slot from any lapsed session before
	// checking for a live one.
	if err := s.store.ExpireDueForOccurrence(ctx, classID, occurrenceKey, now); err != nil {
		return Session{}, false, err
	}
	existing, err := s.store.ActiveSessionForOccurrence(ctx, classID, occurrenceKey, now)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, false, err
	}

	sess := Session{
		ID:            uuid.NewString(),
		ClassID:       classID,
		OccurrenceKey: occurrenceKey,
		StartedAt:     now,
		ExpiresAt:     now.Add(s.window),
		OnlineMode:    onlineMode,
		CreatedAt:     now,
	}
	if !onlineMode {
		anchor, radius, err := s.resolveAnchor(c, callerLoc)
		if err != nil {
			return Session{}, false, err
		}
		sess.Anchor = anchor
		sess.RadiusM = radius
	}

	if err := s.store.InsertSession(ctx, sess); err != nil {
		if errors.Is(err, ErrDuplicateActiveSession) {
			// Lost the race; hand back the winner.
			winner, rerr := s.store.ActiveSessionForOccurrence(ctx, classID, occurrenceKey, s.now())
			if rerr == nil {
				return winner, true, nil
			}
		}
		return Session{}, false, err
	}

	s.publish(ctx, notify.SessionOpened(sess.ClassID, sess.ID, sess.StartedAt, sess.ExpiresAt, sess.OnlineMode))
	return sess, false, nil
}

// resolveAnchor picks the geofence center for an on-site session: the
// caller's reported position when given, else the class's room
// coordinates. The radius comes from the class, falling back to the
// configured default.
func (s *Service) resolveAnchor(c Class, callerLoc *Location) (*Location, float64, error) {
	radius := s.defaultRadiusM
	if c.RadiusM != nil && *c.RadiusM > 0 {
		radius = *c.RadiusM
	}
	if callerLoc != nil {
		if !geo.ValidCoordinate(callerLoc.Latitude, callerLoc.Longitude) {
			return nil, 0, ErrMalformedCoordinates
		}
		return &Location{Latitude: callerLoc.Latitude, Longitude: callerLoc.Longitude}, radius, nil
	}
	if c.Latitude != nil && c.Longitude != nil {
		return &Location{Latitude: *c.Latitude, Longitude: *c.Longitude}, radius, nil
	}
	return nil, 0, ErrMissingAnchor
}

// ExpireIfDue flips a session to expired when its window has lapsed, and
// returns the session in its current state. Calling it on an active or
// already-expired session is a no-op, so lazy reads and the sweep can
// both drive the same transition.
func (s *Service) ExpireIfDue(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	if sess.IsExpired || !now.After(sess.ExpiresAt) {
		return sess, nil
	}
	flipped, err := s.store.MarkExpired(ctx, sessionID, now)
	if err != nil {
		return Session{}, err
	}
	sess.IsExpired = true
	if flipped {
		s.publish(ctx, notify.SessionExpired(sess.ClassID, sess.ID))
	}
	return sess, nil
}

// ExpireDueSessions is the periodic sweep: it flips every due session it
// finds and announces each one it personally flipped, so expiry
// notifications fire at most once even with several sweepers running. It
// returns how many sessions this call expired.
func (s *Service) ExpireDueSessions(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.store.DueSessions(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sess := range due {
		flipped, err := s.store.MarkExpired(ctx, sess.ID, now)
		if err != nil {
			return expired, err
		}
		if !flipped {
			continue
		}
		expired++
		s.publish(ctx, notify.SessionExpired(sess.ClassID, sess.ID))
	}
	return expired, nil
}

// ActiveSessions lists a class's currently open windows.
func (s *Service) ActiveSessions(ctx context.Context, classID string) ([]Session, error) {
	if _, err := s.store.ClassByID(ctx, classID); err != nil {
		return nil, err
	}
	return s.store.ActiveSessionsForClass(ctx, classID, s.now())
}

func (s *Service) publish(ctx context.Context, evt notify.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, evt); err != nil {
		log.Printf("notify: %s publish failed: %v", evt.Kind, err)
	}
}
