package attendance

import (
	"errors"
	"fmt"
)

// Sentinel errors for definitive outcomes. None of these are retryable
// with the same inputs; only TransientError is.
var (
	ErrClassNotFound   = errors.New("class not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("check-in window has closed")

	// ErrAlreadyCheckedIn reports a duplicate (session, student) pair. A
	// store uniqueness violation on insert is translated to this, never
	// surfaced as a generic failure.
	ErrAlreadyCheckedIn = errors.New("already checked in to this session")

	// ErrDuplicateActiveSession is the store-level translation of the
	// active-session uniqueness constraint. OpenSession absorbs it by
	// returning the winning row; it only escapes when that read fails.
	ErrDuplicateActiveSession = errors.New("an active session already exists for this occurrence")

	ErrLocationRequired     = errors.New("location is required for on-site check-in")
	ErrMalformedCoordinates = errors.New("coordinates are out of range")
	ErrMissingAnchor        = errors.New("class has no location configured for geofencing")
	ErrNotAllowed           = errors.New("caller is not allowed to manage this class")
)

// OutOfRangeError reports a geofence violation. It carries the measured
// distance and the allowed radius for user feedback.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("out of range: %.0f m from the class location (allowed %.0f m)", e.DistanceM, e.RadiusM)
}

// TransientError marks a store or collaborator failure that is safe to
// retry: the engine's operations are idempotent check-then-act sequences,
// so a caller may replay the whole call.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}
