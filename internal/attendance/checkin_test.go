package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/notify"
)

// Student positions relative to the seeded class anchor (6.9271, 79.8612):
// nearLoc is about 100 m north, farLoc about 600 m north.
var (
	nearLoc = Location{Latitude: 6.9280, Longitude: 79.8612, Accuracy: 10}
	farLoc  = Location{Latitude: 6.9325, Longitude: 79.8612, Accuracy: 10}
)

func openOnsiteSession(t *testing.T, svc *Service) Session {
	t.Helper()
	sess, _, err := svc.OpenSession(context.Background(), "lect-1", "class-1", occKey, false, nil)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return sess
}

func TestSubmitCheckInRecordsPresent(t *testing.T) {
	t.Parallel()
	svc, store, pub, clock := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	clock.Advance(30 * time.Second)
	loc := nearLoc
	ci, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
	if err != nil {
		t.Fatalf("SubmitCheckIn: %v", err)
	}
	if ci.Status != StatusPresent {
		t.Fatalf("status = %s, want present", ci.Status)
	}
	if !ci.CheckedInAt.Equal(clock.Now()) {
		t.Fatalf("checked_in_at = %v, want %v", ci.CheckedInAt, clock.Now())
	}
	if ci.Location == nil || ci.Location.Latitude != nearLoc.Latitude {
		t.Fatalf("location = %+v, want the submitted position", ci.Location)
	}

	events := pub.byKind(notify.KindCheckInRecorded)
	if len(events) != 1 {
		t.Fatalf("check_in_recorded events = %d, want 1", len(events))
	}
	if events[0].StudentID != "stu-1" || events[0].SessionID != sess.ID {
		t.Fatalf("event = %+v, want student and session ids", events[0])
	}
}

func TestSubmitCheckInOutOfRange(t *testing.T) {
	t.Parallel()
	svc, store, _, clock := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	clock.Advance(30 * time.Second)
	loc := farLoc
	_, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("err = %v, want OutOfRangeError", err)
	}
	if oor.DistanceM < 595 || oor.DistanceM > 606 {
		t.Fatalf("distance = %.1f, want about 600", oor.DistanceM)
	}
	if oor.RadiusM != 500 {
		t.Fatalf("radius = %.0f, want 500", oor.RadiusM)
	}
	if has, _ := store.HasCheckIn(ctx, sess.ID, "stu-1"); has {
		t.Fatal("rejected attempt left a check-in row")
	}
}

func TestSubmitCheckInAfterWindowCloses(t *testing.T) {
	t.Parallel()
	svc, store, _, clock := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	// No sweep has run: the row's flag is still unset, only the clock has
	// moved past the window.
	clock.Advance(150 * time.Second)
	loc := nearLoc
	_, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	row, err := store.SessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if row.IsExpired {
		t.Fatal("lazy rejection must not require the flag to be set")
	}
}

func TestSubmitCheckInDuplicate(t *testing.T) {
	t.Parallel()
	svc, store, _, clock := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	clock.Advance(10 * time.Second)
	loc := nearLoc
	if _, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("err = %v, want ErrAlreadyCheckedIn", err)
	}
	if n := len(store.checkIns[sess.ID]); n != 1 {
		t.Fatalf("check-in rows = %d, want exactly 1", n)
	}
}

func TestSubmitCheckInConcurrentDuplicate(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	errs := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			loc := nearLoc
			_, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
			errs <- err
		}()
	}
	start.Done()

	a, b := <-errs, <-errs
	ok, dup := 0, 0
	for _, err := range []error{a, b} {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyCheckedIn):
			dup++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("got %d successes and %d conflicts, want 1 and 1", ok, dup)
	}
	if n := len(store.checkIns[sess.ID]); n != 1 {
		t.Fatalf("check-in rows = %d, want exactly 1", n)
	}
}

func TestSubmitCheckInOnlineMode(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess, _, err := svc.OpenSession(ctx, "lect-1", "class-1", occKey, true, nil)
	if err != nil {
		t.Fatalf("open online session: %v", err)
	}

	// Position is ignored entirely: a far-away point passes and the stored
	// row carries no location.
	loc := farLoc
	ci, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &loc)
	if err != nil {
		t.Fatalf("submit with location: %v", err)
	}
	if ci.Location != nil {
		t.Fatalf("location = %+v, want none on an online check-in", ci.Location)
	}
	if _, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-2", nil); err != nil {
		t.Fatalf("submit without location: %v", err)
	}
}

func TestSubmitCheckInLocationValidation(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	seedClass(store)
	ctx := context.Background()
	sess := openOnsiteSession(t, svc)

	if _, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", nil); !errors.Is(err, ErrLocationRequired) {
		t.Fatalf("nil location err = %v, want ErrLocationRequired", err)
	}
	bad := Location{Latitude: 95, Longitude: 79.8612}
	if _, err := svc.SubmitCheckIn(ctx, sess.ID, "stu-1", &bad); !errors.Is(err, ErrMalformedCoordinates) {
		t.Fatalf("bad coords err = %v, want ErrMalformedCoordinates", err)
	}
}

func TestSubmitCheckInPoorAccuracyIsAdvisory(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	seedClass(store)
	sess := openOnsiteSession(t, svc)

	loc := Location{Latitude: nearLoc.Latitude, Longitude: nearLoc.Longitude, Accuracy: 250}
	if _, err := svc.SubmitCheckIn(context.Background(), sess.ID, "stu-1", &loc); err != nil {
		t.Fatalf("poor accuracy must not block: %v", err)
	}
}

func TestSubmitCheckInUnknownSession(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newTestService(t)
	loc := nearLoc
	_, err := svc.SubmitCheckIn(context.Background(), "ghost", "stu-1", &loc)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
