package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-node dev runs. It
// enforces the same uniqueness rules as the Postgres schema: one
// non-expired session per (class, occurrence) and one check-in per
// (session, student). The session conflict check looks only at the
// expiry flag, exactly like the partial unique index, so a due-but-not-
// yet-flagged session still blocks an insert.
type MemStore struct {
	mu       sync.Mutex
	classes  map[string]Class
	roster   map[string]map[string]struct{}
	sessions map[string]Session
	checkIns map[string]map[string]CheckIn
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		classes:  make(map[string]Class),
		roster:   make(map[string]map[string]struct{}),
		sessions: make(map[string]Session),
		checkIns: make(map[string]map[string]CheckIn),
	}
}

// AddClass seeds a class row.
func (m *MemStore) AddClass(c Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
}

// AddRosterStudent enrolls a student in a class.
func (m *MemStore) AddRosterStudent(classID, studentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.roster[classID]
	if !ok {
		set = make(map[string]struct{})
		m.roster[classID] = set
	}
	set[studentID] = struct{}{}
}

func (m *MemStore) ClassByID(_ context.Context, classID string) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

func (m *MemStore) RosterStudentIDs(_ context.Context, classID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.roster[classID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemStore) InsertSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.sessions {
		if other.ClassID == s.ClassID && other.OccurrenceKey == s.OccurrenceKey && !other.IsExpired {
			return ErrDuplicateActiveSession
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) SessionByID(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemStore) ActiveSessionForOccurrence(_ context.Context, classID, occurrenceKey string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found Session
	var ok bool
	for _, s := range m.sessions {
		if s.ClassID != classID || s.OccurrenceKey != occurrenceKey {
			continue
		}
		if s.IsExpired || s.ExpiresAt.Before(now) {
			continue
		}
		if !ok || s.StartedAt.After(found.StartedAt) {
			found, ok = s, true
		}
	}
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return found, nil
}

func (m *MemStore) ActiveSessionsForClass(_ context.Context, classID string, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.ClassID == classID && !s.IsExpired && !s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemStore) ExpireDueForOccurrence(_ context.Context, classID, occurrenceKey string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.ClassID == classID && s.OccurrenceKey == occurrenceKey && !s.IsExpired && s.ExpiresAt.Before(now) {
			s.IsExpired = true
			m.sessions[id] = s
		}
	}
	return nil
}

func (m *MemStore) MarkExpired(_ context.Context, sessionID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.IsExpired || !s.ExpiresAt.Before(now) {
		return false, nil
	}
	s.IsExpired = true
	m.sessions[sessionID] = s
	return true, nil
}

func (m *MemStore) DueSessions(_ context.Context, now time.Time, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []Session
	for _, s := range m.sessions {
		if !s.IsExpired && s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) HasCheckIn(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.checkIns[sessionID][studentID]
	return ok, nil
}

func (m *MemStore) InsertCheckIn(_ context.Context, ci CheckIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.checkIns[ci.SessionID]
	if !ok {
		set = make(map[string]CheckIn)
		m.checkIns[ci.SessionID] = set
	}
	if _, dup := set[ci.StudentID]; dup {
		return ErrAlreadyCheckedIn
	}
	set[ci.StudentID] = ci
	return nil
}

func (m *MemStore) SessionsForClassBetween(_ context.Context, classID string, from, to time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.ClassID == classID && !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			out = append(out, s)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *MemStore) CheckedSessionIDs(_ context.Context, studentID, classID string, from, to time.Time) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]struct{})
	for id, s := range m.sessions {
		if s.ClassID != classID || s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		if _, ok := m.checkIns[id][studentID]; ok {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

func (m *MemStore) CheckInsByStudent(_ context.Context, classID string, from, to time.Time) (map[string]map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]struct{})
	for id, s := range m.sessions {
		if s.ClassID != classID || s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		for studentID := range m.checkIns[id] {
			set, ok := out[studentID]
			if !ok {
				set = make(map[string]struct{})
				out[studentID] = set
			}
			set[id] = struct{}{}
		}
	}
	return out, nil
}

func sortByStart(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
}
