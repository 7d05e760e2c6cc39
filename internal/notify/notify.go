// Package notify fans out session lifecycle and check-in events to
// connected clients. Delivery is at-most-once best-effort; correctness
// never depends on an event arriving, because every consumer can re-query
// current state.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindSessionOpened   Kind = "session_opened"
	KindCheckInRecorded Kind = "check_in_recorded"
	KindSessionExpired  Kind = "session_expired"
)

// Event is one fan-out message. Optional fields are pointers so absent
// values stay off the wire.
type Event struct {
	Kind       Kind       `json:"kind"`
	ClassID    string     `json:"class_id"`
	SessionID  string     `json:"session_id"`
	StudentID  string     `json:"student_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	OnlineMode *bool      `json:"online_mode,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// SessionOpened builds the event announcing a fresh check-in window.
func SessionOpened(classID, sessionID string, startedAt, expiresAt time.Time, onlineMode bool) Event {
	return Event{
		Kind:       KindSessionOpened,
		ClassID:    classID,
		SessionID:  sessionID,
		StartedAt:  &startedAt,
		ExpiresAt:  &expiresAt,
		OnlineMode: &onlineMode,
	}
}

// CheckInRecorded builds the event announcing one accepted check-in.
func CheckInRecorded(classID, sessionID, studentID string, at time.Time) Event {
	return Event{
		Kind:      KindCheckInRecorded,
		ClassID:   classID,
		SessionID: sessionID,
		StudentID: studentID,
		Timestamp: &at,
	}
}

// SessionExpired builds the event announcing a closed window.
func SessionExpired(classID, sessionID string) Event {
	return Event{
		Kind:      KindSessionExpired,
		ClassID:   classID,
		SessionID: sessionID,
	}
}

// Publisher is the abstraction over different backends.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// DefaultChannelPrefix scopes events to one class's subscribers.
const DefaultChannelPrefix = "rollcall:class:"

// InMemory is a channel-backed publisher for dev/testing. Subscribers
// with full buffers lose events rather than block the publisher.
type InMemory struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewInMemory creates a publisher with no subscribers.
func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[string][]chan Event)}
}

// Subscribe returns a buffered channel of events for one class.
func (p *InMemory) Subscribe(classID string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	p.mu.Lock()
	p.subs[classID] = append(p.subs[classID], ch)
	p.mu.Unlock()
	return ch
}

// Publish delivers to every subscriber of the event's class.
func (p *InMemory) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs[evt.ClassID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// RedisPublisher fans out over Redis PUB/SUB, one channel per class, so a
// cluster of API instances all reach the same subscribers.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher builds a publisher on an existing client.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish sends the JSON-encoded event to the class channel.
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.prefix+evt.ClassID, payload).Err()
}
