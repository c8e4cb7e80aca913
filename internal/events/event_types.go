package events

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded   EventType = "login_succeeded"
	EventLoginFailed      EventType = "login_failed"
	EventSessionRefreshed EventType = "session_refreshed"
	EventRefreshRejected  EventType = "refresh_rejected"
	EventLoggedOut        EventType = "logged_out"
)

// SessionEventTypes lists every event the session service publishes.
var SessionEventTypes = []EventType{
	EventLoginSucceeded,
	EventLoginFailed,
	EventSessionRefreshed,
	EventRefreshRejected,
	EventLoggedOut,
}

// Meta carries request attributes that are safe to record.
type Meta struct {
	ClientIP  string `json:"client_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Event represents a session lifecycle event emitted by the orchestrator.
// It never carries secrets, credentials or external session id values.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject,omitempty"`
	Outcome   string    `json:"outcome"`
	Meta      Meta      `json:"meta"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEvent stamps an event with a ULID and the current time.
func NewEvent(eventType EventType, subject, outcome string, meta Meta) Event {
	now := time.Now().UTC()
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()

	return Event{
		ID:        id.String(),
		Type:      eventType,
		Subject:   subject,
		Outcome:   outcome,
		Meta:      meta,
		Timestamp: now,
	}
}
