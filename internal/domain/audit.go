package domain

import "time"

// AuditRecord is a persisted session lifecycle event.
type AuditRecord struct {
	ID        string
	EventType string
	Subject   string
	Outcome   string
	ClientIP  string
	RequestID string
	CreatedAt time.Time
}
