package domain

import "time"

// AuditLog is one persisted security event.
type AuditLog struct {
	ID int64
	// EventID is the producer-assigned event id; it makes redelivered events idempotent.
	EventID   string
	UserID    int64
	DeviceID  string
	Action    string
	Source    string
	Metadata  string
	CreatedAt time.Time
}
