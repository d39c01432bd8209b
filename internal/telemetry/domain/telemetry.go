package domain

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a security-relevant session transition.
type EventType string

const (
	EventLogin              EventType = "login"
	EventRefresh            EventType = "refresh"
	EventLogout             EventType = "logout"
	EventLogoutAll          EventType = "logout_all"
	EventTokenTheftDetected EventType = "token_theft_detected"
)

// SecurityEvent is one session lifecycle event. It never carries token material.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	UserID    int64             `json:"user_id"`
	DeviceID  string            `json:"device_id,omitempty"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewSecurityEvent returns an event stamped with a fresh ULID and the current UTC time.
func NewSecurityEvent(typ EventType, userID int64, deviceID string) *SecurityEvent {
	now := time.Now().UTC()
	return &SecurityEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Type:      typ,
		UserID:    userID,
		DeviceID:  deviceID,
		Source:    "auth",
		CreatedAt: now,
	}
}

// MetadataJSON returns Metadata encoded as a JSON object ({} when empty).
func (e *SecurityEvent) MetadataJSON() []byte {
	if len(e.Metadata) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		return []byte("{}")
	}
	return b
}
