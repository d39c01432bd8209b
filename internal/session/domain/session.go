package domain

import "time"

// SessionRecord is the store-side source of truth for which refresh token is live
// for one (user, device) pair. At most one record exists per pair.
type SessionRecord struct {
	// TokenHash is the SHA-256 hex of the current refresh token; the token itself is never stored.
	TokenHash string
	UserID    int64
	DeviceID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the record's refresh token lifetime has ended at now.
func (r *SessionRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// IsValid reports whether the record is complete and not expired at now.
func (r *SessionRecord) IsValid(now time.Time) bool {
	if r == nil || r.TokenHash == "" || r.DeviceID == "" {
		return false
	}
	return !r.IsExpired(now)
}

// TTL returns the remaining lifetime at now, or 0 when expired. The store TTL must equal this value.
func (r *SessionRecord) TTL(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
