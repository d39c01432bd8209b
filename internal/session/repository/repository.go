package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dj258255/tymee-sub001/internal/session/domain"
)

var (
	// ErrSessionStoreUnavailable wraps any infrastructure failure talking to the store.
	// It must never be read as "no session".
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	// ErrSessionNotFound is returned by Rotate when no record exists for the pair.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionMismatch is returned by Rotate when the record holds a different token.
	ErrSessionMismatch = errors.New("session token mismatch")
	// ErrSessionExpired is returned when writing a record whose ExpiresAt is not in the future.
	ErrSessionExpired = errors.New("session record already expired")
)

// Store is the TTL key-value contract for refresh sessions.
//
// Layout:
//
//	session:{<userID>}:<deviceID>  hash {token_hash, created_at, expires_at}, TTL = remaining refresh lifetime
//	user-devices:{<userID>}        set of device ids holding a session
//
// The braces are literal Redis hash tags, so user 42's keys are "session:{42}:deviceA" and
// "user-devices:{42}" (not "session:42:deviceA"). All of a user's keys share one cluster slot.
// Device ids whose session expired by TTL linger in the index until ListDevices prunes them.
// Single-key writes and deletes are atomic; Rotate is a compare-and-set.
type Store interface {
	// Get returns the live record for the pair, or nil if absent.
	Get(ctx context.Context, userID int64, deviceID string) (*domain.SessionRecord, error)
	// Save writes rec unconditionally (overwriting any prior record) and indexes its device.
	Save(ctx context.Context, rec *domain.SessionRecord) error
	// Rotate replaces the pair's record with next only if the current token hash equals currentHash.
	// Returns ErrSessionNotFound or ErrSessionMismatch when the swap does not happen.
	Rotate(ctx context.Context, currentHash string, next *domain.SessionRecord) error
	// Delete removes the pair's record and its index entry. Absence is not an error.
	Delete(ctx context.Context, userID int64, deviceID string) error
	// ListDevices returns the device ids of the user's live sessions, dropping index entries
	// whose session has already expired.
	ListDevices(ctx context.Context, userID int64) ([]string, error)
}

// SessionKey returns the store key of the (userID, deviceID) session record.
func SessionKey(userID int64, deviceID string) string {
	return sessionKeyPrefix(userID) + deviceID
}

func sessionKeyPrefix(userID int64) string {
	return fmt.Sprintf("session:{%d}:", userID)
}

// UserDevicesKey returns the store key of the user's device index.
func UserDevicesKey(userID int64) string {
	return fmt.Sprintf("user-devices:{%d}", userID)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrSessionStoreUnavailable, err)
}
