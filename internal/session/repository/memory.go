package repository

import (
	"context"
	"sync"
	"time"

	"github.com/dj258255/tymee-sub001/internal/session/domain"
)

// MemoryStore is an in-process Store with the same TTL semantics as RedisStore.
// It serves single-node development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.SessionRecord
	devices  map[int64]map[string]struct{}
	nowF     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.SessionRecord),
		devices:  make(map[int64]map[string]struct{}),
		nowF:     time.Now,
	}
}

// Get returns the live record for the pair; expired records are evicted on read.
func (s *MemoryStore) Get(ctx context.Context, userID int64, deviceID string) (*domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(userID, deviceID)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Save overwrites the pair's record.
func (s *MemoryStore) Save(ctx context.Context, rec *domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if rec.TTL(s.nowF()) < time.Millisecond {
		return ErrSessionExpired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(rec)
	return nil
}

// Rotate swaps the record if it still holds currentHash.
func (s *MemoryStore) Rotate(ctx context.Context, currentHash string, next *domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if next.TTL(s.nowF()) < time.Millisecond {
		return ErrSessionExpired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.liveLocked(next.UserID, next.DeviceID)
	if !ok {
		return ErrSessionNotFound
	}
	if cur.TokenHash != currentHash {
		return ErrSessionMismatch
	}
	s.putLocked(next)
	return nil
}

// Delete removes the pair's record and index entry.
func (s *MemoryStore) Delete(ctx context.Context, userID int64, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(userID, deviceID)
	return nil
}

// ListDevices returns the devices with a live session; expired ones are evicted.
func (s *MemoryStore) ListDevices(ctx context.Context, userID int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	indexed := make([]string, 0, len(s.devices[userID]))
	for d := range s.devices[userID] {
		indexed = append(indexed, d)
	}
	out := indexed[:0]
	for _, d := range indexed {
		if _, ok := s.liveLocked(userID, d); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) liveLocked(userID int64, deviceID string) (domain.SessionRecord, bool) {
	key := SessionKey(userID, deviceID)
	rec, ok := s.sessions[key]
	if !ok {
		return domain.SessionRecord{}, false
	}
	if rec.IsExpired(s.nowF()) {
		s.deleteLocked(userID, deviceID)
		return domain.SessionRecord{}, false
	}
	return rec, true
}

func (s *MemoryStore) putLocked(rec *domain.SessionRecord) {
	s.sessions[SessionKey(rec.UserID, rec.DeviceID)] = *rec
	set, ok := s.devices[rec.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.devices[rec.UserID] = set
	}
	set[rec.DeviceID] = struct{}{}
}

func (s *MemoryStore) deleteLocked(userID int64, deviceID string) {
	delete(s.sessions, SessionKey(userID, deviceID))
	if set, ok := s.devices[userID]; ok {
		delete(set, deviceID)
		if len(set) == 0 {
			delete(s.devices, userID)
		}
	}
}
