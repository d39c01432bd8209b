package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dj258255/tymee-sub001/internal/session/domain"
)

const (
	fieldTokenHash = "token_hash"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
)

// saveScript writes the session hash with its TTL and indexes the device. The index TTL
// is only ever extended, so it outlives every session it lists.
//
// KEYS: session key, index key. ARGV: token_hash, created_at, expires_at, ttl_ms, device_id.
var saveScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'token_hash', ARGV[1], 'created_at', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[5])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[4]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
return 1
`)

// rotateScript is saveScript guarded by a compare on the current token hash.
// Returns 1 on swap, 0 when the session is absent, -1 when it holds another token.
//
// KEYS: session key, index key. ARGV: expected hash, then saveScript's ARGV.
var rotateScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'token_hash')
if not cur then
	return 0
end
if cur ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'token_hash', ARGV[2], 'created_at', ARGV[3], 'expires_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('SADD', KEYS[2], ARGV[6])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[5]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[5])
end
return 1
`)

// listDevicesScript returns the indexed devices whose session key still exists and removes the rest.
//
// KEYS: index key. ARGV: session key prefix.
var listDevicesScript = redis.NewScript(`
local live = {}
for _, d in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	if redis.call('EXISTS', ARGV[1] .. d) == 1 then
		table.insert(live, d)
	else
		redis.call('SREM', KEYS[1], d)
	end
end
return live
`)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client redis.UniversalClient
	nowF   func() time.Time
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, nowF: time.Now}
}

// Ping checks connectivity; used for readiness.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get returns the record for the pair, or nil if the key does not exist.
func (s *RedisStore) Get(ctx context.Context, userID int64, deviceID string) (*domain.SessionRecord, error) {
	fields, err := s.client.HGetAll(ctx, SessionKey(userID, deviceID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 || fields[fieldTokenHash] == "" {
		return nil, nil
	}
	return &domain.SessionRecord{
		TokenHash: fields[fieldTokenHash],
		UserID:    userID,
		DeviceID:  deviceID,
		CreatedAt: parseMillis(fields[fieldCreatedAt]),
		ExpiresAt: parseMillis(fields[fieldExpiresAt]),
	}, nil
}

// Save overwrites the pair's record; its TTL is the remaining lifetime of rec.
func (s *RedisStore) Save(ctx context.Context, rec *domain.SessionRecord) error {
	ttl := rec.TTL(s.nowF())
	if ttl < time.Millisecond {
		return ErrSessionExpired
	}
	keys := []string{SessionKey(rec.UserID, rec.DeviceID), UserDevicesKey(rec.UserID)}
	if err := saveScript.Run(ctx, s.client, keys, recordArgs(rec, ttl)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Rotate atomically swaps the record if it still holds currentHash.
func (s *RedisStore) Rotate(ctx context.Context, currentHash string, next *domain.SessionRecord) error {
	ttl := next.TTL(s.nowF())
	if ttl < time.Millisecond {
		return ErrSessionExpired
	}
	keys := []string{SessionKey(next.UserID, next.DeviceID), UserDevicesKey(next.UserID)}
	args := append([]interface{}{currentHash}, recordArgs(next, ttl)...)
	res, err := rotateScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrSessionNotFound
	default:
		return ErrSessionMismatch
	}
}

// Delete removes the pair's record and index entry in one MULTI/EXEC.
func (s *RedisStore) Delete(ctx context.Context, userID int64, deviceID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, SessionKey(userID, deviceID))
		pipe.SRem(ctx, UserDevicesKey(userID), deviceID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListDevices returns the indexed devices that still hold a session, pruning expired ones from the index.
func (s *RedisStore) ListDevices(ctx context.Context, userID int64) ([]string, error) {
	devices, err := listDevicesScript.Run(ctx, s.client, []string{UserDevicesKey(userID)}, sessionKeyPrefix(userID)).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return devices, nil
}

func recordArgs(rec *domain.SessionRecord, ttl time.Duration) []interface{} {
	return []interface{}{
		rec.TokenHash,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		rec.DeviceID,
	}
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
