package security

import "time"

// testSecret is a fixed signing secret for unit tests only.
const testSecret = "test-secret-for-unit-tests-only-0123456789"

// NewTestTokenCodec returns a TokenCodec with a fixed test key, 30m access and 7d refresh lifetimes.
// For unit tests only. Callers must not use in production.
func NewTestTokenCodec() *TokenCodec {
	return NewTestTokenCodecWithClock(time.Now)
}

// NewTestTokenCodecWithClock is NewTestTokenCodec with an injected clock for issuing and verifying.
func NewTestTokenCodecWithClock(nowF func() time.Time) *TokenCodec {
	key, err := DeriveSigningKey(testSecret)
	if err != nil {
		panic(err)
	}
	c := NewTokenCodec(key, "test-issuer", 30*time.Minute, 7*24*time.Hour)
	c.nowF = nowF
	return c
}
