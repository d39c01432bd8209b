package security

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum length of the configured signing secret in bytes.
const MinSecretLength = 32

// ErrInvalidKey is returned when the configured secret is missing or too short.
var ErrInvalidKey = errors.New("invalid key")

const signingKeyInfo = "tymee/jwt-signing/v1"

// DeriveSigningKey derives the 32-byte HS256 key from the configured secret with HKDF-SHA256.
// It is called once at startup; the result is held by the TokenCodec for the process lifetime.
func DeriveSigningKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidKey
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
