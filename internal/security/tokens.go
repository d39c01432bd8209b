package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMalformed is returned for any structural, signature, issuer or algorithm failure.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned when the signature is valid but exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenTypeMismatch is returned when an access token is presented where a refresh token
	// is expected, or the reverse.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// TokenType distinguishes the two credential classes. They share a signing key but are never interchangeable.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the decoded, verified content of a token. It carries no secrets.
type Claims struct {
	SubjectID int64
	Email     string
	Role      string
	TokenType TokenType
	ExpiresAt time.Time
}

// ExpiresAtEpochMillis returns the expiry as Unix milliseconds.
func (c *Claims) ExpiresAtEpochMillis() int64 {
	return c.ExpiresAt.UnixMilli()
}

// TokenPair is the result of Issue.
type TokenPair struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	AccessTokenExpiresIn  int64  `json:"accessTokenExpiresIn"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
	// RefreshTokenExpiresAt is the exp of RefreshToken; the session record expires with it.
	RefreshTokenExpiresAt time.Time `json:"-"`
}

// tokenClaims is the JWT body: sub, email, role, type, iss, iat, exp and a random jti.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string    `json:"email"`
	Role  string    `json:"role"`
	Type  TokenType `json:"type"`
}

// TokenCodec issues and verifies HS256 access and refresh JWTs.
// Verification is pure: it never touches the session store.
type TokenCodec struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenCodec returns a TokenCodec that signs with key (see DeriveSigningKey).
func NewTokenCodec(key []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	k := make([]byte, len(key))
	copy(k, key)
	return &TokenCodec{
		key:        k,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue builds and signs an access token and an independent refresh token for subjectID.
func (c *TokenCodec) Issue(subjectID int64, email, role string) (*TokenPair, error) {
	// JWT dates have second precision; truncating keeps RefreshTokenExpiresAt equal to the signed exp.
	now := c.nowF().UTC().Truncate(time.Second)
	accessExp := now.Add(c.accessTTL)
	refreshExp := now.Add(c.refreshTTL)

	access, err := c.sign(subjectID, email, role, TokenTypeAccess, now, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, err := c.sign(subjectID, email, role, TokenTypeRefresh, now, refreshExp)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresIn:  int64(c.accessTTL / time.Second),
		RefreshTokenExpiresIn: int64(c.refreshTTL / time.Second),
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (c *TokenCodec) sign(subjectID int64, email, role string, typ TokenType, now, exp time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		Role:  role,
		Type:  typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// VerifyAccess validates signature, issuer and expiry, then requires type=access.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, TokenTypeAccess)
}

// VerifyRefresh validates signature, issuer and expiry, then requires type=refresh.
func (c *TokenCodec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, TokenTypeRefresh)
}

func (c *TokenCodec) verify(tokenString string, want TokenType) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowF),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if claims.Type != want {
		return nil, ErrTokenTypeMismatch
	}
	sub, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	return &Claims{
		SubjectID: sub,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenType: claims.Type,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
