package domain

import "strings"

// Identity is a verified principal handed to the session manager after login.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// Provider names the external account system a user signs in with.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderKakao  Provider = "kakao"
	ProviderApple  Provider = "apple"
	// ProviderDev is only used by the development login path.
	ProviderDev Provider = "dev"
)

// ParseProvider returns the Provider for s (case-insensitive). ProviderDev is not accepted here.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderKakao, ProviderApple:
		return p, true
	default:
		return "", false
	}
}

// ExternalAccount is what a provider verifier returns for a valid provider token.
type ExternalAccount struct {
	Provider Provider
	// Subject is the provider's stable user identifier.
	Subject  string
	Email    string
	Nickname string
}
