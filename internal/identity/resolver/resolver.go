// Package resolver turns a verified external account (or, in development, a bare email) into an Identity,
// creating the user on first sign-in.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	identitydomain "github.com/dj258255/tymee-sub001/internal/identity/domain"
	userdomain "github.com/dj258255/tymee-sub001/internal/user/domain"
	userrepo "github.com/dj258255/tymee-sub001/internal/user/repository"
)

var (
	// ErrUnsupportedProvider is returned when no verifier handles the provider.
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	// ErrInvalidProviderToken is returned by verifiers when the provider rejects the token.
	ErrInvalidProviderToken = errors.New("invalid provider token")
	// ErrInvalidEmail is returned by ResolveByEmail for an empty or malformed email.
	ErrInvalidEmail = errors.New("invalid email")
)

// ProviderVerifier checks a provider-issued token and returns the external account it belongs to.
// Implementations talk to the provider; they are supplied by the caller.
type ProviderVerifier interface {
	Verify(ctx context.Context, provider identitydomain.Provider, token string) (*identitydomain.ExternalAccount, error)
}

// VerifierFunc adapts a function to ProviderVerifier.
type VerifierFunc func(ctx context.Context, provider identitydomain.Provider, token string) (*identitydomain.ExternalAccount, error)

func (f VerifierFunc) Verify(ctx context.Context, provider identitydomain.Provider, token string) (*identitydomain.ExternalAccount, error) {
	return f(ctx, provider, token)
}

// IDGenerator issues user ids.
type IDGenerator interface {
	NextID() (int64, error)
}

// Resolver finds or creates users for verified accounts.
type Resolver struct {
	verifier ProviderVerifier
	users    userrepo.Repository
	ids      IDGenerator
	nowF     func() time.Time
}

// New returns a Resolver. verifier may be nil when only ResolveByEmail is used.
func New(verifier ProviderVerifier, users userrepo.Repository, ids IDGenerator) *Resolver {
	return &Resolver{verifier: verifier, users: users, ids: ids, nowF: time.Now}
}

// Resolve verifies token with the provider and returns the linked user's identity, creating the user if needed.
func (r *Resolver) Resolve(ctx context.Context, provider identitydomain.Provider, token string) (*identitydomain.Identity, error) {
	if r.verifier == nil || provider == identitydomain.ProviderDev {
		return nil, ErrUnsupportedProvider
	}
	acct, err := r.verifier.Verify(ctx, provider, token)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Subject == "" {
		return nil, ErrInvalidProviderToken
	}
	acct.Provider = provider
	return r.findOrCreate(ctx, acct)
}

// ResolveByEmail finds or creates a development user keyed by email. It performs no verification.
func (r *Resolver) ResolveByEmail(ctx context.Context, email string) (*identitydomain.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	return r.findOrCreate(ctx, &identitydomain.ExternalAccount{
		Provider: identitydomain.ProviderDev,
		Subject:  email,
		Email:    email,
		Nickname: email[:strings.IndexByte(email, '@')],
	})
}

func (r *Resolver) findOrCreate(ctx context.Context, acct *identitydomain.ExternalAccount) (*identitydomain.Identity, error) {
	u, err := r.users.GetByProvider(ctx, string(acct.Provider), acct.Subject)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return toIdentity(u), nil
	}

	id, err := r.ids.NextID()
	if err != nil {
		return nil, fmt.Errorf("resolver: next id: %w", err)
	}
	now := r.nowF().UTC()
	u = &userdomain.User{
		ID:              id,
		Email:           acct.Email,
		Nickname:        acct.Nickname,
		Role:            userdomain.RoleUser,
		Provider:        string(acct.Provider),
		ProviderSubject: acct.Subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if u.Email == "" {
		u.Email = acct.Subject + "@" + string(acct.Provider) + ".invalid"
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := r.users.Create(ctx, u); err != nil {
		if !errors.Is(err, userrepo.ErrDuplicate) {
			return nil, err
		}
		// Lost a race with a concurrent first sign-in; use the winner's row.
		existing, gerr := r.users.GetByProvider(ctx, string(acct.Provider), acct.Subject)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, err
		}
		u = existing
	}
	return toIdentity(u), nil
}

func toIdentity(u *userdomain.User) *identitydomain.Identity {
	role := u.Role
	if role == "" {
		role = userdomain.RoleUser
	}
	return &identitydomain.Identity{UserID: u.ID, Email: u.Email, Role: role}
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
