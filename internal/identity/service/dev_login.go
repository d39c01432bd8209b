package service

import (
	"context"
	"errors"

	identitydomain "github.com/dj258255/tymee-sub001/internal/identity/domain"
	"github.com/dj258255/tymee-sub001/internal/security"
)

// ErrDevLoginDisabled is returned when the development login path is not enabled for this process.
var ErrDevLoginDisabled = errors.New("dev login is disabled")

// EmailResolver finds or creates a principal by email without verification.
type EmailResolver interface {
	ResolveByEmail(ctx context.Context, email string) (*identitydomain.Identity, error)
}

// DevLoginService logs in by email alone. It exists only when the process was started with
// dev login allowed (see config.Config.DevLoginAllowed); it is never a branch of AuthService.Login.
type DevLoginService struct {
	auth     *AuthService
	resolver EmailResolver
}

// NewDevLoginService returns the dev login path, or ErrDevLoginDisabled when allowed is false.
func NewDevLoginService(allowed bool, auth *AuthService, resolver EmailResolver) (*DevLoginService, error) {
	if !allowed {
		return nil, ErrDevLoginDisabled
	}
	if auth == nil || resolver == nil {
		return nil, errors.New("dev login: auth service and resolver are required")
	}
	return &DevLoginService{auth: auth, resolver: resolver}, nil
}

// DevLogin resolves email to a principal (creating it if needed) and logs it in on deviceID.
// A nil receiver reports ErrDevLoginDisabled.
func (d *DevLoginService) DevLogin(ctx context.Context, email, deviceID string) (*security.TokenPair, error) {
	if d == nil {
		return nil, ErrDevLoginDisabled
	}
	if _, err := normalizeDeviceID(deviceID); err != nil {
		return nil, err
	}
	identity, err := d.resolver.ResolveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	d.auth.logger.WarnContext(ctx, "auth: dev login used", "user_id", identity.UserID, "device_id", deviceID)
	return d.auth.Login(ctx, identity, deviceID)
}
