package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	identitydomain "github.com/dj258255/tymee-sub001/internal/identity/domain"
	"github.com/dj258255/tymee-sub001/internal/security"
	sessiondomain "github.com/dj258255/tymee-sub001/internal/session/domain"
	sessionrepo "github.com/dj258255/tymee-sub001/internal/session/repository"
	"github.com/dj258255/tymee-sub001/internal/telemetry"
	telemetrydomain "github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

// Sentinel errors for the auth service; the gRPC layer maps them to status codes.
var (
	ErrInvalidDeviceID = errors.New("invalid device id")
	ErrInvalidIdentity = errors.New("identity is incomplete")
	// ErrRefreshTokenNotFound means no live session holds the token: logged out, expired or never issued.
	ErrRefreshTokenNotFound = errors.New("refresh session not found")
	// ErrTokenTheftDetected means a superseded refresh token was replayed; every session of the user was revoked.
	ErrTokenTheftDetected = errors.New("refresh token reuse detected; all sessions revoked")
	// ErrResolverNotConfigured is returned by LoginWithProvider when no identity resolver was supplied.
	ErrResolverNotConfigured = errors.New("identity resolver not configured")
)

const (
	maxDeviceIDLength   = 128
	defaultStoreTimeout = 2 * time.Second
	instrumentationName = "github.com/dj258255/tymee-sub001/internal/identity/service"
)

// IdentityResolver verifies a provider token and returns the matching (possibly new) user identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, provider identitydomain.Provider, token string) (*identitydomain.Identity, error)
}

// AuthService issues, rotates and revokes token pairs backed by one session record per (user, device).
type AuthService struct {
	tokens       *security.TokenCodec
	store        sessionrepo.Store
	resolver     IdentityResolver
	emitter      telemetry.EventEmitter
	logger       *slog.Logger
	storeTimeout time.Duration
	nowF         func() time.Time

	tracer  trace.Tracer
	meterP  metric.MeterProvider
	metrics authMetrics
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithResolver enables LoginWithProvider.
func WithResolver(r IdentityResolver) Option {
	return func(s *AuthService) { s.resolver = r }
}

// WithEmitter sends security events to e (asynchronously, best effort).
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.emitter = e }
}

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStoreTimeout bounds every session store call. Zero or negative keeps the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *AuthService) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *AuthService) { s.meterP = mp }
}

// NewAuthService returns an AuthService over tokens and store.
func NewAuthService(tokens *security.TokenCodec, store sessionrepo.Store, opts ...Option) *AuthService {
	s := &AuthService{
		tokens:       tokens,
		store:        store,
		logger:       slog.Default(),
		storeTimeout: defaultStoreTimeout,
		nowF:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}
	if s.meterP == nil {
		s.meterP = otel.GetMeterProvider()
	}
	s.metrics = newAuthMetrics(s.meterP.Meter(instrumentationName))
	return s
}

// Login issues a token pair for an already verified identity and records it as the device's only session,
// replacing any previous session on that device.
func (s *AuthService) Login(ctx context.Context, identity *identitydomain.Identity, deviceID string) (_ *security.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.logins.Add(ctx, 1, outcomeAttr(err)) }()

	deviceID, err = normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.UserID <= 0 {
		return nil, ErrInvalidIdentity
	}
	span.SetAttributes(attribute.Int64("user.id", identity.UserID), attribute.String("device.id", deviceID))

	pair, err := s.tokens.Issue(identity.UserID, identity.Email, identity.Role)
	if err != nil {
		return nil, err
	}
	rec := &sessiondomain.SessionRecord{
		TokenHash: security.HashRefreshToken(pair.RefreshToken),
		UserID:    identity.UserID,
		DeviceID:  deviceID,
		CreatedAt: s.nowF().UTC(),
		ExpiresAt: pair.RefreshTokenExpiresAt,
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.Save(storeCtx, rec); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "auth: login", "user_id", identity.UserID, "device_id", deviceID)
	s.emit(ctx, telemetrydomain.EventLogin, identity.UserID, deviceID, nil)
	return pair, nil
}

// LoginWithProvider resolves the provider token to an identity and logs it in on deviceID.
func (s *AuthService) LoginWithProvider(ctx context.Context, provider identitydomain.Provider, providerToken, deviceID string) (*security.TokenPair, error) {
	if s.resolver == nil {
		return nil, ErrResolverNotConfigured
	}
	if _, err := normalizeDeviceID(deviceID); err != nil {
		return nil, err
	}
	identity, err := s.resolver.Resolve(ctx, provider, providerToken)
	if err != nil {
		return nil, err
	}
	return s.Login(ctx, identity, deviceID)
}

// Refresh exchanges a live refresh token for a new pair and rotates the device's session to it.
// A cryptographically valid token that is not the one on record for the device is treated as stolen:
// every session of the user is revoked and ErrTokenTheftDetected is returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (_ *security.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.refreshes.Add(ctx, 1, outcomeAttr(err)) }()

	deviceID, err = normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	userID := claims.SubjectID
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("device.id", deviceID))

	getCtx, cancel := s.storeCtx(ctx)
	current, err := s.store.Get(getCtx, userID, deviceID)
	cancel()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrRefreshTokenNotFound
	}
	if !security.RefreshTokenMatches(refreshToken, current.TokenHash) {
		return nil, s.theftDetected(ctx, userID, deviceID)
	}

	pair, err := s.tokens.Issue(userID, claims.Email, claims.Role)
	if err != nil {
		return nil, err
	}
	next := &sessiondomain.SessionRecord{
		TokenHash: security.HashRefreshToken(pair.RefreshToken),
		UserID:    userID,
		DeviceID:  deviceID,
		CreatedAt: s.nowF().UTC(),
		ExpiresAt: pair.RefreshTokenExpiresAt,
	}
	rotCtx, cancel := s.storeCtx(ctx)
	err = s.store.Rotate(rotCtx, current.TokenHash, next)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, sessionrepo.ErrSessionNotFound):
		return nil, ErrRefreshTokenNotFound
	case errors.Is(err, sessionrepo.ErrSessionMismatch):
		// Another request rotated this token between our read and write: the token was used twice.
		return nil, s.theftDetected(ctx, userID, deviceID)
	default:
		return nil, err
	}

	s.logger.DebugContext(ctx, "auth: refresh", "user_id", userID, "device_id", deviceID)
	s.emit(ctx, telemetrydomain.EventRefresh, userID, deviceID, nil)
	return pair, nil
}

// Logout removes the session of one device. Absence is not an error.
func (s *AuthService) Logout(ctx context.Context, userID int64, deviceID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.logouts.Add(ctx, 1, outcomeAttr(err), metric.WithAttributes(attribute.Bool("all", false))) }()

	deviceID, err = normalizeDeviceID(deviceID)
	if err != nil {
		return err
	}
	if userID <= 0 {
		return ErrInvalidIdentity
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.Delete(storeCtx, userID, deviceID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "auth: logout", "user_id", userID, "device_id", deviceID)
	s.emit(ctx, telemetrydomain.EventLogout, userID, deviceID, nil)
	return nil
}

// LogoutAll removes every session of the user. It is a sequential, best-effort delete over the
// device index: a login racing with it on another device may survive, and a repeated call revokes it.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LogoutAll")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.logouts.Add(ctx, 1, outcomeAttr(err), metric.WithAttributes(attribute.Bool("all", true))) }()

	if userID <= 0 {
		return ErrInvalidIdentity
	}
	n, err := s.revokeAll(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "auth: logout all", "user_id", userID, "devices", n)
	s.emit(ctx, telemetrydomain.EventLogoutAll, userID, "", map[string]string{"devices": strconv.Itoa(n)})
	return nil
}

// Authenticate verifies an access token. It does not consult the session store.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*security.Claims, error) {
	return s.tokens.VerifyAccess(accessToken)
}

// ListSessions returns the user's live sessions ordered by device id.
func (s *AuthService) ListSessions(ctx context.Context, userID int64) ([]*sessiondomain.SessionRecord, error) {
	if userID <= 0 {
		return nil, ErrInvalidIdentity
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	devices, err := s.store.ListDevices(storeCtx, userID)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	out := make([]*sessiondomain.SessionRecord, 0, len(devices))
	for _, d := range devices {
		rec, err := s.store.Get(storeCtx, userID, d)
		if err != nil {
			return nil, err
		}
		if rec.IsValid(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// theftDetected revokes every session of the user and returns ErrTokenTheftDetected,
// joined with the store error if revocation did not complete.
func (s *AuthService) theftDetected(ctx context.Context, userID int64, deviceID string) error {
	s.metrics.thefts.Add(ctx, 1)
	n, revokeErr := s.revokeAll(ctx, userID)
	s.logger.WarnContext(ctx, "auth: refresh token reuse detected; revoking all sessions",
		"user_id", userID, "device_id", deviceID, "revoked", n, "revoke_error", revokeErr)
	s.emit(ctx, telemetrydomain.EventTokenTheftDetected, userID, deviceID, map[string]string{"revoked": strconv.Itoa(n)})
	if revokeErr != nil {
		return errors.Join(ErrTokenTheftDetected, revokeErr)
	}
	return ErrTokenTheftDetected
}

// revokeAll deletes each indexed device's session one by one. It keeps going past failures
// so one bad key does not shield the others, and reports how many deletes succeeded.
func (s *AuthService) revokeAll(ctx context.Context, userID int64) (int, error) {
	listCtx, cancel := s.storeCtx(ctx)
	devices, err := s.store.ListDevices(listCtx, userID)
	cancel()
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, d := range devices {
		delCtx, cancel := s.storeCtx(ctx)
		err := s.store.Delete(delCtx, userID, d)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *AuthService) emit(ctx context.Context, typ telemetrydomain.EventType, userID int64, deviceID string, meta map[string]string) {
	if s.emitter == nil {
		return
	}
	ev := telemetrydomain.NewSecurityEvent(typ, userID, deviceID)
	ev.Metadata = meta
	telemetry.EmitAsync(s.emitter, ctx, ev)
}

// normalizeDeviceID trims the id and rejects empty, oversized, or whitespace/control-bearing values.
func normalizeDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || len(deviceID) > maxDeviceIDLength {
		return "", ErrInvalidDeviceID
	}
	for _, r := range deviceID {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidDeviceID
		}
	}
	return deviceID, nil
}

type authMetrics struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
	logouts   metric.Int64Counter
	thefts    metric.Int64Counter
}

func newAuthMetrics(m metric.Meter) authMetrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil || c == nil {
			slog.Warn("auth: metric registration failed", "metric", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}
	return authMetrics{
		logins:    counter("auth.logins", "Login attempts by outcome"),
		refreshes: counter("auth.refreshes", "Refresh attempts by outcome"),
		logouts:   counter("auth.logouts", "Logout calls by outcome"),
		thefts:    counter("auth.token_theft_detected", "Refresh token reuse detections"),
	}
}

func outcomeAttr(err error) metric.AddOption {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenTheftDetected):
		outcome = "theft"
	case errors.Is(err, sessionrepo.ErrSessionStoreUnavailable):
		outcome = "unavailable"
	default:
		outcome = "rejected"
	}
	return metric.WithAttributes(attribute.String("outcome", outcome))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
