package interceptors

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dj258255/tymee-sub001/internal/identity/resolver"
	"github.com/dj258255/tymee-sub001/internal/identity/service"
	"github.com/dj258255/tymee-sub001/internal/security"
	sessionrepo "github.com/dj258255/tymee-sub001/internal/session/repository"
)

// StatusFromError maps auth and session errors to gRPC status errors. Errors that already carry a
// status are returned unchanged; unknown errors become Internal without leaking their text.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	// Checked first: a theft joined with a store failure is still a theft to the client.
	case errors.Is(err, service.ErrTokenTheftDetected):
		return status.Error(codes.PermissionDenied, "refresh token reuse detected; all sessions revoked")
	case errors.Is(err, sessionrepo.ErrSessionStoreUnavailable):
		return status.Error(codes.Unavailable, "session store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, service.ErrRefreshTokenNotFound):
		return status.Error(codes.NotFound, "refresh session not found")
	case errors.Is(err, security.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, security.ErrTokenMalformed),
		errors.Is(err, security.ErrTokenTypeMismatch),
		errors.Is(err, resolver.ErrInvalidProviderToken):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, service.ErrInvalidDeviceID),
		errors.Is(err, service.ErrInvalidIdentity),
		errors.Is(err, resolver.ErrInvalidEmail),
		errors.Is(err, resolver.ErrUnsupportedProvider):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrDevLoginDisabled),
		errors.Is(err, service.ErrResolverNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// ErrorsUnary returns a unary server interceptor that converts handler errors with StatusFromError.
func ErrorsUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, StatusFromError(err)
		}
		return resp, nil
	}
}
