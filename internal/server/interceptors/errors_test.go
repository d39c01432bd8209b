package interceptors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dj258255/tymee-sub001/internal/identity/resolver"
	"github.com/dj258255/tymee-sub001/internal/identity/service"
	"github.com/dj258255/tymee-sub001/internal/security"
	sessionrepo "github.com/dj258255/tymee-sub001/internal/session/repository"
)

func TestStatusFromError(t *testing.T) {
	storeDown := fmt.Errorf("%w: %w", sessionrepo.ErrSessionStoreUnavailable, errors.New("dial tcp"))
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", service.ErrRefreshTokenNotFound, codes.NotFound},
		{"theft", service.ErrTokenTheftDetected, codes.PermissionDenied},
		{"theft with revoke failure", errors.Join(service.ErrTokenTheftDetected, storeDown), codes.PermissionDenied},
		{"store down", storeDown, codes.Unavailable},
		{"expired", security.ErrTokenExpired, codes.Unauthenticated},
		{"malformed", security.ErrTokenMalformed, codes.Unauthenticated},
		{"type mismatch", security.ErrTokenTypeMismatch, codes.Unauthenticated},
		{"provider token", resolver.ErrInvalidProviderToken, codes.Unauthenticated},
		{"device", service.ErrInvalidDeviceID, codes.InvalidArgument},
		{"email", resolver.ErrInvalidEmail, codes.InvalidArgument},
		{"provider", resolver.ErrUnsupportedProvider, codes.InvalidArgument},
		{"dev login", service.ErrDevLoginDisabled, codes.FailedPrecondition},
		{"no resolver", service.ErrResolverNotConfigured, codes.FailedPrecondition},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"unknown", errors.New("boom"), codes.Internal},
		{"already status", status.Error(codes.Aborted, "x"), codes.Aborted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := status.Code(StatusFromError(tc.err)); got != tc.want {
				t.Errorf("code = %v, want %v", got, tc.want)
			}
		})
	}
	if StatusFromError(nil) != nil {
		t.Error("nil error must stay nil")
	}
}

func TestStatusFromError_HidesInternalText(t *testing.T) {
	st, _ := status.FromError(StatusFromError(errors.New("pq: password authentication failed")))
	if st.Message() != "internal error" {
		t.Errorf("message = %q", st.Message())
	}
}

func TestErrorsUnary(t *testing.T) {
	interceptor := ErrorsUnary()
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/M"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, service.ErrTokenTheftDetected
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v", status.Code(err))
	}

	resp, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("resp = %v, err = %v", resp, err)
	}
}
