package interceptors

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dj258255/tymee-sub001/internal/logging"
)

// LoggingUnary returns a unary server interceptor that puts a request-scoped logger in the context
// and logs each completed RPC. Must run after AuthUnary to include user_id. skipMethods are not logged.
func LoggingUnary(logger *slog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		l := logger.With("method", info.FullMethod, "client_ip", ClientIP(ctx))
		if uid, ok := GetUserID(ctx); ok {
			l = l.With("user_id", uid)
		}
		ctx = logging.WithContext(ctx, l)

		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK, codes.NotFound, codes.InvalidArgument, codes.Unauthenticated, codes.FailedPrecondition:
		case codes.PermissionDenied:
			level = slog.LevelWarn
		default:
			level = slog.LevelError
		}
		l.Log(ctx, level, "grpc request", "code", code.String(), "duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}

// ClientIP returns the client IP from x-forwarded-for / x-real-ip metadata, or the peer address.
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
