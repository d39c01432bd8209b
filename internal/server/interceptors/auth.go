package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dj258255/tymee-sub001/internal/security"
)

const bearerPrefix = "bearer "

// AccessVerifier validates an access token, e.g. *service.AuthService.
type AccessVerifier interface {
	Authenticate(ctx context.Context, accessToken string) (*security.Claims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets user_id, email, role in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. login, refresh, health checks). On public methods a valid token still populates the context.
func AuthUnary(verifier AccessVerifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := verifier.Authenticate(ctx, token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, StatusFromError(err)
		}

		ctx = WithIdentity(ctx, claims.SubjectID, claims.Email, claims.Role)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
