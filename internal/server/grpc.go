package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dj258255/tymee-sub001/internal/server/interceptors"
)

// Health check RPCs; always public and never logged.
const (
	HealthCheckMethod = "/grpc.health.v1.Health/Check"
	HealthListMethod  = "/grpc.health.v1.Health/List"
)

// Deps holds dependencies for the gRPC server.
type Deps struct {
	// Auth validates Bearer access tokens (e.g. *service.AuthService). Required.
	Auth interceptors.AccessVerifier
	// PublicMethods are full method names callable without a token, in addition to the health checks.
	PublicMethods []string
	// Logger is the base request logger; defaults to slog.Default().
	Logger *slog.Logger
	// RateLimit bounds unary requests per client IP; the zero value disables it.
	RateLimit interceptors.RateLimitConfig
	// ServerOptions are appended after the built-in options.
	ServerOptions []grpc.ServerOption
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry, with the interceptor chain
// rate limit -> auth -> logging -> error mapping, and the standard health service registered.
// The returned health server starts NOT_SERVING until a readiness check reports otherwise.
func NewGRPCServer(deps Deps) (*grpc.Server, *health.Server) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	public := map[string]bool{HealthCheckMethod: true, HealthListMethod: true}
	for _, m := range deps.PublicMethods {
		public[m] = true
	}
	quiet := map[string]bool{HealthCheckMethod: true, HealthListMethod: true}

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RateLimitUnary(deps.RateLimit, quiet),
			interceptors.AuthUnary(deps.Auth, public),
			interceptors.LoggingUnary(logger, quiet),
			interceptors.ErrorsUnary(),
		),
	}
	opts = append(opts, deps.ServerOptions...)
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
