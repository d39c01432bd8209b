package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dj258255/tymee-sub001/internal/audit"
	auditrepo "github.com/dj258255/tymee-sub001/internal/audit/repository"
	"github.com/dj258255/tymee-sub001/internal/config"
	"github.com/dj258255/tymee-sub001/internal/db"
	"github.com/dj258255/tymee-sub001/internal/health"
	"github.com/dj258255/tymee-sub001/internal/identity/service"
	"github.com/dj258255/tymee-sub001/internal/idgen"
	"github.com/dj258255/tymee-sub001/internal/logging"
	"github.com/dj258255/tymee-sub001/internal/security"
	"github.com/dj258255/tymee-sub001/internal/server"
	"github.com/dj258255/tymee-sub001/internal/server/interceptors"
	sessionrepo "github.com/dj258255/tymee-sub001/internal/session/repository"
	"github.com/dj258255/tymee-sub001/internal/telemetry"
	telemetryotel "github.com/dj258255/tymee-sub001/internal/telemetry/otel"
	"github.com/dj258255/tymee-sub001/internal/telemetry/producer"
)

const (
	serviceName         = "tymee-auth"
	healthCheckInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: serviceName, Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.OTelInsecure)
	if err != nil {
		fatal(logger, "otel", err)
	}
	providers.SetGlobal()

	key, err := security.DeriveSigningKey(cfg.JWTSecret)
	if err != nil {
		fatal(logger, "JWT_SECRET must be set to at least 32 bytes", err)
	}
	codec := security.NewTokenCodec(key, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	store := sessionrepo.NewRedisStore(rdb)
	if err := store.Ping(ctx); err != nil {
		// Not fatal: requests fail with Unavailable and health reports NOT_SERVING until Redis is back.
		logger.Warn("session store unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	ids, err := idgen.FromConfig(cfg.MachineID)
	if err != nil {
		fatal(logger, "idgen", err)
	}
	logger.Info("id generator ready", "machine_id", ids.MachineID())

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		sqlDB, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "database", err)
		}
		defer sqlDB.Close()
	}

	emitters := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SecurityEventsTopic)
	switch {
	case kafkaProducer != nil:
		// The audit worker persists events from the stream.
		emitters = append(emitters, kafkaProducer)
	case sqlDB != nil:
		emitters = append(emitters, audit.NewRecorder(auditrepo.NewPostgresRepository(sqlDB), ids, logger))
	default:
		logger.Warn("no KAFKA_BROKERS or DATABASE_URL; security events go to OpenTelemetry only")
	}

	authSvc := service.NewAuthService(codec, store,
		service.WithEmitter(emitters),
		service.WithLogger(logger),
		service.WithStoreTimeout(cfg.StoreTimeout()),
	)

	grpcServer, healthServer := server.NewGRPCServer(server.Deps{
		Auth:   authSvc,
		Logger: logger,
		RateLimit: interceptors.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			Window:            time.Minute,
			Burst:             cfg.RateLimitBurst,
		},
	})
	pingers := map[string]health.Pinger{"redis": health.PingFunc(store.Ping)}
	if sqlDB != nil {
		pingers["postgres"] = sqlDB
	}
	go health.NewChecker(pingers).Watch(ctx, healthServer, healthCheckInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal(logger, "listen", err)
	}
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			fatal(logger, "serve", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gRPC server...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	// Let in-flight async security event emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := errors.Join(kafkaProducer.Close(), providers.Shutdown(shutdownCtx)); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	logger.Info("gRPC server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
