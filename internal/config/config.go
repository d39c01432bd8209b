// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dj258255/tymee-sub001/internal/idgen"
	"github.com/dj258255/tymee-sub001/internal/security"
)

// DeriveMachineID is the MACHINE_ID value that asks the id generator to derive its id from the host.
const DeriveMachineID = idgen.AutoMachineID

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for users and audit logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr, RedisPassword and RedisDB locate the session store.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// SessionStoreTimeout bounds each session store call (e.g. "2s").
	SessionStoreTimeout string `mapstructure:"SESSION_STORE_TIMEOUT"`

	// JWTSecret is the HS256 signing secret (at least 32 bytes). The server refuses to start without it.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "30m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// MachineID is the 10-bit id generator machine id, or -1 to derive it from network interfaces.
	MachineID int64 `mapstructure:"MACHINE_ID"`
	// DevLoginEnabled turns on email-only login. Must not be true when Env is production.
	DevLoginEnabled bool `mapstructure:"DEV_LOGIN_ENABLED"`

	// RateLimitPerMinute and RateLimitBurst bound unary requests per client IP; 0 disables the limit.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables the event stream.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityEventsTopic is the Kafka topic for security events.
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_STORE_TIMEOUT", "2s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "tymee")
	v.SetDefault("JWT_ACCESS_TTL", "30m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("MACHINE_ID", DeriveMachineID)
	v.SetDefault("DEV_LOGIN_ENABLED", false)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_EVENTS_TOPIC", "tymee-security-events")
	v.SetDefault("KAFKA_GROUP_ID", "tymee-audit-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.DevLoginEnabled && cfg.IsProduction() {
		return nil, errors.New("config: DEV_LOGIN_ENABLED must not be true when APP_ENV=production")
	}
	if cfg.JWTSecret != "" && len(strings.TrimSpace(cfg.JWTSecret)) < security.MinSecretLength {
		return nil, fmt.Errorf("config: JWT_SECRET must be at least %d bytes", security.MinSecretLength)
	}
	if cfg.RateLimitPerMinute < 0 || cfg.RateLimitBurst < 0 {
		return nil, errors.New("config: RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must not be negative")
	}
	if cfg.MachineID != DeriveMachineID && (cfg.MachineID < 0 || cfg.MachineID > idgen.MaxMachineID) {
		return nil, fmt.Errorf("config: MACHINE_ID must be between 0 and %d, or %d to derive", idgen.MaxMachineID, DeriveMachineID)
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// DevLoginAllowed reports whether the dev login path may be constructed. Always false in production.
func (c *Config) DevLoginAllowed() bool {
	return c != nil && c.DevLoginEnabled && !c.IsProduction()
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 30*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// StoreTimeout parses SessionStoreTimeout as a time.Duration. Returns 2s if unset or invalid.
func (c *Config) StoreTimeout() time.Duration {
	return parseDuration(c.SessionStoreTimeout, 2*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the security event stream is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
