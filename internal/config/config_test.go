package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 0 {
		t.Errorf("Redis = %q/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.JWTIssuer != "tymee" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "tymee")
	}
	if cfg.AccessTTL() != 30*time.Minute || cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("TTLs = %v/%v", cfg.AccessTTL(), cfg.RefreshTTL())
	}
	if cfg.StoreTimeout() != 2*time.Second {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout())
	}
	if cfg.MachineID != DeriveMachineID {
		t.Errorf("MachineID = %d, want %d", cfg.MachineID, DeriveMachineID)
	}
	if cfg.DevLoginEnabled || cfg.DevLoginAllowed() {
		t.Error("dev login should default to off")
	}
	if cfg.SecurityEventsTopic != "tymee-security-events" || cfg.KafkaGroupID != "tymee-audit-worker" {
		t.Errorf("kafka = %q/%q", cfg.SecurityEventsTopic, cfg.KafkaGroupID)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.KafkaBrokersList() != nil {
		t.Error("no brokers configured")
	}
	if cfg.RateLimitPerMinute != 120 || cfg.RateLimitBurst != 30 {
		t.Errorf("rate limit = %d/%d", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
}

func TestLoad_NegativeRateLimit(t *testing.T) {
	os.Clearenv()
	os.Setenv("RATE_LIMIT_BURST", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject a negative rate limit")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("REDIS_ADDR", "redis:6380")
	os.Setenv("REDIS_DB", "3")
	os.Setenv("MACHINE_ID", "17")
	os.Setenv("SESSION_STORE_TIMEOUT", "750ms")
	os.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" || cfg.JWTIssuer != "custom-issuer" || cfg.JWTSecret != testSecret {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RedisAddr != "redis:6380" || cfg.RedisDB != 3 {
		t.Errorf("Redis = %q/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.MachineID != 17 {
		t.Errorf("MachineID = %d", cfg.MachineID)
	}
	if cfg.StoreTimeout() != 750*time.Millisecond {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout())
	}
	if !cfg.OTelInsecure {
		t.Error("OTelInsecure should be true")
	}
}

func TestLoad_JWTSecretLength(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", "too-short")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should reject a short JWT_SECRET")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_MachineIDRange(t *testing.T) {
	testCases := []struct {
		value string
		err   bool
	}{
		{"0", false},
		{"1023", false},
		{"-1", false},
		{"1024", true},
		{"-2", true},
	}
	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("MACHINE_ID", tc.value)

			_, err := Load()
			if tc.err && err == nil {
				t.Fatal("Load should return error")
			}
			if !tc.err && err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_DevLoginProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEV_LOGIN_ENABLED", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when DEV_LOGIN_ENABLED=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: DEV_LOGIN_ENABLED must not be true when APP_ENV=production" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestLoad_DevLoginDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEV_LOGIN_ENABLED", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DevLoginAllowed() {
		t.Error("DevLoginAllowed should be true in development")
	}
}

func TestDevLoginAllowed(t *testing.T) {
	if (*Config)(nil).DevLoginAllowed() {
		t.Error("nil config must not allow dev login")
	}
	cfg := &Config{DevLoginEnabled: true, Env: "Production"}
	if cfg.DevLoginAllowed() {
		t.Error("production (any case) must not allow dev login")
	}
}

func TestDurations_Fallbacks(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"invalid", "invalid"},
		{"zero", "0"},
		{"negative", "-5m"},
		{"empty", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{JWTAccessTTL: tc.in, JWTRefreshTTL: tc.in, SessionStoreTimeout: tc.in}
			if got := cfg.AccessTTL(); got != 30*time.Minute {
				t.Errorf("AccessTTL = %v", got)
			}
			if got := cfg.RefreshTTL(); got != 168*time.Hour {
				t.Errorf("RefreshTTL = %v", got)
			}
			if got := cfg.StoreTimeout(); got != 2*time.Second {
				t.Errorf("StoreTimeout = %v", got)
			}
		})
	}
}

func TestRefreshTTL_ValidDuration(t *testing.T) {
	cfg := &Config{JWTRefreshTTL: "336h"}
	if got := cfg.RefreshTTL(); got != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v", got)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:9092 , ,b:9092,", []string{"a:9092", "b:9092"}},
	}
	for _, tc := range testCases {
		got := (&Config{KafkaBrokers: tc.in}).KafkaBrokersList()
		if len(tc.want) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("KafkaBrokersList(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
