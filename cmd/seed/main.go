// seed inserts development users for local testing: go run ./cmd/seed [-token].
// Idempotent: existing users are found, not duplicated. Refuses to run when APP_ENV=production.
// With -token (and DEV_LOGIN_ENABLED=true) it also logs in the first dev user and prints the token pair.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dj258255/tymee-sub001/internal/config"
	"github.com/dj258255/tymee-sub001/internal/db"
	"github.com/dj258255/tymee-sub001/internal/identity/resolver"
	"github.com/dj258255/tymee-sub001/internal/identity/service"
	"github.com/dj258255/tymee-sub001/internal/idgen"
	"github.com/dj258255/tymee-sub001/internal/logging"
	"github.com/dj258255/tymee-sub001/internal/security"
	sessionrepo "github.com/dj258255/tymee-sub001/internal/session/repository"
	userrepo "github.com/dj258255/tymee-sub001/internal/user/repository"
)

var errProduction = errors.New("APP_ENV is production")

var devEmails = []string{"dev@example.com", "member@example.com"}

const seedDeviceID = "seed-cli"

func main() {
	issueToken := flag.Bool("token", false, "log in the first dev user and print a token pair (requires DEV_LOGIN_ENABLED=true)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: "tymee-seed", Env: cfg.Env, Level: cfg.LogLevel, Format: "text", Output: os.Stderr})
	if cfg.IsProduction() {
		fatal(logger, "seed refused", errProduction)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "db", err)
	}
	defer sqlDB.Close()

	ids, err := idgen.FromConfig(cfg.MachineID)
	if err != nil {
		fatal(logger, "idgen", err)
	}
	res := resolver.New(nil, userrepo.NewPostgresRepository(sqlDB), ids)

	for _, email := range devEmails {
		identity, err := res.ResolveByEmail(ctx, email)
		if err != nil {
			fatal(logger, "seed user", err)
		}
		logger.Info("dev user ready", "email", identity.Email, "user_id", identity.UserID)
	}

	if !*issueToken {
		logger.Info("seed completed successfully")
		return
	}

	key, err := security.DeriveSigningKey(cfg.JWTSecret)
	if err != nil {
		fatal(logger, "JWT_SECRET", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()

	auth := service.NewAuthService(
		security.NewTokenCodec(key, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL()),
		sessionrepo.NewRedisStore(rdb),
		service.WithLogger(logger),
		service.WithStoreTimeout(cfg.StoreTimeout()),
	)
	devLogin, err := service.NewDevLoginService(cfg.DevLoginAllowed(), auth, res)
	if err != nil {
		fatal(logger, "dev login", err)
	}
	pair, err := devLogin.DevLogin(ctx, devEmails[0], seedDeviceID)
	if err != nil {
		fatal(logger, "dev login", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pair); err != nil {
		fatal(logger, "encode", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
