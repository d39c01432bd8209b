// migrate runs DB migrations from embedded SQL: go run ./cmd/migrate -direction up|down.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/dj258255/tymee-sub001/internal/config"
	"github.com/dj258255/tymee-sub001/internal/db/migrate"
	"github.com/dj258255/tymee-sub001/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: "tymee-migrate", Env: cfg.Env, Level: cfg.LogLevel, Format: "text", Output: os.Stderr})

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set; create a .env or export DATABASE_URL")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, dir); err != nil {
		logger.Error("migrate", "direction", dir, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "direction", dir)
}
