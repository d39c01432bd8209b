// Worker consumes security events from Kafka and writes them to the audit log in Postgres.
// Set KAFKA_BROKERS, SECURITY_EVENTS_TOPIC, KAFKA_GROUP_ID, and DATABASE_URL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dj258255/tymee-sub001/internal/audit"
	auditrepo "github.com/dj258255/tymee-sub001/internal/audit/repository"
	"github.com/dj258255/tymee-sub001/internal/config"
	"github.com/dj258255/tymee-sub001/internal/db"
	"github.com/dj258255/tymee-sub001/internal/idgen"
	"github.com/dj258255/tymee-sub001/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: "tymee-audit-worker", Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Error("worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("worker: database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	ids, err := idgen.FromConfig(cfg.MachineID)
	if err != nil {
		logger.Error("worker: idgen", "error", err)
		os.Exit(1)
	}
	recorder := audit.NewRecorder(auditrepo.NewPostgresRepository(sqlDB), ids, logger)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.SecurityEventsTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	logger.Info("worker: consuming", "topic", cfg.SecurityEventsTopic, "group", cfg.KafkaGroupID, "machine_id", ids.MachineID())
	if err := recorder.Consume(ctx, reader); err != nil {
		logger.Error("worker: consume", "error", err)
		os.Exit(1)
	}
	logger.Info("worker: stopped")
}
