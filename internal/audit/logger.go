// Package audit persists security events as audit log entries.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dj258255/tymee-sub001/internal/audit/domain"
	auditrepo "github.com/dj258255/tymee-sub001/internal/audit/repository"
	telemetrydomain "github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

// ErrInvalidEvent is returned for events that cannot be stored (no id, type or user).
var ErrInvalidEvent = errors.New("audit: invalid security event")

// IDGenerator issues audit log row ids.
type IDGenerator interface {
	NextID() (int64, error)
}

// Recorder writes security events to the audit repository. It satisfies telemetry.EventEmitter,
// so it can be attached to the auth service directly or fed from the event stream by the worker.
type Recorder struct {
	repo   auditrepo.Repository
	ids    IDGenerator
	logger *slog.Logger
}

// NewRecorder returns a Recorder that persists to repo with ids from ids.
func NewRecorder(repo auditrepo.Repository, ids IDGenerator, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, ids: ids, logger: logger}
}

// Emit implements telemetry.EventEmitter.
func (r *Recorder) Emit(ctx context.Context, event *telemetrydomain.SecurityEvent) error {
	return r.Record(ctx, event)
}

// Record stores one event. Redelivered events (same event id) are skipped without error.
func (r *Recorder) Record(ctx context.Context, event *telemetrydomain.SecurityEvent) error {
	if event == nil || event.ID == "" || event.Type == "" || event.UserID <= 0 {
		return ErrInvalidEvent
	}
	id, err := r.ids.NextID()
	if err != nil {
		return fmt.Errorf("audit: next id: %w", err)
	}
	entry := &domain.AuditLog{
		ID:        id,
		EventID:   event.ID,
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		Action:    string(event.Type),
		Source:    event.Source,
		Metadata:  string(event.MetadataJSON()),
		CreatedAt: event.CreatedAt.UTC(),
	}
	inserted, err := r.repo.Create(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		r.logger.DebugContext(ctx, "audit: duplicate event skipped", "event_id", event.ID)
	}
	return nil
}

// RecordJSON decodes a SecurityEvent from payload (as published on the event stream) and records it.
func (r *Recorder) RecordJSON(ctx context.Context, payload []byte) error {
	var event telemetrydomain.SecurityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return r.Record(ctx, &event)
}
