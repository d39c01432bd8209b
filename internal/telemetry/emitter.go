package telemetry

import (
	"context"

	"github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

// EventEmitter emits security events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
}

// MultiEmitter fans an event out to every emitter and returns the first error.
type MultiEmitter []EventEmitter

// Emit calls every non-nil emitter even when an earlier one fails.
func (m MultiEmitter) Emit(ctx context.Context, event *domain.SecurityEvent) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
