// Package producer publishes security events to a message stream (Kafka).
package producer

import (
	"context"

	"github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

// Producer emits security events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call through telemetry.EmitAsync.
	Emit(ctx context.Context, event *domain.SecurityEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
