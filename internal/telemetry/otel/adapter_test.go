package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), domain.NewSecurityEvent(domain.EventLogin, 1, "d")); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), domain.NewSecurityEvent(domain.EventLogout, 1, "d")); err != nil {
		t.Errorf("Emit(ctx, event): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func attributes(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	event := domain.NewSecurityEvent(domain.EventLogoutAll, 42, "dev1")
	event.Metadata = map[string]string{"devices": "3"}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec

	if got := rec.Body().AsBytes(); string(got) != `{"devices":"3"}` {
		t.Errorf("body = %q", got)
	}
	attrs := attributes(rec)
	want := map[string]string{
		"event_id": event.ID, "user_id": "42", "device_id": "dev1",
		"event_type": "logout_all", "source": "auth",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want INFO", rec.Severity())
	}
	if !rec.Timestamp().Equal(event.CreatedAt) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), event.CreatedAt)
	}
}

func TestEmit_TheftIsWarn(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	if err := em.Emit(context.Background(), domain.NewSecurityEvent(domain.EventTokenTheftDetected, 1, "d")); err != nil {
		t.Fatal(err)
	}
	if cap.rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want WARN", cap.rec.Severity())
	}
}

func TestEmit_EmptyMetadata_NoBodySet(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	if err := em.Emit(context.Background(), &domain.SecurityEvent{Type: domain.EventLogin}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !cap.rec.Body().Empty() {
		t.Error("body should be empty when metadata is nil")
	}
	attrs := attributes(cap.rec)
	if _, ok := attrs["user_id"]; ok {
		t.Error("zero user id should not be emitted")
	}
	if attrs["event_type"] != "login" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	before := time.Now().UTC().Add(-time.Second)
	if err := em.Emit(context.Background(), &domain.SecurityEvent{Type: domain.EventRefresh}); err != nil {
		t.Fatal(err)
	}
	if cap.rec.Timestamp().Before(before) {
		t.Errorf("timestamp %v not set to now", cap.rec.Timestamp())
	}
}
