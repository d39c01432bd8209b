package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func status(t *testing.T, hs *health.Server, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
	if err != nil {
		t.Fatalf("Check(%q): %v", svc, err)
	}
	return resp.GetStatus()
}

func TestChecker_NoPingers(t *testing.T) {
	if err := NewChecker(map[string]Pinger{"db": nil}).Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestChecker_Failure(t *testing.T) {
	down := errors.New("connection refused")
	c := NewChecker(map[string]Pinger{
		"postgres": &mockPinger{},
		"redis":    PingFunc(func(context.Context) error { return down }),
	})
	err := c.Check(context.Background())
	if !errors.Is(err, down) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "health: redis: connection refused" {
		t.Errorf("err = %q", err.Error())
	}
}

func TestChecker_Update(t *testing.T) {
	hs := health.NewServer()
	p := &mockPinger{}
	c := NewChecker(map[string]Pinger{"redis": p})

	if err := c.Update(context.Background(), hs, "tymee.Auth"); err != nil {
		t.Fatal(err)
	}
	if got := status(t, hs, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v", got)
	}

	p.pingErr = errors.New("down")
	if err := c.Update(context.Background(), hs, "tymee.Auth"); err == nil {
		t.Fatal("expected error")
	}
	if got := status(t, hs, "tymee.Auth"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("service = %v", got)
	}
}

func TestChecker_WatchStopsWithContext(t *testing.T) {
	hs := health.NewServer()
	c := NewChecker(map[string]Pinger{"redis": &mockPinger{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, hs, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	if got := status(t, hs, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v", got)
	}
}
