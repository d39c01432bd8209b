// Package health reports readiness of the session store and database through the standard gRPC health service.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency that can be probed, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function (e.g. RedisStore.Ping) to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Checker probes named dependencies. Nil pingers are skipped.
type Checker struct {
	pingers map[string]Pinger
}

// NewChecker returns a Checker over pingers keyed by dependency name.
func NewChecker(pingers map[string]Pinger) *Checker {
	p := make(map[string]Pinger, len(pingers))
	for name, pinger := range pingers {
		if pinger != nil {
			p[name] = pinger
		}
	}
	return &Checker{pingers: p}
}

// Check pings every dependency and returns the first failure in name order.
func (c *Checker) Check(ctx context.Context) error {
	names := make([]string, 0, len(c.pingers))
	for name := range c.pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.pingers[name].PingContext(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("health: %s: %w", name, err)
		}
	}
	return nil
}

// Update runs one check and sets the overall ("") and named service statuses on hs.
func (c *Checker) Update(ctx context.Context, hs *health.Server, services ...string) error {
	err := c.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	for _, svc := range services {
		hs.SetServingStatus(svc, st)
	}
	return err
}

// Watch calls Update every interval until ctx is done. Status transitions are logged.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration, services ...string) {
	var healthy = true
	tick := func() {
		err := c.Update(ctx, hs, services...)
		switch {
		case err != nil && healthy:
			slog.WarnContext(ctx, "health: not serving", "error", err)
		case err == nil && !healthy:
			slog.InfoContext(ctx, "health: serving again")
		}
		healthy = err == nil
	}
	tick()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}
