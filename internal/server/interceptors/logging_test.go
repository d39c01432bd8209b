package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dj258255/tymee-sub001/internal/logging"
)

func TestLoggingUnary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	interceptor := LoggingUnary(logger, nil)

	ctx := WithIdentity(context.Background(), 42, "a@b.c", "USER")
	var scoped *slog.Logger
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/tymee.Auth/Refresh"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		scoped = logging.FromContext(ctx)
		return nil, status.Error(codes.PermissionDenied, "theft")
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("err = %v", err)
	}
	if scoped == nil || scoped == slog.Default() {
		t.Error("handler should receive a request-scoped logger")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line: %v (%q)", err, buf.String())
	}
	if entry["level"] != "WARN" || entry["code"] != "PermissionDenied" || entry["method"] != "/tymee.Auth/Refresh" {
		t.Errorf("entry = %v", entry)
	}
	if entry["user_id"] != float64(42) {
		t.Errorf("user_id = %v", entry["user_id"])
	}
}

func TestLoggingUnary_SkipMethods(t *testing.T) {
	var buf bytes.Buffer
	interceptor := LoggingUnary(slog.New(slog.NewTextHandler(&buf, nil)), map[string]bool{"/grpc.health.v1.Health/Check": true})
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, okHandler)
	if buf.Len() != 0 {
		t.Errorf("skipped method logged: %q", buf.String())
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"none", context.Background(), "unknown"},
		{"forwarded", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.5, 10.0.0.1")), "203.0.113.5"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", " 198.51.100.7 ")), "198.51.100.7"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 5555}}), "192.0.2.1"},
	}
	for _, tc := range cases {
		if got := ClientIP(tc.ctx); !strings.EqualFold(got, tc.want) {
			t.Errorf("%s: ClientIP = %q, want %q", tc.name, got, tc.want)
		}
	}
}
