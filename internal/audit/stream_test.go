package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dj258255/tymee-sub001/internal/audit/domain"
	telemetrydomain "github.com/dj258255/tymee-sub001/internal/telemetry/domain"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.msgs) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

// flakyRepo fails the first n creates.
type flakyRepo struct {
	mockAuditRepo
	failures int
}

func (f *flakyRepo) Create(ctx context.Context, entry *domain.AuditLog) (bool, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, errors.New("db unavailable")
	}
	f.mu.Unlock()
	return f.mockAuditRepo.Create(ctx, entry)
}

func eventMessage(t *testing.T, offset int64, typ telemetrydomain.EventType) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(telemetrydomain.NewSecurityEvent(typ, 42, "ios"))
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: payload}
}

func runConsume(t *testing.T, rec *Recorder, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Consume(ctx, r) }()
	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("messages were not all committed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Consume: %v", err)
	}
}

func TestRecorder_Consume(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := newTestRecorder(t, repo)
	r := newFakeReader(
		eventMessage(t, 1, telemetrydomain.EventLogin),
		kafka.Message{Offset: 2, Value: []byte("not json")},
		eventMessage(t, 3, telemetrydomain.EventTokenTheftDetected),
	)

	runConsume(t, rec, r)

	if len(repo.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(repo.entries))
	}
	if repo.entries[1].Action != "token_theft_detected" {
		t.Errorf("second action = %q", repo.entries[1].Action)
	}
	if len(r.committed) != 3 {
		t.Errorf("committed = %v, want all three offsets (invalid one skipped)", r.committed)
	}
}

func TestRecorder_ConsumeRetriesStorageFailures(t *testing.T) {
	repo := &flakyRepo{failures: 2}
	ids := newTestRecorder(t, &mockAuditRepo{}).ids
	rec := NewRecorder(repo, ids, nil)
	r := newFakeReader(eventMessage(t, 7, telemetrydomain.EventLogout))

	runConsume(t, rec, r)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1 after retries", len(repo.entries))
	}
	if len(r.committed) != 1 || r.committed[0] != 7 {
		t.Errorf("committed = %v", r.committed)
	}
}

func TestRecorder_ConsumeStopsOnCancel(t *testing.T) {
	rec := NewRecorder(&flakyRepo{failures: 1 << 30}, newTestRecorder(t, &mockAuditRepo{}).ids, nil)
	r := newFakeReader(eventMessage(t, 1, telemetrydomain.EventLogin))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := rec.Consume(ctx, r); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(r.committed) != 0 {
		t.Errorf("unstored message was committed: %v", r.committed)
	}
}
