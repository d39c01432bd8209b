package audit

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader used by Consume.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

const (
	minRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff = 10 * time.Second
	recordTimeout   = 10 * time.Second
)

// Consume reads security events from r and records them until ctx is done.
// A message is committed only after it is stored, so delivery is at least once; duplicates are
// absorbed by the event id. Undecodable messages are logged and committed. Storage failures are
// retried with backoff on the same message.
func (rec *Recorder) Consume(ctx context.Context, r MessageReader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			rec.logger.WarnContext(ctx, "audit: kafka fetch failed", "error", err)
			if !sleep(ctx, minRetryBackoff) {
				return nil
			}
			continue
		}
		if !rec.recordWithRetry(ctx, msg) {
			return nil
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			rec.logger.WarnContext(ctx, "audit: kafka commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// recordWithRetry returns false only when ctx ends before the message is handled.
func (rec *Recorder) recordWithRetry(ctx context.Context, msg kafka.Message) bool {
	backoff := minRetryBackoff
	for {
		rctx, cancel := context.WithTimeout(ctx, recordTimeout)
		err := rec.RecordJSON(rctx, msg.Value)
		cancel()
		switch {
		case err == nil:
			return true
		case errors.Is(err, ErrInvalidEvent):
			rec.logger.ErrorContext(ctx, "audit: dropping invalid event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return true
		}
		rec.logger.WarnContext(ctx, "audit: record failed; retrying", "offset", msg.Offset, "backoff", backoff, "error", err)
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
