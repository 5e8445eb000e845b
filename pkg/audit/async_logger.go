package audit

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/async"
)

const asyncCloseTimeout = 10 * time.Second

// AsyncLogger hands events to next on a worker pool so the auth flow does
// not wait on audit storage. Log fails with async.ErrQueueFull when the pool
// is saturated; the event is then lost.
type AsyncLogger struct {
	next Logger
	pool *async.Pool
}

// NewAsyncLogger wraps next. The logger owns pool and shuts it down on Close.
func NewAsyncLogger(next Logger, pool *async.Pool) *AsyncLogger {
	return &AsyncLogger{next: next, pool: pool}
}

// Log queues a copy of the event; sinks that fill in ID write to the copy
func (l *AsyncLogger) Log(_ context.Context, event *AuthEvent) error {
	queued := *event
	return l.pool.Submit(func(ctx context.Context) error {
		return l.next.Log(ctx, &queued)
	})
}

// Close drains queued events and then closes next
func (l *AsyncLogger) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), asyncCloseTimeout)
	defer cancel()
	return errors.Join(l.pool.Shutdown(ctx), l.next.Close())
}
