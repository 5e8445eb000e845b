// Package async runs background work off the request path.
//
// A Pool owns a fixed set of workers reading from a bounded queue. Submit
// never blocks: when the queue is full the task is rejected with
// ErrQueueFull and counted, so a slow sink (for example the audit table)
// cannot stall an OAuth callback. Every task runs under its own timeout and
// a panicking task is logged without killing its worker.
//
//	pool := async.NewPool(async.Config{Name: "audit", Workers: 2, QueueSize: 256}, logger)
//	defer pool.Shutdown(ctx)
//
//	err := pool.Submit(func(ctx context.Context) error {
//	    return store.Write(ctx, event)
//	})
package async
