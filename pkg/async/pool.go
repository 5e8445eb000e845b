package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/partnerauth/pkg/observability"
)

var (
	// ErrClosed is returned by Submit after Shutdown started
	ErrClosed = errors.New("async: pool closed")
	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("async: queue full")
)

const meterName = "github.com/platinummonkey/partnerauth/pkg/async"

// Task is one unit of background work
type Task func(ctx context.Context) error

// Config sizes a Pool. Zero values pick the defaults.
type Config struct {
	Name        string
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "async"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 64
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Second
	}
	return c
}

// Pool is a fixed set of workers on a bounded queue
type Pool struct {
	cfg    Config
	logger *observability.Logger

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	rejected atomic.Int64
	failed   atomic.Int64

	rejectedCounter metric.Int64Counter
	attrs           metric.MeasurementOption
}

// NewPool starts cfg.Workers workers
func NewPool(cfg Config, logger *observability.Logger) *Pool {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		logger: logger.WithField("pool", cfg.Name),
		tasks:  make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		attrs:  metric.WithAttributes(attribute.String("pool", cfg.Name)),
	}

	counter, err := otel.Meter(meterName).Int64Counter("partnerauth.async.rejected_tasks",
		metric.WithDescription("Tasks rejected because the pool queue was full or closed"))
	if err != nil {
		p.logger.WithError(err).Warn("Failed to create rejected task counter")
	}
	p.rejectedCounter = counter

	var g errgroup.Group
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			for task := range p.tasks {
				p.run(task)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(p.done)
	}()

	return p
}

// Submit queues task without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.reject()
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		p.reject()
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued tasks to finish. When ctx ends
// first, in-flight tasks are cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("pool %s shutdown: %w", p.cfg.Name, ctx.Err())
	}
}

// Rejected counts tasks refused by Submit
func (p *Pool) Rejected() int64 {
	return p.rejected.Load()
}

// Failed counts tasks that returned an error or panicked
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

func (p *Pool) reject() {
	p.rejected.Add(1)
	if p.rejectedCounter != nil {
		p.rejectedCounter.Add(context.Background(), 1, p.attrs)
	}
}

func (p *Pool) run(task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if err := observability.PanicError(recover()); err != nil {
			p.failed.Add(1)
			p.logger.WithError(err).
				WithField("stack", string(debug.Stack())).
				Error("PANIC recovered in background task")
		}
	}()

	if err := task(ctx); err != nil {
		p.failed.Add(1)
		p.logger.WithError(err).Warn("Background task failed")
	}
}
