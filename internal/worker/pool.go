// Package worker runs background tasks on a fixed set of goroutines fed by
// a bounded queue. A full queue rejects work instead of growing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolSaturated = errors.New("worker pool saturated")
	ErrPoolClosed    = errors.New("worker pool closed")
)

type TaskFunc func(ctx context.Context)

type task struct {
	name string
	run  TaskFunc
}

type Pool struct {
	size    int
	queue   chan task
	logger  logger.ILogger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
}

func NewPool(size, queueDepth int, log logger.ILogger, m *metrics.Metrics) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Pool{
		size:    size,
		queue:   make(chan task, queueDepth),
		logger:  log,
		metrics: m,
	}
}

// Start launches the workers. Tasks receive ctx; cancelling it does not
// stop the workers, Shutdown does.
func (p *Pool) Start(ctx context.Context) {
	g := &errgroup.Group{}
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for t := range p.queue {
				p.metrics.PoolQueueDepth.Set(float64(len(p.queue)))
				p.run(ctx, t)
			}
			return nil
		})
	}
	p.mu.Lock()
	p.group = g
	p.mu.Unlock()
}

func (p *Pool) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker", "Task panicked", map[string]interface{}{
				"task":  t.name,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	t.run(ctx)
}

// Submit enqueues fn without blocking. It returns ErrPoolSaturated when the
// queue is full so the caller can surface the backpressure.
func (p *Pool) Submit(name string, fn TaskFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- task{name: name, run: fn}:
		p.metrics.PoolQueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		p.metrics.PoolRejections.WithLabelValues(name).Inc()
		p.logger.Warn("Worker", "Queue full, rejecting task", map[string]interface{}{
			"task":     name,
			"capacity": cap(p.queue),
		})
		return ErrPoolSaturated
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	g := p.group
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
