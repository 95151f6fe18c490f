// Package worker runs detached background tasks on a bounded ants pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolClosed is returned by Dispatch after Shutdown has been called
var ErrPoolClosed = errors.New("worker pool closed")

// Task is a unit of background work. The context it receives is not tied to
// any request.
type Task func(ctx context.Context)

// Pool dispatches tasks without making the caller wait for a free worker
type Pool struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// Option configures a Pool
type Option func(*poolConfig)

type poolConfig struct {
	size   int
	logger *slog.Logger
}

// WithSize sets the number of concurrently running tasks.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithSize(size int) Option {
	return func(c *poolConfig) {
		c.size = size
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *poolConfig) {
		c.logger = logger
	}
}

// NewPool creates a new worker pool
func NewPool(opts ...Option) (*Pool, error) {
	cfg := &poolConfig{size: runtime.NumCPU()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.size < 1 {
		cfg.size = 1
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	p := &Pool{logger: cfg.logger}

	pool, err := ants.NewPool(cfg.size, ants.WithPanicHandler(func(v any) {
		p.logger.Error("background task panicked", "panic", fmt.Sprint(v))
	}))
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Dispatch schedules task and returns immediately. When every worker is busy
// the task waits for a slot in its own goroutine, never in the caller's.
func (p *Pool) Dispatch(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		run := func() {
			defer p.wg.Done()
			task(context.Background())
		}
		if err := p.pool.Submit(run); err != nil {
			p.wg.Done()
			p.logger.Error("failed to submit background task", "error", err)
		}
	}()

	return nil
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Wait blocks until every dispatched task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting tasks and waits for in-flight ones until ctx is done
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.pool.Release()
		return nil
	case <-ctx.Done():
		p.pool.Release()
		return ctx.Err()
	}
}
