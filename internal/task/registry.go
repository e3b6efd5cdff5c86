// Package task runs detached background work on a bounded worker pool.
//
// The query pipeline hands off summary updates and history writes after
// the response has streamed; those jobs must never block request
// handling, so the pool rejects work instead of queueing when all
// workers are busy.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultWorkers bounds concurrent background tasks when no explicit
// worker count is configured.
const DefaultWorkers = 32

// Registry submits named background tasks to a fixed-size worker pool.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	pool   *ants.Pool
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry with the given number of workers.
func NewRegistry(workers int, logger *slog.Logger) (*Registry, error) {
	if workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", workers)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			logger.Error("background task panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Registry{pool: pool, logger: logger}, nil
}

// Submit schedules fn to run on the pool. When the pool is saturated or
// already closed, fn is dropped with a warning and Submit returns false.
// A panic inside fn is contained to its worker.
func (r *Registry) Submit(name string, fn func()) bool {
	r.wg.Add(1)
	err := r.pool.Submit(func() {
		defer r.wg.Done()
		start := time.Now()
		fn()
		r.logger.Debug("background task finished", "task", name, "duration", time.Since(start))
	})
	if err != nil {
		r.wg.Done()
		r.logger.Warn("dropping background task", "task", name, "error", err)
		return false
	}
	return true
}

// Running reports the number of tasks currently executing.
func (r *Registry) Running() int {
	return r.pool.Running()
}

// Close waits for in-flight tasks and releases the pool. When ctx expires
// first, the pool is released anyway and the remaining tasks are
// abandoned.
func (r *Registry) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.pool.Release()
		return nil
	case <-ctx.Done():
		r.pool.Release()
		return fmt.Errorf("draining background tasks: %w", ctx.Err())
	}
}
