// Package generate runs the page-image generation pipeline: a worker pool
// drains queued jobs, a coordinator walks each document in sequential
// batches, and a batch processor renders every page at all tiers.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by Submit when the job queue is at capacity.
var ErrQueueFull = errors.New("generation queue is full")

// JobHandler processes one queued job to completion.
type JobHandler func(ctx context.Context, jobID string)

// Pool is a fixed-size worker pool draining a shared job queue. Jobs are
// identified by ID only; all state lives in the store.
type Pool struct {
	queue    chan string
	workers  int
	handler  JobHandler
	logger   *slog.Logger
	inFlight atomic.Int64
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, logger *slog.Logger, handler JobHandler) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		queue:   make(chan string, queueSize),
		workers: workers,
		handler: handler,
		logger:  logger,
	}
}

// Start runs the workers until ctx is canceled, then waits for in-flight
// jobs to finish.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			p.inFlight.Add(1)
			p.logger.Debug("worker picked up job", "worker", id, "job_id", jobID)
			p.handler(ctx, jobID)
			p.inFlight.Add(-1)
		}
	}
}

// Submit enqueues a job ID without blocking.
func (p *Pool) Submit(jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// InFlight returns the number of jobs currently being processed.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Queued returns the number of jobs waiting in the queue.
func (p *Pool) Queued() int {
	return len(p.queue)
}
