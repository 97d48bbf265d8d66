// Package worker runs pipeline jobs from a queue on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/pulse/internal/adapters/mq/queue"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Source defines how workers receive jobs.
type Source interface {
	Dequeue() <-chan queue.Job
}

// Worker processes jobs until its source is closed.
type Worker interface {
	// Run starts the worker loop. It returns once the source is closed and drained.
	Run(ctx context.Context)

	// Shutdown waits for the worker loop to finish.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source Source
	name   string
	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source: source,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. Jobs are drained even after ctx ends so that
// every submitted job reports completion; a cancelled job fails fast.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for job := range w.source.Dequeue() {
		metrics.RecordQueueDequeue()
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Debug(ctx, "job failed",
				logger.String("job_id", job.ID),
				logger.String("stage", job.Stage),
				logger.String("entity_id", job.EntityID),
				logger.Error(err),
			)
		}
	}
}

// Shutdown waits for the worker to finish or ctx to expire.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob runs one job, converting a panic into an error so the stage
// barrier always hears back.
func (w *InMemoryWorker) processJob(ctx context.Context, job queue.Job) (err error) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			w.logger.Error(ctx, "job panicked", logger.String("job_id", job.ID), logger.Any("panic", r))
		}
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", job.Stage)
		}
		if job.Done != nil {
			job.Done(err)
		}
	}()

	if job.Run == nil {
		return fmt.Errorf("job %s has no work", job.ID)
	}
	return job.Run(ctx)
}

// Closer is implemented by sources that can stop accepting work.
type Closer interface {
	Close() error
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count scales with NumCPU.
func NewPool(workerCount int, source Source) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(source, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the source, then waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, worker := range p.workers {
		if err := worker.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
