package queue

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gigboard/dispatch/errors"
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often to check for new jobs
	StalledAfter time.Duration `json:"stalled_after"` // Active jobs older than this are requeued
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 1 * time.Second,
		StalledAfter: 5 * time.Minute,
	}
}

// WorkerPool manages a pool of workers that execute queued jobs through
// registered handlers. It owns the stalled-job detector.
type WorkerPool struct {
	queue     *Queue
	registry  *HandlerRegistry
	config    WorkerPoolConfig
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	mu        sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Callers must register handlers before calling Start().
func NewWorkerPool(ctx context.Context, queue *Queue, cfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:     queue,
		registry:  NewHandlerRegistry(),
		config:    cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    logger.Named("workers"),
	}
}

// Registry returns the handler registry for registering job handlers.
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Queue returns the underlying job queue.
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Start begins processing jobs with the worker pool.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// Recreate context if Stop() was called previously
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Debugw("Recreated worker context after previous shutdown")
	default:
	}
	wp.mu.Unlock()

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.wg.Add(1)
	go wp.stalledDetector()

	wp.logger.Infow("Worker pool started",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval,
	)
}

// Stop gracefully stops the worker pool, waiting up to 30 seconds for
// in-flight jobs to finish.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped - all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Warnw("Worker pool stop timeout - workers may still be running", "timeout", timeout)
	}
}

// worker polls the queue for runnable jobs.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					// Shutdown - exit silently
					return
				default:
				}
				if stderrors.Is(err, sql.ErrConnDone) {
					// Database closed during shutdown
					return
				}

				errorCount++
				wp.logger.Errorw("Worker error processing job",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount,
				)
				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off after consecutive errors",
						"worker_id", id,
						"backoff", backoff,
					)
					time.Sleep(backoff)
					backoff = min(backoff*2, maxBackoff)
				}
			} else {
				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount,
					)
				}
				errorCount = 0
				backoff = time.Second
			}
		}
	}
}

// processNextJob takes the next runnable job and executes it.
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil // No jobs available
	}

	if err := wp.registry.Execute(wp.ctx, job); err != nil {
		select {
		case <-wp.ctx.Done():
			// Cancelled during execution - requeue rather than fail
			wp.logger.Warnw("Job cancelled during execution, re-queuing", "job_id", job.ID)
			job.Requeue()
			if updateErr := wp.queue.store.UpdateJob(job); updateErr != nil {
				wp.logger.Errorw("Failed to re-queue cancelled job", "job_id", job.ID, "error", updateErr)
			}
			return nil
		default:
			return wp.queue.FailJob(job.ID, err)
		}
	}

	return wp.queue.CompleteJob(job.ID)
}

// stalledDetector periodically returns long-active jobs to the waiting state.
func (wp *WorkerPool) stalledDetector() {
	defer wp.wg.Done()

	if wp.config.StalledAfter <= 0 {
		return
	}

	interval := wp.config.StalledAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			stalled, err := wp.queue.RequeueStalled(wp.config.StalledAfter)
			if err != nil {
				wp.logger.Warnw("Stalled-job check failed", "error", err)
				continue
			}
			for _, job := range stalled {
				wp.logger.Warnw("Requeued stalled job",
					"job_id", job.ID,
					"type", job.Type,
				)
			}
		}
	}
}
