package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/metrics"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 4

	// DefaultQueueSize is the number of tasks that can wait before Submit starts dropping
	DefaultQueueSize = 256

	// DefaultTaskTimeout bounds a single task
	DefaultTaskTimeout = 30 * time.Second
)

// Func is a unit of background work.
type Func func(ctx context.Context) error

// Runner launches fire-and-forget work.
type Runner interface {
	Go(name string, fn Func) bool
}

type job struct {
	name string
	fn   Func
}

// Queue is a bounded pool of goroutines for best-effort side effects.
// Submitting never blocks; Shutdown drains what is already queued.
type Queue struct {
	jobs        chan job
	workerCount int
	timeout     time.Duration
	logger      *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Config holds configuration for the queue.
type Config struct {
	WorkerCount int
	QueueSize   int
	TaskTimeout time.Duration
}

// NewQueue creates and starts a queue.
func NewQueue(cfg Config, logger *zap.Logger) *Queue {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	q := &Queue{
		jobs:        make(chan job, cfg.QueueSize),
		workerCount: cfg.WorkerCount,
		timeout:     cfg.TaskTimeout,
		logger:      logger.Named("task_queue"),
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.runWorker(i + 1)
	}
	q.logger.Info("background task queue started",
		zap.Int("workers", q.workerCount), zap.Int("capacity", cfg.QueueSize))
	return q
}

// Go enqueues fn. It returns false when the queue is full or shut down;
// the task is then dropped and logged.
func (q *Queue) Go(name string, fn Func) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("task dropped: queue closed", zap.String("task", name))
		metrics.TasksDropped.Inc()
		return false
	}

	select {
	case q.jobs <- job{name: name, fn: fn}:
		return true
	default:
		q.logger.Warn("task dropped: queue full", zap.String("task", name))
		metrics.TasksDropped.Inc()
		return false
	}
}

// Shutdown stops accepting work and waits for queued tasks until ctx expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("background task queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain task queue: %w", ctx.Err())
	}
}

func (q *Queue) runWorker(workerID int) {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(workerID, j)
	}
}

func (q *Queue) run(workerID int, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked",
				zap.Int("worker", workerID), zap.String("task", j.name), zap.Any("panic", r))
		}
	}()

	if err := j.fn(ctx); err != nil {
		q.logger.Warn("task failed",
			zap.Int("worker", workerID), zap.String("task", j.name),
			zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	q.logger.Debug("task done",
		zap.Int("worker", workerID), zap.String("task", j.name), zap.Duration("duration", time.Since(start)))
}

// Inline runs tasks synchronously on the caller's goroutine. Used by tests and
// by callers that need the side effect to finish before returning.
type Inline struct {
	Logger *zap.Logger
}

// Go runs fn immediately and logs its error.
func (i Inline) Go(name string, fn Func) bool {
	if err := fn(context.Background()); err != nil && i.Logger != nil {
		i.Logger.Warn("task failed", zap.String("task", name), zap.Error(err))
	}
	return true
}
