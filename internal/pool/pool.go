package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/queueworks/taskgate/internal/downstream"
	"github.com/queueworks/taskgate/internal/infrastructure/logging"
	"github.com/queueworks/taskgate/internal/infrastructure/monitoring"
	"github.com/queueworks/taskgate/internal/infrastructure/resilience"
	"github.com/queueworks/taskgate/internal/result"
	"github.com/queueworks/taskgate/internal/shared/id"
)

var (
	// ErrQueueFull rejects a submission that did not acquire queue space
	// within its admission mode. Callers may retry later.
	ErrQueueFull = errors.New("queue full")

	// ErrRetriesExhausted marks a task that failed on every attempt
	ErrRetriesExhausted = errors.New("max retries exhausted")

	// ErrStopped rejects submissions to a pool that is shutting down
	ErrStopped = errors.New("worker pool is stopped")
)

// AdmissionMode selects how Submit waits for queue space
type AdmissionMode int

const (
	// AdmitNonBlocking returns immediately when the queue is full
	AdmitNonBlocking AdmissionMode = iota
	// AdmitTimed blocks up to the configured admission timeout
	AdmitTimed
)

// Config tunes the worker pool
type Config struct {
	Workers          int
	QueueCapacity    int
	Retry            RetryPolicy
	AdmissionTimeout time.Duration
}

// DefaultConfig returns the demo-friendly pool configuration
func DefaultConfig() Config {
	return Config{
		Workers:          3,
		QueueCapacity:    10,
		Retry:            DefaultRetryPolicy(),
		AdmissionTimeout: 100 * time.Millisecond,
	}
}

// Pool drains one bounded queue with a fixed set of workers. All state owned
// by the pool is explicit: queue, downstream guard, result store and metrics
// are passed in at construction, so multiple independently-configured pools
// can coexist in one process.
type Pool struct {
	cfg     Config
	queue   *Queue
	client  *downstream.Guard
	results result.Store
	metrics *monitoring.Metrics
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool
	active  atomic.Int64
}

// New creates a pool. Call Start to spawn the workers.
func New(cfg Config, client *downstream.Guard, results result.Store, metrics *monitoring.Metrics, logger *logging.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Retry.MaxAttempts() < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg,
		queue:   NewQueue(cfg.QueueCapacity),
		client:  client,
		results: results,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start spawns the worker goroutines. Starting twice is a no-op.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_capacity", p.queue.Capacity()),
	)
}

// Stop signals the workers to finish their current task and exit, then waits
// for them, bounded by ctx. Pending queued tasks are abandoned in queued
// state; they are never marked done.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", zap.Int("abandoned", p.queue.Depth()))
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out",
			zap.Int64("in_flight", p.active.Load()),
		)
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}

// Submit is the admission gate. It fails fast with resilience.ErrCircuitOpen
// while the breaker is open, rejects with ErrQueueFull when no queue space is
// acquired within the admission mode, and otherwise returns the accepted
// task's id. Completion is decoupled: outcomes surface only via the result
// store.
func (p *Pool) Submit(ctx context.Context, payload []byte, mode AdmissionMode) (id.TaskID, error) {
	p.metrics.JobsReceived.Inc()

	if p.stopped.Load() {
		return "", ErrStopped
	}

	// Short-circuit before touching the queue; without this the rejection
	// would surface only after the task reached a worker.
	if p.client.Breaker().State() == resilience.StateOpen {
		p.metrics.IncRejected(monitoring.ReasonCircuitOpen)
		return "", resilience.ErrCircuitOpen
	}

	task := NewTask(payload)
	if err := p.results.Create(ctx, task.ID.String()); err != nil {
		return "", fmt.Errorf("failed to register task: %w", err)
	}

	var accepted bool
	switch mode {
	case AdmitTimed:
		accepted = p.queue.EnqueueTimeout(task, p.cfg.AdmissionTimeout)
	default:
		accepted = p.queue.TryEnqueue(task)
	}

	if !accepted {
		_ = p.results.Delete(ctx, task.ID.String())
		p.metrics.IncRejected(monitoring.ReasonQueueFull)
		p.logger.Debug("submission rejected, queue full", zap.String("task_id", task.ID.String()))
		return "", ErrQueueFull
	}

	p.metrics.SetQueueDepth(p.queue.Depth())
	return task.ID, nil
}

// Started reports whether the workers have been spawned
func (p *Pool) Started() bool {
	return p.started.Load() && !p.stopped.Load()
}

// QueueDepth returns the current number of queued tasks
func (p *Pool) QueueDepth() int {
	return p.queue.Depth()
}

// QueueCapacity returns the maximum number of queued tasks
func (p *Pool) QueueCapacity() int {
	return p.queue.Capacity()
}

// ActiveWorkers returns the number of workers currently processing a task
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

// BreakerState returns the downstream circuit breaker state
func (p *Pool) BreakerState() resilience.State {
	return p.client.Breaker().State()
}

func (p *Pool) worker(idx int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", idx))
	log.Debug("worker started")

	for {
		task, ok := p.queue.Dequeue(p.ctx)
		if !ok {
			log.Debug("worker exiting")
			return
		}
		p.metrics.SetQueueDepth(p.queue.Depth())

		p.metrics.SetActiveWorkers(int(p.active.Add(1)))
		p.process(task, log)
		p.metrics.SetActiveWorkers(int(p.active.Add(-1)))
	}
}

// process runs one task to a terminal state: done, failed after exhausting
// retries, or failed immediately on a circuit-open rejection. Backoff sleeps
// are local to this worker's task and are cut short by pool shutdown.
func (p *Pool) process(task Task, log *zap.Logger) {
	ctx := context.Background()
	taskID := task.ID.String()

	if err := p.results.MarkProcessing(ctx, taskID); err != nil {
		log.Warn("failed to mark task processing", zap.String("task_id", taskID), zap.Error(err))
	}

	maxAttempts := p.cfg.Retry.MaxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task.Attempt = attempt

		timer := monitoring.NewTimer(p.metrics)
		out, err := p.client.Call(ctx, task.Payload)
		if err == nil {
			timer.Stop("success")
			if err := p.results.MarkDone(ctx, taskID, out, attempt); err != nil {
				log.Warn("failed to record result", zap.String("task_id", taskID), zap.Error(err))
			}
			p.metrics.JobsProcessed.Inc()
			log.Debug("task done", zap.String("task_id", taskID), zap.Int("attempts", attempt))
			return
		}

		if errors.Is(err, resilience.ErrCircuitOpen) {
			// Fail fast: not a downstream attempt, no retries, no backoff
			timer.Stop("rejected")
			p.failTask(ctx, taskID, err.Error(), attempt-1, log)
			log.Warn("task rejected, circuit open", zap.String("task_id", taskID))
			return
		}

		timer.Stop("error")
		lastErr = err
		p.metrics.DownstreamErrors.Inc()
		log.Debug("task attempt failed",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == maxAttempts {
			break
		}

		if !p.sleepBackoff(attempt) {
			p.failTask(ctx, taskID, fmt.Sprintf("aborted by shutdown after attempt %d: %v", attempt, lastErr), attempt, log)
			return
		}
	}

	terminal := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, maxAttempts, lastErr)
	p.failTask(ctx, taskID, terminal.Error(), maxAttempts, log)
	log.Info("task failed", zap.String("task_id", taskID), zap.Int("attempts", maxAttempts), zap.Error(lastErr))
}

func (p *Pool) failTask(ctx context.Context, taskID, msg string, attempts int, log *zap.Logger) {
	if err := p.results.MarkFailed(ctx, taskID, msg, attempts); err != nil {
		log.Warn("failed to record failure", zap.String("task_id", taskID), zap.Error(err))
	}
	p.metrics.JobsFailed.Inc()
}

// sleepBackoff waits out the retry delay for the given attempt. Returns false
// when the pool shut down before the delay elapsed.
func (p *Pool) sleepBackoff(attempt int) bool {
	timer := time.NewTimer(p.cfg.Retry.Backoff(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.ctx.Done():
		return false
	}
}
