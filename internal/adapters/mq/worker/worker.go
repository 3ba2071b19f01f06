// Package worker executes subject tasks on sharded single-goroutine workers.
// Tasks for one subject always land on the same shard, so they run in the
// order they were submitted while different subjects proceed in parallel.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/guardline/internal/adapters/mq/queue"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultQueueCapacity    = 1024
	poolShutdownTimeout     = 30 * time.Second
)

// Task abstracts what workers read off the queue.
type Task = model.Task

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// ErrorReporter surfaces a failed task to whoever submitted it.
type ErrorReporter interface {
	ReportTaskError(ctx context.Context, t Task, err error)
}

// Worker processes tasks from a single queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing tasks.
type InMemoryWorker struct {
	queue    Queue
	reporter ErrorReporter
	name     string
	active   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. Once ctx is done every task still queued is
// failed with ErrStopped until the queue closes or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			w.reject(ctx, tasks)
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				w.fail(ctx, t, ErrStopped)
				continue
			}
			w.process(ctx, t)
		}
	}
}

func (w *InMemoryWorker) reject(ctx context.Context, tasks <-chan Task) {
	for {
		select {
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.fail(ctx, t, ErrStopped)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one task. Failures and panics stop at this boundary: they are
// counted, logged and reported to the originating connection only.
func (w *InMemoryWorker) process(ctx context.Context, t Task) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := execute(ctx, t); err != nil {
		w.fail(ctx, t, err)
	} else if t.Done != nil {
		t.Done <- nil
	}
}

// fail delivers err to the task's waiter and reports it.
func (w *InMemoryWorker) fail(ctx context.Context, t Task, err error) {
	if t.Done != nil {
		t.Done <- err
	}

	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", string(t.Kind))
	w.logger.Error(ctx, "task failed",
		logger.String("task", t.ID),
		logger.String("kind", string(t.Kind)),
		logger.String("subject", t.SubjectID),
		logger.Error(err),
	)
	if w.reporter != nil {
		w.reporter.ReportTaskError(ctx, t, err)
	}
}

func execute(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return t.Exec(ctx)
}

// Pool routes tasks to shards by subject.
type Pool struct {
	workers  []*InMemoryWorker
	queues   []*queue.InMemoryQueue
	capacity int
	reporter ErrorReporter
	active   atomic.Int64
	logger   logger.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a pool of workerCount shards, each with its own queue. A
// non-positive count defaults to a multiple of the CPU count.
func NewPool(workerCount int, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queues:   make([]*queue.InMemoryQueue, workerCount),
		capacity: defaultQueueCapacity,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workerCount; i++ {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(p.capacity))
		w := NewInMemoryWorker(p.queues[i],
			WithName("worker-"+strconv.Itoa(i)),
			WithReporter(p.reporter),
			WithLogger(p.logger),
		)
		w.active = &p.active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return p
}

// Size returns the number of shards.
func (p *Pool) Size() int { return len(p.workers) }

// Shard returns the shard index for a subject.
func (p *Pool) Shard(subjectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	return int(h.Sum32() % uint32(len(p.workers)))
}

// Submit enqueues t on its subject's shard without blocking.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if t.Exec == nil {
		return fmt.Errorf("submit %s: %w", t.ID, ErrInvalidTask)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if !p.queues[p.Shard(t.SubjectID)].Enqueue(ctx, t) {
		return fmt.Errorf("submit %s for subject %s: %w", t.ID, t.SubjectID, ErrQueueFull)
	}
	return nil
}

// Do submits t and waits for its result.
func (p *Pool) Do(ctx context.Context, t Task) error {
	t.Done = make(chan error, 1)
	if err := p.Submit(ctx, t); err != nil {
		return err
	}
	select {
	case err := <-t.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start starts all workers in the pool. It is a no-op after the first call.
// When ctx is done the pool stops accepting tasks and fails the queued ones.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			p.close(ctx)
		}()
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Serve runs the pool until ctx is done, then drains it. It satisfies
// suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	p.Start(context.WithoutCancel(ctx))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown closes every queue and waits until each accepted task has either
// run or, when the run context was cancelled, failed with ErrStopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.close(ctx) {
		return nil
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("pool shutdown: %w", ctx.Err())
		}
	}
	return nil
}

// close rejects further submissions and closes every queue. It reports
// whether the workers were started.
func (p *Pool) close(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		for _, q := range p.queues {
			if err := q.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
	}
	return p.started
}
