// Package worker runs the bounded scoring pool that drains the task queue.
package worker

import (
	"context"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/jobrank/internal/adapters/mq/queue"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/logger"
	"github.com/okian/jobrank/pkg/metrics"
)

// Processor turns a task into its scoring outcome. It must always return an
// outcome, even when ctx is done.
type Processor interface {
	Process(ctx context.Context, t queue.Task) model.ScoredPosting
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t queue.Task) model.ScoredPosting

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, t queue.Task) model.ScoredPosting { //nolint:gocritic // tasks travel by value
	return f(ctx, t)
}

// Sink receives outcomes.
type Sink interface {
	Put(ctx context.Context, sp model.ScoredPosting)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue() <-chan queue.Task
}

// Worker drains the queue until it is closed.
type Worker interface {
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	sink      Sink
	name      string
	processed atomic.Int64

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, s Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		sink:      s,
		name:      "worker",
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes tasks until the queue is closed and drained. Cancellation is
// left to the processor so that every dequeued task still yields an outcome.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for t := range w.queue.Dequeue() {
		start := time.Now()
		sp := w.processor.Process(ctx, t)
		w.sink.Put(ctx, sp)
		w.processed.Add(1)
		w.logger.Debug(ctx, "task processed",
			logger.String("fingerprint", string(t.Fingerprint)),
			logger.Bool("scoring_failed", sp.ScoringFailed),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns the number of tasks this worker handled.
func (w *InMemoryWorker) Processed() int { return int(w.processed.Load()) }

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one defaults
// to the number of CPUs.
func NewPool(workerCount int, q Queue, p Processor, s Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		pool.workers[i] = NewInMemoryWorker(q, p, s, WithName("worker-"+strconv.Itoa(i)))
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
	p.logger.Debug(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Wait blocks until every worker has drained the queue.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerCount(0)
}

// Processed returns the total tasks handled across workers.
func (p *Pool) Processed() int {
	n := 0
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Collector is a Sink that keeps every outcome in memory.
type Collector struct {
	mu    sync.Mutex
	items []model.ScoredPosting
}

// NewCollector creates an empty Collector sized for n outcomes.
func NewCollector(n int) *Collector {
	return &Collector{items: make([]model.ScoredPosting, 0, max(n, 0))}
}

// Put stores sp.
func (c *Collector) Put(_ context.Context, sp model.ScoredPosting) { //nolint:gocritic // outcomes travel by value
	c.mu.Lock()
	c.items = append(c.items, sp)
	c.mu.Unlock()
}

// Items returns a copy of the collected outcomes.
func (c *Collector) Items() []model.ScoredPosting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}
