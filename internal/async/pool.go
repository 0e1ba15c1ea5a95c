package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/metrics"
	"github.com/kopfenjager/Vision-crm-agent/internal/pipeline"
)

var (
	ErrQueueFull = errors.New("pipeline queue full")
	ErrClosed    = errors.New("pipeline pool is shutting down")

	// ErrJobTimeout marks a run cut short by the pool's own deadline rather
	// than by the caller or a stage timeout.
	ErrJobTimeout = fmt.Errorf("pipeline job timed out: %w", context.DeadlineExceeded)
)

// Processor is the pipeline entry point run by the workers.
type Processor interface {
	Process(ctx context.Context, data []byte) (*pipeline.Run, error)
}

type result struct {
	run *pipeline.Run
	err error
}

type job struct {
	ctx         context.Context
	data        []byte
	submittedAt time.Time
	reply       chan result
}

// Pool bounds the number of concurrent pipeline runs and applies an outer timeout to each.
type Pool struct {
	proc    Processor
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func NewPool(proc Processor, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan job, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)
				for j := range p.ch {
					p.metrics.SetQueueDepth(len(p.ch))
					p.handle(workerID, j)
				}
				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) handle(workerID int, j job) {
	if err := j.ctx.Err(); err != nil {
		// caller already gave up
		j.reply <- result{err: err}
		return
	}
	ctx, cancel := context.WithTimeout(j.ctx, p.timeout)
	defer cancel()

	p.logger.Debug("job picked up",
		"worker_id", workerID,
		"req_id", common.RequestIDFromContext(ctx),
		"wait_ms", time.Since(j.submittedAt).Milliseconds(),
	)
	run, err := p.proc.Process(ctx, j.data)
	if err != nil && ctx.Err() != nil && j.ctx.Err() == nil {
		p.logger.Warn("job timed out",
			"worker_id", workerID,
			"req_id", common.RequestIDFromContext(ctx),
			"timeout", p.timeout,
			"error", err,
		)
		err = fmt.Errorf("%w: %w", ErrJobTimeout, err)
	}
	j.reply <- result{run: run, err: err}
}

// Submit queues data and waits for its run. When the queue is full Submit
// blocks until a slot frees up or ctx ends.
func (p *Pool) Submit(ctx context.Context, data []byte) (*pipeline.Run, error) {
	j := job{ctx: ctx, data: data, submittedAt: time.Now(), reply: make(chan result, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case p.ch <- j:
	default:
		p.logger.Warn("queue full, applying backpressure", "req_id", common.RequestIDFromContext(ctx))
		select {
		case p.ch <- j:
		case <-ctx.Done():
			p.mu.RUnlock()
			p.metrics.QueueRejected()
			return nil, errors.Join(ErrQueueFull, ctx.Err())
		}
	}
	p.metrics.SetQueueDepth(len(p.ch))
	p.mu.RUnlock()

	select {
	case r := <-j.reply:
		return r.run, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
	}
}
