// Package taskpool runs tasks on a bounded set of goroutines with a bounded
// queue in front of them. Submit blocks the caller once both are full, so
// producers can never outrun the workers by more than the queue length.
package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/3leaps/nimbusfs/pkg/errclass"
)

const (
	DefaultActiveLimit = 4
	DefaultQueueLimit  = 8
	DefaultKeepAlive   = 60 * time.Second
)

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = errors.New("task pool is shut down")

// Task is a unit of work. The context is cancelled if the pool is shut
// down before the task finishes.
type Task func(ctx context.Context) error

// Config configures a Pool.
type Config struct {
	// ActiveLimit is the maximum number of tasks running at once.
	ActiveLimit int

	// QueueLimit is the number of accepted tasks allowed to wait for a
	// worker.
	QueueLimit int

	// KeepAlive is how long an idle worker waits for work before exiting.
	KeepAlive time.Duration
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{ActiveLimit: DefaultActiveLimit, QueueLimit: DefaultQueueLimit, KeepAlive: DefaultKeepAlive}
}

type job struct {
	task   Task
	handle *Handle
}

// Pool is a blocking bounded executor.
//
// Every accepted task holds one permit from submission until it finishes,
// whatever the outcome. Capacity is ActiveLimit+QueueLimit permits.
type Pool struct {
	cfg      Config
	capacity int64
	logger   *zap.Logger

	permits *semaphore.Weighted
	held    atomic.Int64
	running atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   chan *job
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Pool. Non-positive limits take their defaults.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.ActiveLimit <= 0 {
		cfg.ActiveLimit = DefaultActiveLimit
	}
	if cfg.QueueLimit < 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.ActiveLimit + cfg.QueueLimit
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:      cfg,
		capacity: int64(capacity),
		logger:   logger,
		permits:  semaphore.NewWeighted(int64(capacity)),
		tasks:    make(chan *job, capacity),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit hands task to the pool, blocking while no permit is free.
//
// It returns an error only if ctx ends while waiting or the pool is shut
// down. The task's own outcome is delivered through the Handle.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	if p.isClosed() {
		return nil, ErrShutdown
	}
	if err := p.permits.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.held.Add(1)

	h := newHandle()
	j := &job{task: task, handle: h}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.release()
		return nil, ErrShutdown
	}

	select {
	case p.tasks <- j:
	default:
		p.reject(j)
		return h, nil
	}

	if p.workers < p.cfg.ActiveLimit {
		p.workers++
		p.wg.Add(1)
		go p.worker()
	}
	return h, nil
}

// reject settles a task the queue could not take. A permit was granted, so
// the queue should always have room; reaching this is a bug.
func (p *Pool) reject(j *job) {
	p.logger.Error("task rejected by full queue, this should not happen",
		zap.Int("active_limit", p.cfg.ActiveLimit),
		zap.Int("queue_limit", p.cfg.QueueLimit),
		zap.Int("queued", len(p.tasks)))
	p.release()
	j.handle.finish(errclass.NewInvariantViolation("submit", "", "task rejected although a permit was held"))
}

func (p *Pool) release() {
	p.held.Add(-1)
	p.permits.Release(1)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.tasks:
			if !ok {
				p.exitWorker()
				return
			}
			p.run(j)
			resetTimer(idle, p.cfg.KeepAlive)
		case <-idle.C:
			p.mu.Lock()
			if len(p.tasks) > 0 {
				p.mu.Unlock()
				idle.Reset(p.cfg.KeepAlive)
				continue
			}
			p.workers--
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pool) exitWorker() {
	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
}

func (p *Pool) run(j *job) {
	p.running.Add(1)
	var err error
	defer func() {
		p.running.Add(-1)
		p.release()
		j.handle.finish(err)
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("task panicked", zap.Any("panic", r))
		}
	}()
	err = j.task(p.ctx)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown stops accepting tasks and waits for accepted ones to finish.
// If ctx ends first, running tasks see their context cancelled and
// Shutdown returns ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// Active returns the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.running.Load())
}

// Available returns the number of free permits.
func (p *Pool) Available() int {
	return int(p.capacity - p.held.Load())
}

// Workers returns the number of live worker goroutines.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Capacity returns ActiveLimit+QueueLimit.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}
