package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Submit once the pool has been closed.
var ErrClosed = errors.New("pool closed")

// Task is a unit of work. ctx is the pool's context, cancelled on a forced
// shutdown.
type Task func(ctx context.Context)

// Stats tracks pool activity.
type Stats struct {
	Submitted atomic.Int64
	Completed atomic.Int64
	Panicked  atomic.Int64
}

// Pool runs tasks on a fixed number of workers reading a buffered queue.
type Pool struct {
	workers int
	tasks   chan Task
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	stats Stats
}

// New starts a pool. Non-positive sizes fall back to 4 workers and a queue
// of 64.
func New(workers, queue int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		tasks:   make(chan Task, queue),
		log:     log.With().Str("component", "pool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Debug().Int("workers", workers).Int("queue", queue).Msg("pool started")
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.Panicked.Add(1)
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
		p.stats.Completed.Add(1)
	}()
	task(p.ctx)
}

// Submit queues task, blocking while the queue is full. It gives up when
// ctx is done or the pool is closed.
func (p *Pool) Submit(ctx context.Context, task func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.stats.Submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}

// Shutdown is Close bounded by ctx. When ctx expires first the pool context
// is cancelled so running tasks can abort, and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) Workers() int { return p.workers }

func (p *Pool) Stats() *Stats { return &p.stats }
