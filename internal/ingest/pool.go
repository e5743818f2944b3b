package ingest

import (
	"context"
	"errors"
	"sync"
)

// Pool sizing defaults.
const (
	DefaultCoreWorkers   = 4
	DefaultMaxWorkers    = 10
	DefaultQueueCapacity = 100
)

// ErrPoolSaturated is returned when the queue is full and the pool is
// already at its maximum worker count.
var ErrPoolSaturated = errors.New("worker pool saturated")

// ErrPoolClosed is returned for submissions after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Job is one unit of pool work. The context is canceled when the pool
// shuts down.
type Job func(ctx context.Context)

// Pool runs ingestion jobs on a bounded set of workers. Core workers
// live for the pool's lifetime; when the queue backs up, extra workers
// are spawned up to the maximum and exit once the queue drains.
type Pool struct {
	core int
	max  int
	jobs chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active int
	closed bool
}

// NewPool creates a pool with the given worker bounds and queue
// capacity. Non-positive values fall back to the defaults.
func NewPool(core, max, queueCapacity int) *Pool {
	if core <= 0 {
		core = DefaultCoreWorkers
	}
	if max <= 0 {
		max = DefaultMaxWorkers
	}
	if max < core {
		max = core
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		core:   core,
		max:    max,
		jobs:   make(chan Job, queueCapacity),
		ctx:    ctx,
		cancel: cancel,
	}

	p.mu.Lock()
	for i := 0; i < core; i++ {
		p.spawnLocked(nil)
	}
	p.mu.Unlock()

	return p
}

// spawnLocked starts a worker. Core workers (first == nil) block on the
// queue until shutdown; transient workers run their handed-off job,
// drain the queue, and exit when it is empty.
func (p *Pool) spawnLocked(first Job) {
	transient := first != nil
	p.active++
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
		}()

		if first != nil {
			first(p.ctx)
		}
		for {
			if transient {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job(p.ctx)
				default:
					return
				}
				continue
			}
			select {
			case <-p.ctx.Done():
				return
			case job, ok := <-p.jobs:
				if !ok {
					return
				}
				job(p.ctx)
			}
		}
	}()
}

// Submit enqueues a job. When the queue is full, the job is handed to a
// fresh worker if the pool is below its maximum; otherwise
// ErrPoolSaturated.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	default:
	}

	if p.active < p.max {
		p.spawnLocked(job)
		return nil
	}
	return ErrPoolSaturated
}

// Workers returns the current worker count.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Close stops accepting jobs, lets queued work finish, then releases
// the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}
