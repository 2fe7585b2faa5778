// Package worker runs jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker: pool stopped")

// Pool executes submitted jobs on a fixed set of goroutines.  Jobs receive
// the context given to Start, so cancelling it lets long jobs end early.
type Pool struct {
	workers int
	jobs    chan func(context.Context)
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool returns a Pool of n workers; n < 1 means one worker.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		workers: n,
		jobs:    make(chan func(context.Context), n*4),
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job(ctx)
			}
		}()
	}
}

// Submit queues job, blocking while the queue is full.  It fails when ctx
// ends first or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, job func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for queued jobs to finish and stops the workers.  It is safe to
// call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
