// Package pool runs queued jobs on a fixed number of goroutines. Jobs
// are executed in submission order. Failures are collected instead of
// stopping the pool, so one broken file does not hide problems in the
// rest.
package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Pool is a single-use job pool: submit jobs, then call Wait exactly
// once. Submitting after Wait has been called is a bug.
type Pool struct {
	ctx     context.Context
	mu      sync.Mutex
	queue   []*job
	wait    chan struct{}
	closed  bool
	errs    []error
	pending sync.WaitGroup
	workers sync.WaitGroup
}

type job struct {
	name string
	fn   func(context.Context) error
}

// New starts a pool with the given number of worker goroutines. The
// context is handed to every job.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	pool := &Pool{ctx: ctx}
	pool.workers.Add(workers)
	for range workers {
		go pool.work()
	}

	return pool
}

// Submit queues a job. The name labels any error the job returns.
func (p *Pool) Submit(name string, fn func(context.Context) error) {
	p.pending.Add(1)

	p.mu.Lock()
	p.queue = append(p.queue, &job{name: name, fn: fn})
	p.wake()
	p.mu.Unlock()
}

// Wait blocks until every submitted job has finished, shuts the workers
// down, and returns the collected errors joined together, sorted for
// deterministic output.
func (p *Pool) Wait() error {
	p.pending.Wait()

	p.mu.Lock()
	p.closed = true
	p.wake()
	errs := slices.Clone(p.errs)
	p.mu.Unlock()

	p.workers.Wait()

	slices.SortFunc(errs, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})
	return errors.Join(errs...)
}

// work is the main loop for each worker goroutine.
func (p *Pool) work() {
	defer p.workers.Done()

	for {
		j := p.dequeue()
		if j == nil {
			return
		}
		if err := j.fn(p.ctx); err != nil {
			p.fail(j.name, err)
		}
		p.pending.Done()
	}
}

func (p *Pool) fail(name string, err error) {
	p.mu.Lock()
	p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
	p.mu.Unlock()
}

// dequeue pops the oldest queued job, blocking until one arrives or the
// pool shuts down, in which case it returns nil.
func (p *Pool) dequeue() *job {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if len(p.queue) > 0 {
			var j *job
			j, p.queue = p.queue[0], p.queue[1:]
			return j
		}

		if p.closed {
			return nil
		}

		// Wait for a job to be submitted or the pool to close.
		if p.wait == nil {
			p.wait = make(chan struct{})
		}
		wait := p.wait

		p.mu.Unlock()
		<-wait
		p.mu.Lock()
	}
}

// wake is used in multiple places, but always needs to be run within a
// p.mu lock!
func (p *Pool) wake() {
	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}
