// Package worker provides a bounded worker pool for concurrent task
// execution.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool.
type Job[T any] struct {
	// ID identifies the job in results and logs.
	ID string
	// Run performs the work. It receives the pool's context.
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one job.
type Result[T any] struct {
	JobID string
	Value T
	Err   error
}

// Pool runs jobs on a fixed number of worker goroutines. Workers start
// immediately and wait for submissions.
type Pool[T any] struct {
	workers int
	jobs    chan Job[T]
	results chan Result[T]
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool creates a pool with the given number of workers and queue size.
func NewPool[T any](ctx context.Context, workers, queueSize int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		workers: workers,
		jobs:    make(chan Job[T], queueSize),
		results: make(chan Result[T], queueSize),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			value, err := job.Run(p.ctx)
			select {
			case p.results <- Result[T]{JobID: job.ID, Value: value, Err: err}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It blocks while the queue is full and fails once the
// pool's context is done.
func (p *Pool[T]) Submit(job Job[T]) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// RunAll submits every job and waits for all of their results. Results come
// back in completion order, not submission order. On cancellation the
// results collected so far are returned.
func (p *Pool[T]) RunAll(jobs []Job[T]) []Result[T] {
	results := make([]Result[T], 0, len(jobs))

	// Interleave submission and collection so RunAll cannot deadlock when
	// the job count exceeds the queue capacity.
	pending := jobs
	for len(results) < len(jobs) {
		if len(pending) > 0 {
			select {
			case <-p.ctx.Done():
				return results
			case p.jobs <- pending[0]:
				pending = pending[1:]
			case r := <-p.results:
				results = append(results, r)
			}
			continue
		}
		select {
		case <-p.ctx.Done():
			return results
		case r := <-p.results:
			results = append(results, r)
		}
	}
	return results
}

// Workers reports the pool size.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Close stops accepting jobs and waits for workers to drain.
func (p *Pool[T]) Close() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}
