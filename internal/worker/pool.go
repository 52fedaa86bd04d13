package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type queued struct {
	index int
	job   Job
}

type finished struct {
	index  int
	result Result
}

// Pool runs jobs on a fixed number of workers. Results come back in
// submission order; a job that never ran because the pool was canceled
// leaves a nil slot.
type Pool struct {
	workers    int
	jobQueue   chan queued
	results    chan finished
	collected  []Result
	submitted  int
	wg         sync.WaitGroup
	collectWg  sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool whose jobs run under a child of parent
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan queued, workers*2),
		results:    make(chan finished, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	p.collectWg.Add(1)
	go p.collect()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// A job dequeued after cancellation is left unrun
			if p.ctx.Err() != nil {
				return
			}
			p.results <- finished{index: q.index, result: q.job.Execute(p.ctx)}
		}
	}
}

// collect drains results so workers never block on a full channel
func (p *Pool) collect() {
	defer p.collectWg.Done()
	for f := range p.results {
		for len(p.collected) <= f.index {
			p.collected = append(p.collected, nil)
		}
		p.collected[f.index] = f.result
	}
}

// Submit queues a job. It returns false once the pool is canceled. Jobs
// are submitted from a single goroutine.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- queued{index: p.submitted, job: job}:
		p.submitted++
		return true
	}
}

// Cancel stops handing out jobs and cancels the context of running ones
func (p *Pool) Cancel() {
	p.cancelFunc()
}

// Context returns the context jobs run under
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Wait waits for the workers to finish and returns one slot per submitted job
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	p.collectWg.Wait()
	p.cancelFunc()

	out := make([]Result, p.submitted)
	copy(out, p.collected)
	return out
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
