package jobs

import "sync"

// Pool runs tasks on a fixed set of workers fed by a bounded queue. When the
// queue is full, Submit runs the task on the calling goroutine instead of
// dropping it: submission gets slower under saturation but no work is lost.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// NewPool starts the worker goroutines over a queue of the given depth.
func NewPool(workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	p := &Pool{tasks: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues the task, or runs it inline when the queue is full.
// Submit must not be called after Close.
func (p *Pool) Submit(task func()) {
	select {
	case p.tasks <- task:
	default:
		task()
	}
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
