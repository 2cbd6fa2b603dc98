package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PoolStats is a point-in-time snapshot of pool activity.
type PoolStats struct {
	Size      int
	Submitted uint64
	Completed uint64
}

// WorkerPool runs submitted work on a fixed set of goroutines.
//
// Work is queued FIFO when all workers are busy; nothing is dropped. Once
// Close has been called, Submit returns ErrPoolClosed. Close drains queued
// and in-flight work before returning.
type WorkerPool struct {
	size  int
	tasks chan func()

	mu     sync.RWMutex // guards closed and sends on tasks
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewWorkerPool starts size workers. queueCap bounds how many submissions can
// wait without blocking the submitter; the engine sizes it to the slot count
// so a round's fan-out never blocks.
func NewWorkerPool(size, queueCap int) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool size must be > 0, got %d", size)
	}
	if queueCap < 0 {
		return nil, fmt.Errorf("worker pool queue capacity must be >= 0, got %d", queueCap)
	}
	p := &WorkerPool{
		size:  size,
		tasks: make(chan func(), queueCap),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.completed.Add(1)
	}
}

// Submit schedules task for asynchronous execution. It blocks only while the
// queue is full.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	p.tasks <- task
	return nil
}

// Close stops accepting work, waits for every queued and running task, and
// releases the workers. Safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Stats returns a snapshot of submission and completion counters.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Size:      p.size,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
	}
}
