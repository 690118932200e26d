package flush

import (
	"errors"
	"sync"
)

var (
	// ErrExecutorClosed is returned by Submit after Close.
	ErrExecutorClosed = errors.New("executor is closed")
	// ErrQueueFull is returned when the pool cannot accept more work.
	ErrQueueFull = errors.New("executor queue is full")
)

// Executor runs fetch stages in the background.
type Executor interface {
	Submit(task func()) error
}

// GoExecutor starts one goroutine per task.
type GoExecutor struct{}

// Submit runs task on a new goroutine.
func (GoExecutor) Submit(task func()) error {
	go task()
	return nil
}

// PoolExecutor runs tasks on a fixed set of workers fed by a bounded queue.
type PoolExecutor struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	wg     sync.WaitGroup
}

// NewPoolExecutor starts workers goroutines reading from a queue of queueSize
// pending tasks. Values below one are raised to one.
func NewPoolExecutor(workers, queueSize int) *PoolExecutor {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)

	p := &PoolExecutor{tasks: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit enqueues task without blocking the caller.
func (p *PoolExecutor) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrExecutorClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *PoolExecutor) Close() {
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
