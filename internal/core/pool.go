package core

// pool.go implements the bounded worker pool that runs transfers.
//
// A fixed number of workers drain a bounded queue. When the queue is full,
// Submit waits up to maxWait for space before failing with
// ErrTooManyTransfers. WaitForDrain blocks until every queued and running
// task has finished, which the server uses during graceful shutdown.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultMaxConcurrentTransfers is the default number of workers.
const DefaultMaxConcurrentTransfers = 5

// DefaultQueueSize is the default number of tasks that may wait for a worker.
const DefaultQueueSize = 100

// DefaultMaxWaitTime is how long Submit waits for queue space before rejecting.
const DefaultMaxWaitTime = 5 * time.Second

// Task is one unit of background work.
type Task struct {
	ID  string
	Run func()
	// OnPanic is called with the recovered value if Run panics.
	OnPanic func(v any)
}

// WorkerPool runs tasks on a fixed set of goroutines.
type WorkerPool struct {
	queue   chan Task
	workers int
	maxWait time.Duration

	mu      sync.RWMutex
	active  int
	pending int

	// closeMu guards closed. Submit registers in senders under it, and
	// Close waits for senders before closing queue.
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
	senders sync.WaitGroup

	wg sync.WaitGroup
}

// NewWorkerPool starts workers goroutines reading from a queue of queueSize.
func NewWorkerPool(workers, queueSize int, maxWait time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = DefaultMaxConcurrentTransfers
	}
	if queueSize < 0 {
		queueSize = DefaultQueueSize
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	p := &WorkerPool{
		queue:   make(chan Task, queueSize),
		done:    make(chan struct{}),
		workers: workers,
		maxWait: maxWait,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues t. It returns ErrTooManyTransfers if no queue space frees
// up within maxWait, ctx.Err() if ctx ends first, and ErrServiceClosed
// after Close.
func (p *WorkerPool) Submit(ctx context.Context, t Task) error {
	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		return ErrServiceClosed
	}
	p.senders.Add(1)
	p.closeMu.RUnlock()
	defer p.senders.Done()

	p.mu.Lock()
	p.pending++
	p.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	select {
	case p.queue <- t:
		return nil

	case <-p.done:
		p.unqueue()
		return ErrServiceClosed

	case <-waitCtx.Done():
		p.unqueue()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyTransfers
	}
}

func (p *WorkerPool) unqueue() {
	p.mu.Lock()
	p.pending--
	p.mu.Unlock()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for t := range p.queue {
		p.mu.Lock()
		p.pending--
		p.active++
		p.mu.Unlock()

		p.runTask(t)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

func (p *WorkerPool) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in transfer task",
				"task_id", t.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			if t.OnPanic != nil {
				t.OnPanic(r)
			}
		}
	}()

	t.Run()
}

// Close stops accepting tasks and releases callers blocked in Submit.
// Queued tasks still run.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.closeMu.Unlock()

	p.senders.Wait()
	close(p.queue)
}

// WaitForDrain blocks until all queued and running tasks finish or ctx ends.
func (p *WorkerPool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) idle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active == 0 && p.pending == 0
}

// PoolStatus is a snapshot of the pool's current state.
type PoolStatus struct {
	Active    int  `json:"active"`
	Queued    int  `json:"queued"`
	Workers   int  `json:"workers"`
	QueueSize int  `json:"queue_size"`
	Closed    bool `json:"closed"`
}

// Status returns the current pool state for monitoring.
func (p *WorkerPool) Status() PoolStatus {
	p.closeMu.RLock()
	closed := p.closed
	p.closeMu.RUnlock()

	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStatus{
		Active:    p.active,
		Queued:    p.pending,
		Workers:   p.workers,
		QueueSize: cap(p.queue),
		Closed:    closed,
	}
}
