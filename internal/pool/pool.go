// Package pool runs submitted tasks on a fixed set of worker goroutines.
package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"kvs/internal/logging"
)

// ErrInvalidSize is returned when a pool is created with fewer than one worker.
var ErrInvalidSize = errors.New("pool size must be at least 1")

// ThreadPool executes tasks asynchronously. Spawn never waits for the task
// to finish and makes no ordering promise between tasks.
type ThreadPool interface {
	Spawn(task func())
	Close()
	Stats() Stats
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Completed uint64 `json:"completed"`
	Panics    uint64 `json:"panics"`
}

// New builds the pool named by kind ("shared" or "naive").
func New(kind string, workers int, logger *logging.Logger) (ThreadPool, error) {
	switch kind {
	case "shared", "":
		p, err := NewSharedQueuePool(workers, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "naive":
		return NewNaivePool(logger), nil
	default:
		return nil, fmt.Errorf("unknown pool kind: %s", kind)
	}
}

// workerExit is sent by a worker to the supervisor when its loop ends.
type workerExit struct {
	id       int
	panicked bool
}

// SharedQueuePool feeds an unbounded FIFO queue to a fixed number of workers.
// A supervisor goroutine owns the worker set: a worker whose task panics
// reports it and exits, and the supervisor starts a replacement, so the
// number of workers stays constant until Close.
type SharedQueuePool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	size   int
	nextID int
	exits  chan workerExit
	done   chan struct{}
	logger *logging.Logger

	live      atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// NewSharedQueuePool starts size workers and their supervisor.
func NewSharedQueuePool(size int, logger *logging.Logger) (*SharedQueuePool, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	p := &SharedQueuePool{
		size:   size,
		exits:  make(chan workerExit, size),
		done:   make(chan struct{}),
		logger: logger.Component("pool"),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		p.startWorker()
	}
	go p.supervise()

	p.logger.Debug("Worker pool started", "workers", size)
	return p, nil
}

// Spawn enqueues task. Tasks submitted after Close are dropped.
func (p *SharedQueuePool) Spawn(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("Task submitted to closed pool dropped")
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for all of them to exit.
func (p *SharedQueuePool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	<-p.done
	p.logger.Debug("Worker pool stopped",
		"completed", p.completed.Load(),
		"panics", p.panics.Load(),
	)
}

func (p *SharedQueuePool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return Stats{
		Workers:   int(p.live.Load()),
		Queued:    queued,
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// startWorker is called by the constructor before the supervisor runs and
// afterwards only by the supervisor, so nextID needs no lock.
func (p *SharedQueuePool) startWorker() {
	id := p.nextID
	p.nextID++
	p.live.Add(1)
	go p.work(id)
}

// supervise replaces workers that exited through a panic and returns once
// every worker has exited normally after Close.
func (p *SharedQueuePool) supervise() {
	defer close(p.done)

	for exit := range p.exits {
		p.live.Add(-1)
		if exit.panicked {
			p.logger.Warn("Worker lost to panicking task, starting replacement", "worker", exit.id)
			p.startWorker()
			continue
		}
		if p.live.Load() == 0 {
			return
		}
	}
}

func (p *SharedQueuePool) work(id int) {
	for {
		task, ok := p.next()
		if !ok {
			p.exits <- workerExit{id: id}
			return
		}
		if !p.run(id, task) {
			p.exits <- workerExit{id: id, panicked: true}
			return
		}
	}
}

// next blocks until a task is queued, or returns false once the pool is
// closed and the queue is empty.
func (p *SharedQueuePool) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 {
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

// run executes task and reports whether it returned normally.
func (p *SharedQueuePool) run(id int, task func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("Task panicked",
				"worker", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()

	task()
	p.completed.Add(1)
	return true
}
