package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"kvs/internal/logging"
)

// NaivePool runs every task on its own goroutine.
type NaivePool struct {
	wg     sync.WaitGroup
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool

	running   atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
}

func NewNaivePool(logger *logging.Logger) *NaivePool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &NaivePool{logger: logger.Component("pool")}
}

func (p *NaivePool) Spawn(task func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("Task submitted to closed pool dropped")
		return
	}

	p.wg.Add(1)
	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.logger.Error("Task panicked", "panic", fmt.Sprint(r))
			}
		}()

		task()
		p.completed.Add(1)
	}()
}

// Close waits for every spawned task to finish.
func (p *NaivePool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *NaivePool) Stats() Stats {
	return Stats{
		Workers:   int(p.running.Load()),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}
