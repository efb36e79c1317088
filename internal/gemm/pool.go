package gemm

import (
	"runtime"
	"sync"

	"github.com/samcharles93/pigemm/internal/partition"
)

type poolTask struct {
	fn     func(lo, hi int)
	lo, hi int
	done   chan struct{}
}

// Pool is a fixed set of worker goroutines that run fork-join parallel
// regions for the threaded and combined kernels.
type Pool struct {
	size      int
	tasks     chan poolTask
	doneSlots chan chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers. A size of zero or less uses GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = max(runtime.GOMAXPROCS(0), 1)
	}
	p := &Pool{
		size:      size,
		tasks:     make(chan poolTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				task.fn(task.lo, task.hi)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// For splits [0, n) into at most Size() contiguous ranges with the
// partitioner and runs fn on each range concurrently. It returns once every
// range has finished. fn must only write state owned by its own range and
// must not call For on the same pool.
func (p *Pool) For(n int, fn func(lo, hi int)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if n <= 0 {
		return nil
	}

	workers := min(p.size, n)
	if workers == 1 {
		fn(0, n)
		return nil
	}

	done := <-p.doneSlots
	for w := range workers {
		p.tasks <- poolTask{
			fn:   fn,
			lo:   partition.Start(n, w, workers),
			hi:   partition.End(n, w, workers),
			done: done,
		}
	}
	for range workers {
		<-done
	}
	p.doneSlots <- done
	return nil
}

// Close stops the workers once in-flight regions have finished. Later calls
// to For fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}
