// Package workerpool runs range-partitioned work on a fixed set of
// goroutines that live as long as the pool.
//
// The descriptor stages are row- and cell-parallel and run back to back, so
// the pool is created once per server or CLI invocation and every
// ParallelFor call doubles as the barrier between two stages:
//
//	pool := workerpool.New(0)
//	defer pool.Close()
//
//	err := pool.ParallelForContext(ctx, rows, func(start, end int) {
//	    processRows(start, end)
//	})
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// chunksPerWorker splits a range finer than the worker count so a cancelled
// context stops dispatch after a fraction of the work.
const chunksPerWorker = 4

// Pool is a fixed set of goroutines consuming range chunks.
type Pool struct {
	size   int
	tasks  chan func()
	once   sync.Once
	closed atomic.Bool
}

// New starts a pool with size goroutines. size <= 0 means GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	p := &Pool{size: size, tasks: make(chan func(), size)}
	for range size {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	for task := range p.tasks {
		task()
	}
}

// Size returns the number of goroutines. A nil pool reports 1.
func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

// Close stops the goroutines once queued chunks have run. It is idempotent
// and must not race with ParallelFor calls.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.tasks)
	})
}

// ParallelFor is ParallelForContext without cancellation.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	_ = p.ParallelForContext(context.Background(), n, fn)
}

// ParallelForContext covers [0, n) with contiguous chunks and calls
// fn(start, end) for each, returning after every dispatched chunk has
// finished. Chunks not yet started when ctx is done are skipped and
// ctx.Err() is returned; a nil error means every index was covered.
//
// A nil or closed pool, or a single-goroutine pool, calls fn(0, n) inline.
func (p *Pool) ParallelForContext(ctx context.Context, n int, fn func(start, end int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}

	if p == nil || p.closed.Load() || p.size == 1 {
		fn(0, n)
		return nil
	}

	chunks := min(n, p.size*chunksPerWorker)
	step := (n + chunks - 1) / chunks

	var wg sync.WaitGroup
	var skipped atomic.Bool

dispatch:
	for start := 0; start < n; start += step {
		end := min(start+step, n)

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				skipped.Store(true)
				return
			}
			fn(start, end)
		}

		select {
		case p.tasks <- task:
		case <-ctx.Done():
			wg.Done()
			skipped.Store(true)
			break dispatch
		}
	}

	wg.Wait()
	if skipped.Load() {
		return ctx.Err()
	}
	return nil
}
