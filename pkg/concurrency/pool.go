// Package concurrency provides the bounded worker pools that stand in
// for the event loop: a single-worker pool serializes each strategy's
// events, and a larger shared pool caps concurrent REST dispatch.
package concurrency

import (
	"fmt"

	"github.com/alitto/pond"

	"gridcore/internal/core"
)

// PoolConfig sizes a WorkerPool. A NonBlocking pool rejects work when
// its queue is full instead of stalling the submitter; the WS callback
// path must never block.
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	NonBlocking bool
}

// WorkerPool is a thin pond wrapper exposing only the submit/stop
// surface the orchestrator and executor need.
type WorkerPool struct {
	pool *pond.WorkerPool
	cfg  PoolConfig
}

// NewWorkerPool builds a pool whose task panics are recovered into
// logger rather than crashing the submitting goroutine.
func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 64
	}
	log := logger.WithField("pool", cfg.Name)

	p := pond.New(cfg.MaxWorkers, cfg.MaxCapacity,
		pond.PanicHandler(func(v interface{}) {
			log.Error("worker pool task panicked", "panic", v)
		}),
	)
	return &WorkerPool{pool: p, cfg: cfg}
}

// Submit hands task to the pool, returning an error when a NonBlocking
// pool is at capacity.
func (wp *WorkerPool) Submit(task func()) error {
	if wp.cfg.NonBlocking {
		if !wp.pool.TrySubmit(task) {
			return fmt.Errorf("worker pool %s is full (capacity %d)", wp.cfg.Name, wp.cfg.MaxCapacity)
		}
		return nil
	}
	wp.pool.Submit(task)
	return nil
}

// Stop waits for queued tasks to finish, then releases the workers.
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}
