package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrWorkerPoolClosed = errors.New("worker pool is not active")
	ErrExecutionTimeout = errors.New("task execution timed out")
)

var _ Pool = (*WorkerPool)(nil)

type WorkerPool struct {
	// name is used as a prefix for worker ids
	name string

	// channel from which workers consume work
	tasks chan Task

	// ensure the pool can only be started once
	start sync.Once

	// ensure the pool can only be stopped once
	stop sync.Once

	// guards closed and the close of tasks against concurrent AddWork calls
	mu     sync.RWMutex
	closed bool

	workers []*Worker

	timeout time.Duration

	wg *sync.WaitGroup

	log *slog.Logger
}

func (p *WorkerPool) Start() {
	p.start.Do(func() {
		p.log.Info(fmt.Sprintf("starting worker pool %s", p.name))
		p.startWorkers()
	})
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < len(p.workers); i++ {
		w := NewWorker(fmt.Sprintf("%s_worker_%d", p.name, i+1), p.tasks, p.timeout, p.wg, p.log)
		p.workers[i] = w
		p.wg.Add(1)
		go w.Start()
	}
}

// Stop rejects new work, lets the workers finish every task already queued
// and blocks until they have returned.
func (p *WorkerPool) Stop() error {
	p.stop.Do(func() {
		p.log.Info(fmt.Sprintf("stopping worker pool %s", p.name))

		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		// wait for all of them to clean themselves up
		p.wg.Wait()

		p.log.Info(fmt.Sprintf("worker pool %s has been stopped", p.name))
	})
	return nil
}

// AddWork adds work to the WorkerPool. If the channel buffer is full and
// all workers are occupied, this will block until work is consumed.
func (p *WorkerPool) AddWork(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrWorkerPoolClosed
	}

	p.tasks <- t
	return nil
}

// Workers returns the number of worker goroutines
func (p *WorkerPool) Workers() int { return len(p.workers) }

// Queued returns the number of tasks waiting for a worker
func (p *WorkerPool) Queued() int { return len(p.tasks) }

// NewWorkerPool creates a pool of numWorkers workers with an internal queue of
// size tasks. Every task is given at most timeout to run, zero disables it.
func NewWorkerPool(name string, numWorkers, size int, timeout time.Duration, log *slog.Logger) *WorkerPool {
	if log == nil {
		log = slog.Default()
	}

	return &WorkerPool{
		name: name,
		// number of workers in the pool
		workers: make([]*Worker, numWorkers),
		tasks:   make(chan Task, size),
		timeout: timeout,
		wg:      &sync.WaitGroup{},
		log:     log,
	}
}
