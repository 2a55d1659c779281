package utils

import (
	"sync"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Task func()
}

// WorkerPool runs background maintenance work (retention purges) off the
// fix-processing path.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup
}

// NewWorkerPool creates a new WorkerPool with the specified number of
// workers and queue capacity.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if queueSize < workers {
		queueSize = workers
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.Task()
	}
}

// Submit adds a new job to the worker pool, blocking while the queue is
// full.
func (wp *WorkerPool) Submit(task func()) {
	wp.jobQueue <- Job{Task: task}
}

// TrySubmit adds a job only if the queue has room, so callers on a hot path
// can shed maintenance work instead of stalling.
func (wp *WorkerPool) TrySubmit(task func()) bool {
	select {
	case wp.jobQueue <- Job{Task: task}:
		return true
	default:
		return false
	}
}

// Shutdown waits for all workers to finish and then closes the worker pool.
func (wp *WorkerPool) Shutdown() {
	close(wp.jobQueue)
	wp.waitGroup.Wait()
}
