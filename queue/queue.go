// Package queue is the bounded worker pool pipeline runs are submitted to.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/metrics"
)

// Job encapsulates a unit of work processed by the worker pool.
type Job struct {
	ID       string
	Source   string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Stats exposes current queue metrics.
type Stats struct {
	Length      int    `json:"length"`
	Capacity    int    `json:"capacity"`
	WorkerCount int    `json:"worker_count"`
	Processed   uint64 `json:"processed"`
	Failed      uint64 `json:"failed"`
}

// Queue is a bounded job queue with a fixed worker pool.
type Queue struct {
	jobs        chan Job
	workerCount int
	timeout     time.Duration
	logger      zerolog.Logger
	started     bool
	stopped     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	processed   uint64
	failed      uint64
}

// New creates a Queue with the provided capacity, worker count, and per-job timeout.
func New(capacity, workerCount int, timeout time.Duration, logger zerolog.Logger) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		workerCount: workerCount,
		timeout:     timeout,
		logger:      logger.With().Str("component", "queue").Logger(),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue queues a job without blocking. It returns false when the queue is
// full, not started or already stopped.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		q.logger.Warn().Str("job", j.ID).Msg("enqueue called while queue not running")
		metrics.QueueRejections.Inc()
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		q.logger.Warn().Str("job", j.ID).Str("source", j.Source).Msg("job queue full, rejecting job")
		metrics.QueueRejections.Inc()
		return false
	}
}

// Submit enqueues work and waits for it to finish. ok is false when the job
// was rejected; err is the job's own result otherwise.
func (q *Queue) Submit(ctx context.Context, id, source string, work func(context.Context) error) (ok bool, err error) {
	done := make(chan error, 1)
	if !q.Enqueue(Job{ID: id, Source: source, Work: work, OnFinish: func(err error) { done <- err }}) {
		return false, nil
	}
	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Stop stops accepting new jobs and waits for workers to drain until context is done.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats returns current queue metrics.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workerCount,
		Processed:   atomic.LoadUint64(&q.processed),
		Failed:      atomic.LoadUint64(&q.failed),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handleJob(ctx, j)
		}
	}
}

func (q *Queue) handleJob(ctx context.Context, j Job) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
			q.logger.Error().Str("job", j.ID).Interface("panic", r).Msg("job panic recovered")
		}
		if j.OnFinish != nil {
			j.OnFinish(err)
		}
		atomic.AddUint64(&q.processed, 1)
		status := "success"
		if err != nil {
			atomic.AddUint64(&q.failed, 1)
			status = "failed"
		}
		metrics.JobsProcessed.WithLabelValues(status).Inc()
		q.logger.Debug().
			Str("job_source", j.Source).
			Str("job", j.ID).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("status", status).
			Err(err).
			Msg("job finished")
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	err = j.Work(jobCtx)
}

// Healthy returns true if the queue has been started and not stopped.
func (q *Queue) Healthy() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started && !q.stopped
}
