// Package jobs runs work off the caller's goroutine on a single FIFO worker.
//
// All orchestrator operations serialize on one lock, so one worker gives the
// same throughput as a pool without the contention. Cancellation is advisory:
// jobs observe it through their Handle.
package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrCanceled is the outcome reported for canceled jobs.
var ErrCanceled = errors.New("Canceled") //nolint:staticcheck // fixed sentinel text surfaced to callers

// Job is a unit of work. It should poll h.IsCanceled() and return early when set.
type Job func(h *Handle)

type task struct {
	handle *Handle
	job    Job

	// onSkip runs instead of job when the job is canceled before it starts.
	onSkip func(h *Handle)
}

// Queue is an unbounded FIFO drained by one worker goroutine.
type Queue struct {
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []task
	stopping bool

	wg sync.WaitGroup
}

// NewQueue creates a queue and starts its worker.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q := &Queue{logger: logger}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.worker()
	return q
}

// Submit enqueues job and returns immediately. A job canceled before the
// worker reaches it is skipped and never runs. After Stop the returned handle
// is already canceled and skipped.
func (q *Queue) Submit(job Job) *Handle {
	return q.submit(task{job: job})
}

func (q *Queue) submit(t task) *Handle {
	h := newHandle()
	t.handle = h

	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		h.Cancel()
		h.skipped.Store(true)
		go q.skip(t)
		return h
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()
	q.cond.Signal()

	q.logger.Debug("job submitted", "job_id", h.id)
	return h
}

// Len returns the number of jobs waiting for the worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop lets the worker drain jobs submitted before the call and waits for it
// to exit. It is safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopping {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			q.logger.Debug("job worker stopped")
			return
		}
		t := q.pending[0]
		q.pending[0] = task{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if t.handle.IsCanceled() {
			q.skip(t)
			continue
		}
		q.run(t)
	}
}

func (q *Queue) run(t task) {
	defer close(t.handle.done)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", "job_id", t.handle.id, "panic", r)
		}
	}()
	t.job(t.handle)
}

func (q *Queue) skip(t task) {
	t.handle.skipped.Store(true)
	q.logger.Debug("job skipped", "job_id", t.handle.id)
	if t.onSkip == nil {
		close(t.handle.done)
		return
	}
	q.run(task{handle: t.handle, job: t.onSkip})
}

// Go submits work and reports its outcome to complete exactly once, from the
// worker goroutine. A job canceled before it starts never calls work; a job
// canceled while running has its outcome discarded. Both complete with the
// zero value and ErrCanceled. A panic in work is reported as an error; a
// panic in complete is only logged.
func Go[T any](q *Queue, work func(h *Handle) (T, error), complete func(T, error)) *Handle {
	var zero T
	report := func(v T, err error) {
		if complete != nil {
			complete(v, err)
		}
	}

	return q.submit(task{
		job: func(h *Handle) {
			if h.IsCanceled() {
				report(zero, ErrCanceled)
				return
			}
			v, err := protect(q, h, work)
			if h.IsCanceled() {
				report(zero, ErrCanceled)
				return
			}
			report(v, err)
		},
		onSkip: func(*Handle) { report(zero, ErrCanceled) },
	})
}

// protect runs work and turns a panic into an error.
func protect[T any](q *Queue, h *Handle, work func(h *Handle) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", "job_id", h.id, "panic", r)
			var zero T
			v, err = zero, fmt.Errorf("job panicked: %v", r)
		}
	}()
	return work(h)
}
