package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/sla-engine/internal/clock"
)

// MemoryQueue implements Queue with in-process storage. It backs tests and
// deployments without Redis; contract matches RedisQueue.
type MemoryQueue struct {
	mu      sync.Mutex
	clock   clock.Clock
	jobs    map[string]*Job
	pending []string
	delayed map[string]time.Time
	failed  []string
}

// NewMemoryQueue builds the queue.
func NewMemoryQueue(clk clock.Clock) *MemoryQueue {
	return &MemoryQueue{
		clock:   clk,
		jobs:    make(map[string]*Job),
		delayed: make(map[string]time.Time),
	}
}

// Enqueue stores the job and marks it pending.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	job.Status = JobStatusPending
	job.EnqueuedAt = now
	job.UpdatedAt = now
	copied := *job
	q.jobs[job.ID] = &copied
	q.pending = append(q.pending, job.ID)
	return nil
}

// Dequeue promotes due delayed jobs and pops the oldest pending one. Returns
// nil when nothing is ready.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	for id, readyAt := range q.delayed {
		if !readyAt.After(now) {
			delete(q.delayed, id)
			q.pending = append(q.pending, id)
		}
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job.Status = JobStatusActive
	job.AttemptCount++
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

// Complete marks the job delivered.
func (q *MemoryQueue) Complete(ctx context.Context, job *Job) error {
	return q.update(job, func(stored *Job) {
		stored.Status = JobStatusCompleted
		stored.AttemptCount = job.AttemptCount
		stored.LastError = job.LastError
	})
}

// Retry schedules the job for redelivery after the delay.
func (q *MemoryQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	return q.update(job, func(stored *Job) {
		stored.Status = JobStatusPending
		stored.AttemptCount = job.AttemptCount
		stored.LastError = job.LastError
		q.delayed[stored.ID] = q.clock.Now().Add(delay)
	})
}

// Fail retains the job for operator inspection.
func (q *MemoryQueue) Fail(ctx context.Context, job *Job) error {
	return q.update(job, func(stored *Job) {
		stored.Status = JobStatusFailed
		stored.AttemptCount = job.AttemptCount
		stored.LastError = job.LastError
		q.failed = append(q.failed, stored.ID)
	})
}

// Get loads one job record.
func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListFailed returns retained failed jobs, newest first.
func (q *MemoryQueue) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	result := make([]Job, 0, limit)
	for i := len(q.failed) - 1; i >= 0 && len(result) < limit; i-- {
		if job, ok := q.jobs[q.failed[i]]; ok {
			result = append(result, *job)
		}
	}
	return result, nil
}

// RequeueFailed puts a failed job back on the pending list with a fresh
// attempt budget.
func (q *MemoryQueue) RequeueFailed(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != JobStatusFailed {
		return errors.New("job is not failed")
	}
	for i, failedID := range q.failed {
		if failedID == id {
			q.failed = append(q.failed[:i], q.failed[i+1:]...)
			break
		}
	}
	job.Status = JobStatusPending
	job.AttemptCount = 0
	job.LastError = ""
	job.UpdatedAt = q.clock.Now()
	q.pending = append(q.pending, id)
	return nil
}

func (q *MemoryQueue) update(job *Job, apply func(stored *Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	apply(stored)
	stored.UpdatedAt = q.clock.Now()
	job.Status = stored.Status
	job.UpdatedAt = stored.UpdatedAt
	return nil
}
