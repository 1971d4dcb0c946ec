package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/sla-engine/internal/clock"
)

// ErrJobNotFound is returned when a job id has no stored record.
var ErrJobNotFound = errors.New("job not found")

// RedisQueue is the durable Queue implementation. Layout under the
// namespace: one JSON record per job, a pending list, a delayed zset scored
// by ready time, and a failed list retained for operators.
type RedisQueue struct {
	client *redis.Client
	clock  clock.Clock
	ns     string
}

// NewRedisQueue builds the queue.
func NewRedisQueue(client *redis.Client, clk clock.Clock, namespace string) *RedisQueue {
	if namespace == "" {
		namespace = "sla-engine"
	}
	return &RedisQueue{client: client, clock: clk, ns: namespace}
}

func (q *RedisQueue) jobKey(id string) string { return q.ns + ":job:" + id }
func (q *RedisQueue) pendingKey() string      { return q.ns + ":pending" }
func (q *RedisQueue) delayedKey() string      { return q.ns + ":delayed" }
func (q *RedisQueue) failedKey() string       { return q.ns + ":failed" }

// Enqueue stores the job and pushes it onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	now := q.clock.Now()
	job.Status = JobStatusPending
	job.EnqueuedAt = now
	job.UpdatedAt = now
	if err := q.store(ctx, job); err != nil {
		return err
	}
	return q.client.LPush(ctx, q.pendingKey(), job.ID).Err()
}

// Dequeue promotes due delayed jobs, then pops one pending job. Returns nil
// when nothing is ready.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}
	id, err := q.client.RPop(ctx, q.pendingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = JobStatusActive
	job.AttemptCount++
	job.UpdatedAt = q.clock.Now()
	if err := q.store(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks the job delivered.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = q.clock.Now()
	return q.store(ctx, job)
}

// Retry schedules the job for redelivery after the delay.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	now := q.clock.Now()
	job.Status = JobStatusPending
	job.UpdatedAt = now
	if err := q.store(ctx, job); err != nil {
		return err
	}
	readyAt := float64(now.Add(delay).UnixMilli())
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: job.ID}).Err()
}

// Fail retains the job on the failed list for operator inspection.
func (q *RedisQueue) Fail(ctx context.Context, job *Job) error {
	job.Status = JobStatusFailed
	job.UpdatedAt = q.clock.Now()
	if err := q.store(ctx, job); err != nil {
		return err
	}
	return q.client.LPush(ctx, q.failedKey(), job.ID).Err()
}

// Get loads one job record.
func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListFailed returns up to limit retained failed jobs, newest first.
func (q *RedisQueue) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.client.LRange(ctx, q.failedKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// RequeueFailed puts a failed job back on the pending list with a fresh
// attempt budget.
func (q *RedisQueue) RequeueFailed(ctx context.Context, id string) error {
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != JobStatusFailed {
		return errors.New("job is not failed")
	}
	if err := q.client.LRem(ctx, q.failedKey(), 0, id).Err(); err != nil {
		return err
	}
	job.Status = JobStatusPending
	job.AttemptCount = 0
	job.LastError = ""
	job.UpdatedAt = q.clock.Now()
	if err := q.store(ctx, job); err != nil {
		return err
	}
	return q.client.LPush(ctx, q.pendingKey(), job.ID).Err()
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := q.clock.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: formatMilli(now),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return err
		}
		// another instance may have promoted it first
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) store(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.jobKey(job.ID), raw, 0).Err()
}

func formatMilli(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
