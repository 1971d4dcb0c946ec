package queue

import (
	"context"
	"math"
	"time"
)

// Queue is the durable notification job queue. Dequeue returns nil when no
// job is ready; callers poll. Delivery is at-least-once: a dequeued job that
// is neither completed, retried nor failed may be delivered again.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	Fail(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	ListFailed(ctx context.Context, limit int) ([]Job, error)
	RequeueFailed(ctx context.Context, id string) error
}

// Backoff computes the delay before a given retry attempt.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles the base delay per attempt, capped.
func ExponentialBackoff(base, cap time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		if delay > cap || delay <= 0 {
			return cap
		}
		return delay
	}
}
