package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/queue"
)

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job *queue.Job) error

// Pool runs concurrent workers pulling from the notification queue. Jobs are
// independent: one slow delivery never blocks workers on other jobs.
type Pool struct {
	queue    queue.Queue
	handlers map[queue.JobType]Handler
	backoff  queue.Backoff
	logger   *zap.Logger
	metrics  *observability.Metrics
	size     int
	poll     time.Duration
}

// PoolOptions bundles pool construction parameters.
type PoolOptions struct {
	Queue        queue.Queue
	Handlers     map[queue.JobType]Handler
	Backoff      queue.Backoff
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Size         int
	PollInterval time.Duration
}

// NewPool builds a worker pool.
func NewPool(opts PoolOptions) *Pool {
	size := opts.Size
	if size <= 0 {
		size = 4
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Pool{
		queue:    opts.Queue,
		handlers: opts.Handlers,
		backoff:  opts.Backoff,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		size:     size,
		poll:     poll,
	}
}

// Run starts the workers and blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	p.logger.Info("worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopped", zap.Int("worker_id", id))
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", zap.Int("worker_id", id), zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, id int, job *queue.Job) {
	err := p.dispatch(ctx, job)
	if err == nil {
		if cerr := p.queue.Complete(ctx, job); cerr != nil {
			p.logger.Error("complete failed", zap.String("job_id", job.ID), zap.Error(cerr))
			return
		}
		p.metrics.RecordJobCompleted()
		p.logger.Info("job completed",
			zap.Int("worker_id", id),
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempt", job.AttemptCount))
		return
	}

	job.LastError = err.Error()
	if job.AttemptCount >= job.MaxAttempts {
		if ferr := p.queue.Fail(ctx, job); ferr != nil {
			p.logger.Error("fail mark failed", zap.String("job_id", job.ID), zap.Error(ferr))
			return
		}
		p.metrics.RecordJobFailed()
		p.logger.Error("job failed permanently",
			zap.Int("worker_id", id),
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempts", job.AttemptCount),
			zap.Error(err))
		return
	}

	delay := p.backoff(job.AttemptCount)
	if rerr := p.queue.Retry(ctx, job, delay); rerr != nil {
		p.logger.Error("retry schedule failed", zap.String("job_id", job.ID), zap.Error(rerr))
		return
	}
	p.metrics.RecordJobRetried()
	p.logger.Warn("job retry scheduled",
		zap.Int("worker_id", id),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempt", job.AttemptCount),
		zap.Duration("delay", delay),
		zap.Error(err))
}

func (p *Pool) dispatch(ctx context.Context, job *queue.Job) error {
	handler, ok := p.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}
	return handler(ctx, job)
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.poll):
	}
}
