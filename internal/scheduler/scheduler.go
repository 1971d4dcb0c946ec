package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one recurring background job. Run receives a context bounded by the
// scheduler's tick timeout; a task that overruns it gets cancelled, not the
// loop.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives recurring tasks on independent tickers. A failing or
// panicking tick is logged and the next tick proceeds; only context
// cancellation stops the loops.
type Scheduler struct {
	tasks       []Task
	logger      *zap.Logger
	tickTimeout time.Duration
}

// New builds a scheduler.
func New(logger *zap.Logger, tickTimeout time.Duration, tasks ...Task) *Scheduler {
	if tickTimeout <= 0 {
		tickTimeout = time.Minute
	}
	return &Scheduler{tasks: tasks, logger: logger, tickTimeout: tickTimeout}
}

// Run starts every task loop and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			s.loop(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	s.logger.Info("scheduler task started",
		zap.String("task", task.Name),
		zap.Duration("interval", task.Interval))
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler task stopped", zap.String("task", task.Name))
			return
		case <-ticker.C:
			s.tick(ctx, task)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, task Task) {
	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	started := time.Now()
	err := s.runGuarded(tickCtx, task)
	elapsed := time.Since(started)
	if err != nil {
		s.logger.Error("scheduler tick failed",
			zap.String("task", task.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	s.logger.Debug("scheduler tick completed",
		zap.String("task", task.Name),
		zap.Duration("elapsed", elapsed))
}

func (s *Scheduler) runGuarded(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
