package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFailingTickDoesNotStopLoop(t *testing.T) {
	var runs int64
	sched := New(zap.NewNop(), time.Second, Task{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, sched.Run(ctx))
	require.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(2))
}

func TestPanickingTickIsRecovered(t *testing.T) {
	var runs int64
	sched := New(zap.NewNop(), time.Second, Task{
		Name:     "panicky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			panic("unexpected")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, sched.Run(ctx))
	require.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(2))
}

func TestTasksRunIndependently(t *testing.T) {
	var fast, slow int64
	sched := New(zap.NewNop(), time.Second,
		Task{
			Name:     "fast",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&fast, 1)
				return nil
			},
		},
		Task{
			Name:     "slow",
			Interval: 40 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&slow, 1)
				return nil
			},
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, sched.Run(ctx))
	require.Greater(t, atomic.LoadInt64(&fast), atomic.LoadInt64(&slow))
}

func TestTickContextHonorsTimeout(t *testing.T) {
	timedOut := make(chan struct{}, 1)
	sched := New(zap.NewNop(), 10*time.Millisecond, Task{
		Name:     "overrunner",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				select {
				case timedOut <- struct{}{}:
				default:
				}
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, sched.Run(ctx))

	select {
	case <-timedOut:
	default:
		t.Fatal("tick context never timed out")
	}
}
