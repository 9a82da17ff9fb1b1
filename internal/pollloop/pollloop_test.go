package pollloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunImmediateSuccess(t *testing.T) {
	ctx := context.Background()
	err := Run(ctx, Config{Interval: 10 * time.Millisecond}, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
}

func TestRunSucceedsAfterRetries(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	err := Run(ctx, Config{Interval: 5 * time.Millisecond, MaxSteps: 10}, func(context.Context) (bool, error) {
		attempts++
		return attempts >= 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRunMaxStepsExceeded(t *testing.T) {
	ctx := context.Background()
	err := Run(ctx, Config{Interval: 5 * time.Millisecond, MaxSteps: 3}, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrMaxSteps)
}

func TestRunPropagatesOperationError(t *testing.T) {
	opErr := errors.New("fatal")
	ctx := context.Background()
	err := Run(ctx, Config{Interval: 5 * time.Millisecond}, func(context.Context) (bool, error) {
		return false, opErr
	})
	require.ErrorIs(t, err, opErr)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Config{Interval: time.Second, MaxSteps: 100}, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidInterval(t *testing.T) {
	err := Run(context.Background(), Config{}, func(context.Context) (bool, error) { return true, nil })
	require.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRunOnTickCountdown(t *testing.T) {
	var ticks []int
	ctx := context.Background()
	_ = Run(ctx, Config{
		Interval: 1 * time.Millisecond,
		MaxSteps: 2,
		OnTick: func(step, remaining int) {
			ticks = append(ticks, remaining)
		},
	}, func(context.Context) (bool, error) { return false, nil })
	require.Equal(t, []int{1, 0}, ticks)
}

func TestRunAsyncCancel(t *testing.T) {
	resultCh, stop := RunAsync(context.Background(), Config{Interval: time.Second, MaxSteps: 100}, func(context.Context) (bool, error) {
		return false, nil
	})
	stop()
	select {
	case err := <-resultCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunAsync did not observe cancellation in time")
	}
}
