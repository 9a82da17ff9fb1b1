// Package pollloop is a fixed-interval, cancellable poll loop adapted from
// the exponential-backoff shape of pkg/poll's BackoffWithContext: the same
// "call operation, sleep, repeat up to MaxSteps, bail out on ctx" skeleton,
// specialized to a constant interval (no factor growth, no jitter) because
// the two callers — reboot recheck and inter-batch pause — both want a
// steady per-tick cadence with a per-tick observable callback, not backoff.
package pollloop

import (
	"context"
	"errors"
	"time"
)

// ErrMaxSteps is returned when Run exhausts MaxSteps without the operation
// reporting success.
var ErrMaxSteps = errors.New("pollloop: max steps exceeded")

// ErrInvalidInterval is returned when Config.Interval is non-positive.
var ErrInvalidInterval = errors.New("pollloop: interval must be positive")

// Config parameterizes a fixed-interval poll.
type Config struct {
	// Interval between ticks; the operation is tried immediately, then
	// again after each Interval elapses.
	Interval time.Duration
	// MaxSteps bounds the number of attempts. Zero means unbounded
	// (the caller relies entirely on ctx or the operation's own error).
	MaxSteps int
	// OnTick, if set, is invoked after every unsuccessful attempt with
	// the 1-based step number just completed and the number remaining.
	// Used to drive countdown events (batch_waiting) and progress logs.
	OnTick func(step, remaining int)
}

// Operation is tried once per tick. It returns (true, nil) on success,
// (false, nil) to keep polling, or a non-nil error to abort immediately.
type Operation func(ctx context.Context) (bool, error)

// Run executes op on a fixed cadence until it reports success, returns an
// error, MaxSteps is exhausted, or ctx is done — whichever comes first.
// Cancellation is checked both before dialing out and during the sleep
// between ticks, so a caller gets a response within one Interval.
func Run(ctx context.Context, cfg Config, op Operation) error {
	if cfg.Interval <= 0 {
		return ErrInvalidInterval
	}

	for step := 1; cfg.MaxSteps == 0 || step <= cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := op(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := 0
		if cfg.MaxSteps > 0 {
			remaining = cfg.MaxSteps - step
		}
		if cfg.OnTick != nil {
			cfg.OnTick(step, remaining)
		}

		if cfg.MaxSteps > 0 && step == cfg.MaxSteps {
			return ErrMaxSteps
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrMaxSteps
}

// StopFunc cancels an in-flight Run started via RunAsync.
type StopFunc func()

// RunAsync starts Run in a goroutine and returns a StopFunc that cancels
// it plus a channel receiving the terminal error (nil on success). Used by
// callers that need to hold a cancel handle alongside other rollout state
// (the rollout engine's inter-batch pause, which stops it on cancellation).
func RunAsync(parent context.Context, cfg Config, op Operation) (<-chan error, StopFunc) {
	ctx, cancel := context.WithCancel(parent)
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- Run(ctx, cfg, op)
	}()
	return resultCh, cancel
}
