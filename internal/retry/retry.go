// Package retry runs an operation a bounded number of times with a fixed
// pause between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Minute
)

type Options struct {
	MaxAttempts int
	Delay       time.Duration

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)

	// Timer replaces the wall-clock timer, for tests.
	Timer backoff.Timer
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error or MaxAttempts
// is reached. op receives the 1-based attempt number. Cancelling ctx stops
// the wait between attempts.
func Do(ctx context.Context, opts Options, op func(ctx context.Context, attempt int) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		attempt   int
		last      error
		permanent bool
	)
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		last = err
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			last, permanent = perr.Err, true
		}
		return err
	}

	var notify backoff.Notify
	if opts.OnRetry != nil {
		notify = func(_ error, wait time.Duration) {
			opts.OnRetry(attempt, last, wait)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Delay), uint64(opts.MaxAttempts-1)),
		ctx,
	)

	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, opts.Timer); err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !permanent && attempt < opts.MaxAttempts {
		return fmt.Errorf("interrupted after %d attempt(s): %w (last error: %v)", attempt, ctxErr, last)
	}
	return &ExhaustedError{Attempts: attempt, Err: last}
}
