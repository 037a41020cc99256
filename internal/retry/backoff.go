package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxShift keeps base * 2^attempt from overflowing time.Duration.
const maxShift = 30

// ErrBudgetExhausted is returned when the next backoff would not fit in the
// time left before the deadline.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt: base * 2^attempt
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt > maxShift {
		attempt = maxShift
	}
	return base * (1 << attempt)
}

// Policy describes how many times an operation is attempted and how long
// the whole sequence may take.
type Policy struct {
	MaxAttempts    int           // total attempts, including the first
	BaseDelay      time.Duration // delay before the first retry
	MaxDelay       time.Duration // cap for a single delay; 0 means uncapped
	Jitter         float64       // +/- fraction applied to each delay, 0 disables
	Budget         time.Duration // wall-clock limit for attempts and delays; 0 means caller deadline only
	AttemptTimeout time.Duration // limit for one attempt; 0 means whatever budget remains
}

// Delay returns the backoff inserted after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := ExponentialBackoff(attempt, p.BaseDelay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		spread := (rand.Float64()*2 - 1) * p.Jitter * float64(d)
		d += time.Duration(spread)
	}
	if d < 0 {
		return 0
	}
	return d
}

// Op is one attempt. attempt is zero-based.
type Op func(ctx context.Context, attempt int) error

// Do runs op until it succeeds, fails with an error retryable rejects, runs
// out of attempts, or the deadline leaves no room for another backoff. It
// returns the number of attempts made and the final error.
//
// The deadline is the earlier of the caller's and now+Budget. Each attempt
// runs under that deadline, so attempts and delays together never outlive it.
// Cancellation interrupts a pending delay immediately.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op Op) (int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Budget)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, stopped(err, lastErr)
		}

		err := runAttempt(ctx, p.AttemptTimeout, attempt, op)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt + 1, stopped(ctxErr, err)
		}
		if !retryable(err) {
			return attempt + 1, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			return attempt + 1, fmt.Errorf("%w: %w", ErrBudgetExhausted, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, stopped(ctx.Err(), err)
		case <-timer.C:
		}
	}
	return p.MaxAttempts, lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, op Op) error {
	if timeout <= 0 {
		return op(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx, attempt)
}

func stopped(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %w)", ctxErr, lastErr)
}
