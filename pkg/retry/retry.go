// Package retry runs an operation with bounded exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is matched by the error returned once MaxRetries is used up.
var ErrExhausted = errors.New("retries exhausted")

// Policy controls how many times and how long to back off.
// The sleep before retry n is Jitter() * 2^n * BaseDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     func() float64
	Sleep      func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy allows 10 retries with a one second base delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 10,
		BaseDelay:  time.Second,
	}
}

// Notify is called before each backoff sleep.
type Notify func(retry int, delay time.Duration, err error)

type retriableError struct {
	err error
}

func (e *retriableError) Error() string { return e.err.Error() }
func (e *retriableError) Unwrap() error { return e.err }

// Retriable marks err so that Do schedules another attempt.
func Retriable(err error) error {
	if err == nil {
		return nil
	}
	return &retriableError{err: err}
}

// IsRetriable reports whether err was marked with Retriable.
func IsRetriable(err error) bool {
	var r *retriableError
	return errors.As(err, &r)
}

// ExhaustedError is returned when the last allowed retry also failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Backoff returns the sleep before retry n (n starts at 1).
func (p Policy) Backoff(n int) time.Duration {
	jitter := rand.Float64
	if p.Jitter != nil {
		jitter = p.Jitter
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := jitter() * math.Pow(2, float64(n)) * float64(base)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns an error not marked Retriable, or
// the retry budget runs out. attempt starts at 1.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, notify Notify) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !IsRetriable(err) {
			return err
		}

		retry := attempt
		if retry > p.MaxRetries {
			return &ExhaustedError{Attempts: attempt, Last: errors.Unwrap(err)}
		}

		delay := p.Backoff(retry)
		if notify != nil {
			notify(retry, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, err)
		}
	}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
