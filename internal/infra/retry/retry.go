package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is the single retry/backoff abstraction shared by the external
// fetcher and the job queue. The curve is full-jitter exponential:
// a uniformly random delay in [0, min(cap, base*2^attempt)).
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

func NewPolicy(maxAttempts int, base, cap time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}
	return Policy{MaxAttempts: maxAttempts, Base: base, Cap: cap}
}

// Delay returns the backoff before the given zero-based retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Cap {
		d = p.Cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// Permanent wraps an error to stop further attempts.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to MaxAttempts times, sleeping the jittered backoff between
// attempts. Context cancellation and Permanent errors end the loop early.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return last
}
