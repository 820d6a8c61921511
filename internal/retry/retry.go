// Package retry runs external calls with a per-attempt timeout and bounded
// exponential backoff. Only transient failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"equityBot/internal/ports"
)

// Policy configures retries for one class of external call.
type Policy struct {
	Attempts       int           // Total attempts including the first, >= 1
	AttemptTimeout time.Duration // Deadline applied to each attempt, 0 for none
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used when a zero Policy is supplied.
var DefaultPolicy = Policy{
	Attempts:       3,
	AttemptTimeout: 10 * time.Second,
	MinBackoff:     250 * time.Millisecond,
	MaxBackoff:     4 * time.Second,
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = DefaultPolicy.MinBackoff
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	return p
}

// Do calls fn until it succeeds, fails with a non-transient error, the attempts
// are exhausted, or ctx is done. The last error is returned wrapped with op.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	p = p.normalized()
	b := &backoff.Backoff{Min: p.MinBackoff, Max: p.MaxBackoff, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, ctxErr)
		}

		err = runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		if !ports.IsTransient(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s canceled during backoff: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, err)
}

// Value is Do for calls that return a value.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(attemptCtx)
	// A per-attempt deadline is a transient timeout unless the parent is done.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("attempt timed out after %s: %w: %w", timeout, ports.ErrTransientIO, err)
	}
	return err
}
