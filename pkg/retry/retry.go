// Package retry runs calls to external services under a per-attempt timeout
// with a bounded number of retries.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sweetpotato0/travel-router/errors"
)

// Policy bounds a call. Retries counts extra attempts after the first one.
type Policy struct {
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
	Logger    *slog.Logger
}

// DefaultTimeout applies when a policy leaves Timeout unset.
const DefaultTimeout = 30 * time.Second

// Default returns the timeout-and-retry-once policy used for model, embedding and index calls.
func Default() Policy {
	return Policy{Timeout: DefaultTimeout, Retries: 1, BaseDelay: 100 * time.Millisecond}
}

// Do executes fn until it succeeds or the retry budget is spent. Each attempt gets its own
// deadline. When every attempt fails the returned error wraps errors.ErrServiceUnavailable
// and the last failure. Cancellation of the parent context stops retrying immediately.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := max(p.Retries, 0)
	delay := p.BaseDelay

	var lastErr error
	for attempt := range retries + 1 {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if attempt == retries {
			break
		}
		if p.Logger != nil {
			p.Logger.Warn("external call failed, retrying", "op", op, "attempt", attempt+1, "error", lastErr)
		}
		if delay > 0 {
			jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter only
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay + jitter):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempt(s): %w: %w", op, retries+1, errors.ErrServiceUnavailable, lastErr)
}
