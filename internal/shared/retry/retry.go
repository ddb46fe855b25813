// Package retry provides the retry policy shared by the store and gateway callers.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

// Policy retries operations whose errors are marked retryable,
// with exponential backoff between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor in [0, 1].
	Jitter float64
	// OnRetry, when set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultPolicy returns three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// attempts, or ctx is done. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx, attempts), p.notify)
	if err == nil {
		return nil
	}
	if lastErr != nil && ctx.Err() != nil && err == ctx.Err() {
		return lastErr
	}
	return err
}

func (p Policy) notify(err error, wait time.Duration) {
	if p.OnRetry != nil {
		p.OnRetry(err, wait)
	}
}

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
