package reason

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ppiankov/veritas/internal/model"
)

// ErrRetriesExhausted wraps the last transient error once every attempt has failed
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RetryPolicy retries transient failures with jittered exponential backoff.
// It holds no per-call state and can be shared.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	Retryable   func(error) bool
}

// PolicyFromModel builds the policy from configuration, retrying IsTransient errors
func PolicyFromModel(cfg model.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
		Retryable:   IsTransient,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// onRetry, when non-nil, is called before each wait. Exhaustion returns an
// error wrapping both ErrRetriesExhausted and the last failure.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, onRetry func(err error, attempt int, wait time.Duration)) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	attempt := 0
	var last error
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(err, attempt, wait)
		}
	})

	if err == nil {
		return attempt, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attempt, ctxErr
	}
	if last != nil && retryable(last) {
		return attempt, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, last)
	}
	return attempt, err
}
