package saga

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffKind selects the delay progression between attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy bounds the attempts of an activity's forward step.
// Only failures accepted by IsRetryable (IsTransient by default) are retried;
// exhausting the attempts surfaces the last failure.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Backoff         BackoffKind
	IsRetryable     func(error) bool
}

// DefaultRetryPolicy is 3 attempts with exponential backoff starting at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Backoff:         BackoffExponential,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error,
// or the attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = IsTransient
	}
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p RetryPolicy) backoff() retry.Backoff {
	interval := p.InitialInterval
	if interval <= 0 {
		interval = time.Millisecond
	}

	var b retry.Backoff
	switch p.Backoff {
	case BackoffFixed:
		b = retry.NewConstant(interval)
	default:
		b = retry.NewExponential(interval)
	}
	if p.MaxInterval > 0 {
		b = retry.WithCappedDuration(p.MaxInterval, b)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}
