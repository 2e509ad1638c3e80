package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
	retryMaxElapsed      = 30 * time.Second
)

// withRetry runs a provider call with bounded exponential backoff.
// Errors tagged ErrFatalAPI abort immediately; everything else is
// treated as transient. The op must already be wrapped with
// wrapFatalError so the classification happens per attempt.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = retryMaxElapsed
	return retryWithPolicy(op, backoff.WithContext(policy, ctx))
}

func retryWithPolicy[T any](op func() (T, error), policy backoff.BackOff) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && errors.Is(err, ErrFatalAPI) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}
