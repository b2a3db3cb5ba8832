// Package retry wraps fallible operations with bounded exponential-backoff
// retries. The policy is a plain value passed to call sites, so tests can
// inject a zero-delay variant.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how an operation is retried. Any error triggers a retry,
// including validation failures on malformed model output: LLM responses are
// non-deterministic and a re-attempt may succeed with different sampling.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64

	// OnRetry, when set, is notified before each re-attempt.
	OnRetry func(name string)
}

// DefaultPolicy is the policy used around every LLM and provider call.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, Factor: 2.0}
}

// NoDelay retries the same number of times without sleeping between attempts.
func NoDelay(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, Factor: 2.0}
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0
	return b
}

// Do runs op under the policy and returns its result, or the last attempt's
// error once attempts are exhausted.
func Do[T any](ctx context.Context, log *slog.Logger, p Policy, name string, op func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && attempt < attempts {
			if log != nil {
				log.Warn("operation failed, retrying", "op", name, "attempt", attempt, "error", err)
			}
			if p.OnRetry != nil {
				p.OnRetry(name)
			}
		}
		return v, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(uint(attempts)))
}
