// ABOUTME: Retry policy with exponential backoff and jitter for re-issuing stream requests.
// ABOUTME: Retries consult IsRetryable through errors.As and honor RetryAfter hints from rate limits.

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures how a failed request is re-issued.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// Jitter randomizes each delay between zero and the computed backoff.
	Jitter bool

	// OnRetry, when set, runs before each retry with the triggering error,
	// the zero-based attempt that failed, and the delay about to be applied.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// NoRetryPolicy never retries.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

// DefaultRetryPolicy retries twice with 1s base delay, 2x backoff, 60s cap, and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// AggressiveRetryPolicy retries five times starting at 500ms with a 30s cap.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryPolicyByName resolves a configured policy name: none, standard, or aggressive.
func RetryPolicyByName(name string) (RetryPolicy, error) {
	switch name {
	case "", "none":
		return NoRetryPolicy(), nil
	case "standard":
		return DefaultRetryPolicy(), nil
	case "aggressive":
		return AggressiveRetryPolicy(), nil
	default:
		return RetryPolicy{}, fmt.Errorf("unknown retry policy %q (want none, standard, or aggressive)", name)
	}
}

// CalculateDelay returns the backoff before retry number attempt, capped at MaxDelay.
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := time.Duration(d)
	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}

// ShouldRetry reports whether err warrants another attempt after attempt failed.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	return IsRetryable(err)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, runs out
// of retries, or ctx is done. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !policy.ShouldRetry(err, attempt) {
			return err
		}

		delay := applyRetryAfter(err, policy.CalculateDelay(attempt))
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// applyRetryAfter returns the larger of the computed delay and the error's RetryAfter hint.
func applyRetryAfter(err error, delay time.Duration) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter != nil {
		if hint := time.Duration(*pe.RetryAfter * float64(time.Second)); hint > delay {
			return hint
		}
	}
	return delay
}
