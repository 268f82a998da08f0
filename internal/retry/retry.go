// Package retry wraps an engine call with the retry policy from spec
// §4.4.1: retryable failures are retried up to maxRetries times with a
// delay that optionally grows exponentially; non-retryable failures are
// returned verbatim.
package retry

import (
	"context"
	"strings"
	"time"
)

// Policy parameterizes the retry wrapper.
type Policy struct {
	MaxRetries int
	RetryDelay time.Duration
	// Exponential, when true, doubles RetryDelay after each retry
	// (capped at MaxDelay). When false, every retry waits RetryDelay.
	Exponential bool
	MaxDelay    time.Duration
}

// DefaultPolicy returns a conservative policy matching the teacher's
// backoff shape, without a circuit breaker.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  2,
		RetryDelay:  2 * time.Second,
		Exponential: true,
		MaxDelay:    30 * time.Second,
	}
}

// Outcome is the minimal shape a retryable call must report: success and,
// on failure, the error string the retryable predicate inspects.
type Outcome struct {
	Success bool
	Error   string
}

// retryableSignatures are the network-transient error signatures the
// predicate matches, case-insensitively. Grounded in the teacher's
// classifyError string-matching fallback.
var retryableSignatures = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"temporarily unavailable",
	"econnreset",
	"eof",
}

// IsRetryable reports whether errMsg matches the retryable-error
// predicate: network-transient signatures (connection reset, timeout,
// 5xx, rate-limit, etc).
func IsRetryable(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, sig := range retryableSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// Do invokes call up to 1+policy.MaxRetries times. call's Outcome.Success
// short-circuits the loop; a failed Outcome is retried only while
// IsRetryable(Outcome.Error) holds and attempts remain, sleeping between
// attempts per the policy.
func Do(ctx context.Context, policy Policy, call func(ctx context.Context) (Outcome, error)) (Outcome, error) {
	delay := policy.RetryDelay

	var lastOutcome Outcome
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		outcome, err := call(ctx)
		if err != nil {
			return outcome, err
		}
		if outcome.Success {
			return outcome, nil
		}

		lastOutcome, lastErr = outcome, err

		if !IsRetryable(outcome.Error) {
			return outcome, nil
		}
		if attempt == policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		case <-time.After(delay):
		}

		if policy.Exponential {
			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
	}

	return lastOutcome, lastErr
}
