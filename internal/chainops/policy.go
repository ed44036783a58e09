// Package chainops is the shared transaction engine: every read or write
// against the chain flows through here, so retry, backoff, RPC failover,
// circuit breaking, and gas strategy live in one place instead of being
// reimplemented at each call site.
package chainops

import (
	"strconv"
	"time"

	"github.com/fabhost/agent/infrastructure/resilience"
)

// RetryPolicy enumerates every knob spec.md's on-chain operator names for a
// Send call.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	Jitter            float64 // 0..1
	GasPriceMultiplier float64
	Confirmations     uint64
	Deadline          time.Duration
	Cancel            <-chan struct{}
	// Classify overrides the default retry classifier when set.
	Classify func(error) bool
}

// DefaultCircuitBreakerConfig matches the defaults spec.md names for the
// shared breaker: 3 consecutive failures to trip, 5s before trying
// HALF_OPEN, at most 2 concurrent calls while half-open.
func DefaultCircuitBreakerConfig() resilience.Config {
	return resilience.Config{
		MaxFailures: 3,
		Timeout:     5 * time.Second,
		HalfOpenMax: 2,
	}
}

// DefaultRetryPolicy matches the defaults spec.md names: 3 attempts, 100ms
// base delay doubling up to 10s, no jitter, 10% gas bump per retry, 1
// confirmation.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		BaseDelay:          100 * time.Millisecond,
		MaxDelay:           10 * time.Second,
		BackoffFactor:      2,
		Jitter:             0,
		GasPriceMultiplier: 1.1,
		Confirmations:      1,
		Deadline:           60 * time.Second,
	}
}

// delayForAttempt implements spec.md's backoff formula:
// min(maxDelay, base*factor^(attempt-1)), then jitters into
// [delay*(1-j), delay*(1+j)].
func delayForAttempt(p RetryPolicy, attempt int) time.Duration {
	raw := float64(p.BaseDelay) * pow(p.BackoffFactor, attempt-1)
	capped := raw
	if float64(p.MaxDelay) > 0 && capped > float64(p.MaxDelay) {
		capped = float64(p.MaxDelay)
	}
	if p.Jitter <= 0 {
		return time.Duration(capped)
	}
	lo := capped * (1 - p.Jitter)
	hi := capped * (1 + p.Jitter)
	return time.Duration(lo + (hi-lo)*randFraction())
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// SendResult is what a successful Send returns.
type SendResult struct {
	TxHash      string
	Confirmed   bool
	BlockNumber *uint64
	GasUsed     *uint64
	// Duplicate reports a revert that matched the operator's configured
	// duplicate-settlement substring: treated as success-equivalent rather
	// than a failure. See OperatorConfig.DuplicateSettlementSubstring.
	Duplicate bool
}

// RetryError is returned when a Send gives up: either its retry budget is
// exhausted or an attempt failed with an error the classifier does not
// retry. Attempts is the number of attempts actually made.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return "chainops: send failed after " + strconv.Itoa(e.Attempts) + " attempts: " + e.Last.Error()
}

func (e *RetryError) Unwrap() error { return e.Last }
