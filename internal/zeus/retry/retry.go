// Package retry implements the bounded exponential backoff with
// jitter used to schedule envelope retries.
package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Base and Cap bound the exponential curve: delay_k = min(Base*2^k, Cap).
const (
	Base                 = 2 * time.Second
	Cap                  = 60 * time.Second
	RandomizationFactor  = 0.2 // ±20% jitter
)

// AttemptsNotify is the attempt count after which an operator
// notification is emitted for a still-blocked envelope.
const AttemptsNotify = 3

// ReresolveAfter is how long an envelope must have been queued before
// recipient resolution is re-run even if a cached result exists.
const ReresolveAfter = 60 * time.Second

// Delay returns the jittered retry delay for the given zero-based
// attempt count. The exponential curve itself is computed directly
// (it is a pure function of attempt, not of wall-clock elapsed time,
// so the stateful ExponentialBackOff timer is not a fit); the
// randomization is delegated to a fresh backoff.ExponentialBackOff
// pinned to that curve's value, reusing the library's jitter rather
// than hand-rolling one.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	raw := float64(Base) * math.Pow(2, float64(attempt))
	if raw > float64(Cap) || math.IsInf(raw, 1) {
		raw = float64(Cap)
	}
	interval := time.Duration(raw)

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxInterval(interval),
		backoff.WithMultiplier(1),
		backoff.WithRandomizationFactor(RandomizationFactor),
	)
	return bo.NextBackOff()
}
