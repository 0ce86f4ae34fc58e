package coordinator

import (
	"math/rand"
	"time"
)

// RetryPolicy is the reusable per-provider retry budget: how many times a
// transient failure is retried on the same adapter, and how the delay grows
// between attempts. Testable in isolation from any network call.
type RetryPolicy struct {
	MaxAttempts int           // total attempts per provider, including the first
	BaseDelay   time.Duration // delay after the first failed attempt
	MaxDelay    time.Duration // cap on the exponential growth
	Jitter      float64       // fraction of the delay randomized away, 0..1
}

// DefaultRetryPolicy mirrors the pacing the free sources tolerate.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
	}
}

// Delay returns the backoff before retry number attempt (1-based: attempt 1
// is the delay after the first failure). Exponential with randomized jitter
// so concurrent workers do not produce synchronized retry storms.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		// Spread the delay across [d*(1-jitter), d].
		span := float64(d) * p.Jitter
		d = d - time.Duration(rand.Float64()*span)
	}
	return d
}
