package coordinator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"StockSentinel/internal/model"
	"StockSentinel/internal/provider"
)

// Outcome labels for one provider's overall result within a request.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Attempt records how one provider fared during a single coordinator
// invocation. Kept only for logging and AllFailedError diagnostics, never
// persisted.
type Attempt struct {
	Provider string
	Outcome  string
	Retries  int // transient retries spent beyond the first call
	Latency  time.Duration
	Err      error
}

// AllFailedError is returned when every configured provider was exhausted
// for a request. It carries the per-provider failure reasons.
type AllFailedError struct {
	Code     string
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		if a.Err != nil {
			reasons[i] = fmt.Sprintf("%s: %v", a.Provider, a.Err)
		} else {
			reasons[i] = fmt.Sprintf("%s: %s", a.Provider, a.Outcome)
		}
	}
	return fmt.Sprintf("all providers failed for %s: %s", e.Code, strings.Join(reasons, "; "))
}

// Coordinator tries providers strictly in ascending priority order and
// returns the first usable result. Daily history and realtime quotes use
// separate orderings: the realtime list carries only the low-latency
// single-instrument sources. Safe for concurrent use; all per-request state
// lives on the stack.
type Coordinator struct {
	daily    []provider.Provider
	realtime []provider.Provider
	policy   RetryPolicy
}

// New builds a Coordinator over pre-ordered provider lists. Ordering is the
// caller's startup decision; the Coordinator never reorders.
func New(daily, realtime []provider.Provider, policy RetryPolicy) *Coordinator {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	return &Coordinator{daily: daily, realtime: realtime, policy: policy}
}

// FetchDaily returns canonical daily records for [start, end] from the
// first provider that produces a non-empty result, along with that
// provider's name. On success lower-priority providers are never invoked.
func (c *Coordinator) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, string, error) {
	var attempts []Attempt

	for _, p := range c.daily {
		name := p.Descriptor().Name
		var records []model.DailyRecord
		att := c.tryProvider(ctx, name, func(ctx context.Context) (bool, error) {
			rs, err := p.FetchDaily(ctx, code, start, end)
			if err != nil {
				return false, err
			}
			if len(rs) == 0 {
				return false, nil
			}
			records = rs
			return true, nil
		})
		attempts = append(attempts, att)

		if att.Outcome == OutcomeSuccess {
			log.Printf("[INFO] [%s] fetched %d daily records for %s (%.2fs)",
				name, len(records), code, att.Latency.Seconds())
			return records, name, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		log.Printf("[WARN] [%s] daily fetch for %s: %s (retries=%d): %v",
			name, code, att.Outcome, att.Retries, att.Err)
	}

	return nil, "", &AllFailedError{Code: code, Attempts: attempts}
}

// FetchRealtime returns an intraday snapshot from the realtime ordering.
func (c *Coordinator) FetchRealtime(ctx context.Context, code string) (*model.RealtimeQuote, string, error) {
	var attempts []Attempt

	for _, p := range c.realtime {
		name := p.Descriptor().Name
		var quote *model.RealtimeQuote
		att := c.tryProvider(ctx, name, func(ctx context.Context) (bool, error) {
			q, err := p.FetchRealtime(ctx, code)
			if err != nil {
				return false, err
			}
			if q == nil {
				return false, nil
			}
			quote = q
			return true, nil
		})
		attempts = append(attempts, att)

		if att.Outcome == OutcomeSuccess {
			return quote, name, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		log.Printf("[WARN] [%s] realtime fetch for %s failed: %v", name, code, att.Err)
	}

	return nil, "", &AllFailedError{Code: code, Attempts: attempts}
}

// FetchChips asks the providers advertising chip-distribution capability,
// in daily-priority order.
func (c *Coordinator) FetchChips(ctx context.Context, code string) (*model.ChipDistribution, string, error) {
	var attempts []Attempt

	for _, p := range c.daily {
		cf, ok := p.(provider.ChipFetcher)
		if !ok || !p.Descriptor().Capabilities.Has(provider.CapChips) {
			continue
		}
		name := p.Descriptor().Name
		var chips *model.ChipDistribution
		att := c.tryProvider(ctx, name, func(ctx context.Context) (bool, error) {
			ch, err := cf.FetchChips(ctx, code)
			if err != nil {
				return false, err
			}
			if ch == nil {
				return false, nil
			}
			chips = ch
			return true, nil
		})
		attempts = append(attempts, att)

		if att.Outcome == OutcomeSuccess {
			return chips, name, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}

	return nil, "", &AllFailedError{Code: code, Attempts: attempts}
}

// tryProvider runs one provider under the retry policy: transient failures
// are retried with backoff until the budget is spent, permanent failures
// and empty results end the provider's turn immediately.
func (c *Coordinator) tryProvider(ctx context.Context, name string, call func(context.Context) (bool, error)) Attempt {
	start := time.Now()
	att := Attempt{Provider: name}

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		ok, err := call(ctx)
		if err == nil {
			if !ok {
				att.Outcome = OutcomeEmpty
				att.Err = fmt.Errorf("empty result")
			} else {
				att.Outcome = OutcomeSuccess
			}
			break
		}

		att.Err = err
		att.Outcome = OutcomeError
		if ctx.Err() != nil || !provider.IsTransient(err) || attempt == c.policy.MaxAttempts {
			break
		}

		att.Retries++
		delay := c.policy.Delay(attempt)
		log.Printf("[WARN] [%s] transient failure (attempt %d/%d), retrying in %.1fs: %v",
			name, attempt, c.policy.MaxAttempts, delay.Seconds(), err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			att.Err = ctx.Err()
		case <-timer.C:
			timer.Stop()
			continue
		}
		break
	}

	att.Latency = time.Since(start)
	return att
}
