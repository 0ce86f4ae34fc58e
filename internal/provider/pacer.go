package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// pacer enforces a randomized minimum interval between outbound calls to
// one source. The jitter decorrelates request timing across workers so the
// free endpoints see human-looking traffic instead of a burst every N
// seconds.
type pacer struct {
	minInterval time.Duration
	maxInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

func newPacer(min, max time.Duration) *pacer {
	if max < min {
		max = min
	}
	return &pacer{minInterval: min, maxInterval: max}
}

// wait blocks until the randomized interval since the previous call has
// elapsed, or the context is canceled.
func (p *pacer) wait(ctx context.Context) error {
	if p == nil || p.minInterval <= 0 {
		return nil
	}
	interval := p.minInterval
	if span := p.maxInterval - p.minInterval; span > 0 {
		interval += time.Duration(rand.Int63n(int64(span)))
	}

	p.mu.Lock()
	wait := time.Until(p.last.Add(interval))
	p.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}
