package provider

import (
	"log"
	"strings"
	"time"
)

// Options is the immutable startup configuration the adapter set is built
// from. Priority ordering is decided here exactly once; nothing consults
// global state at call time.
type Options struct {
	TushareToken string
	Proxy        string
	PaceMin      time.Duration
	PaceMax      time.Duration
}

// Build constructs the configured adapters and returns the daily-history
// list and the realtime list, both in ascending priority order. The
// realtime list is the subset of sources that can answer single-instrument
// quotes with low latency.
func Build(opts Options) (daily, realtime []Provider) {
	if opts.PaceMin <= 0 {
		opts.PaceMin = 1 * time.Second
	}
	if opts.PaceMax < opts.PaceMin {
		opts.PaceMax = opts.PaceMin + 2*time.Second
	}

	all := []Provider{
		NewEastmoney(opts.Proxy, opts.PaceMin, opts.PaceMax),
		NewSina(opts.Proxy, opts.PaceMin, opts.PaceMax),
		NewTushare(opts.TushareToken, opts.Proxy),
		NewYahoo(opts.Proxy, opts.PaceMin, opts.PaceMax),
	}

	daily = SortByPriority(all)
	for _, p := range daily {
		if p.Descriptor().Capabilities.Has(CapRealtime) {
			realtime = append(realtime, p)
		}
	}

	names := make([]string, len(daily))
	for i, p := range daily {
		d := p.Descriptor()
		names[i] = d.Name
	}
	log.Printf("[INFO] providers initialized (by priority): %s", strings.Join(names, ", "))
	return daily, realtime
}
