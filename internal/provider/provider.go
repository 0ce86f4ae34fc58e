package provider

import (
	"context"
	"sort"
	"time"

	"StockSentinel/internal/model"
)

// Capability flags advertise what a provider can serve.
type Capability uint8

const (
	CapDaily Capability = 1 << iota
	CapRealtime
	CapChips
)

// Has reports whether all of the given flags are set.
func (c Capability) Has(flag Capability) bool { return c&flag == flag }

// Descriptor is the static metadata of a provider. Priority is fixed at
// construction time; lower numbers are tried first.
type Descriptor struct {
	Name         string
	Priority     int
	Capabilities Capability
}

// Provider is the uniform contract every data source adapter satisfies.
// Implementations must be stateless apart from request pacing and safe to
// call concurrently from multiple workers.
type Provider interface {
	Descriptor() Descriptor

	// FetchDaily returns canonical daily records for [start, end], ordered
	// oldest to newest. An empty result without error means the source
	// answered but had nothing for the range.
	FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, error)

	// FetchRealtime returns an intraday snapshot for one instrument.
	// Providers without CapRealtime return a permanent error.
	FetchRealtime(ctx context.Context, code string) (*model.RealtimeQuote, error)
}

// ChipFetcher is implemented by providers that can serve holding-cost
// distribution data (CapChips).
type ChipFetcher interface {
	FetchChips(ctx context.Context, code string) (*model.ChipDistribution, error)
}

// SortByPriority orders providers ascending by priority, stable for equal
// priorities. The ordering is computed once at startup and never per-request.
func SortByPriority(ps []Provider) []Provider {
	out := make([]Provider, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Descriptor().Priority < out[j].Descriptor().Priority
	})
	return out
}
