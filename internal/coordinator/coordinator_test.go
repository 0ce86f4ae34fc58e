package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockSentinel/internal/model"
	"StockSentinel/internal/provider"
)

// fakeProvider is a controllable in-memory adapter, in the same spirit as
// the hand-written mocks the HTTP adapters are tested without.
type fakeProvider struct {
	name     string
	priority int

	mu         sync.Mutex
	dailyCalls int
	daily      func(code string) ([]model.DailyRecord, error)
	realtime   func(code string) (*model.RealtimeQuote, error)
}

func (f *fakeProvider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:         f.name,
		Priority:     f.priority,
		Capabilities: provider.CapDaily | provider.CapRealtime,
	}
}

func (f *fakeProvider) FetchDaily(_ context.Context, code string, _, _ time.Time) ([]model.DailyRecord, error) {
	f.mu.Lock()
	f.dailyCalls++
	f.mu.Unlock()
	if f.daily == nil {
		return nil, provider.Permanent(f.name, fmt.Errorf("not configured"))
	}
	return f.daily(code)
}

func (f *fakeProvider) FetchRealtime(_ context.Context, code string) (*model.RealtimeQuote, error) {
	if f.realtime == nil {
		return nil, provider.Permanent(f.name, fmt.Errorf("not supported"))
	}
	return f.realtime(code)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dailyCalls
}

func oneRecord(code, source string) []model.DailyRecord {
	return []model.DailyRecord{{
		Code:      code,
		TradeDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Open:      10, High: 11, Low: 9.5, Close: 10.5,
		Volume: 100000, Amount: 1.05e6,
		Source: source,
	}}
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.5}
}

func fetchWindow() (time.Time, time.Time) {
	end := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -30), end
}

func TestPriorityOrderShortCircuits(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "a"), nil
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "b"), nil
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()
	records, source, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.NoError(t, err)
	require.Equal(t, "a", source)
	require.Len(t, records, 1)
	require.Equal(t, 0, b.calls(), "lower-priority provider must never be invoked after a success")
}

func TestFailoverAfterTransientExhaustion(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(string) ([]model.DailyRecord, error) {
		return nil, provider.Transient("a", fmt.Errorf("rate limited"))
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "b"), nil
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()
	records, source, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.NoError(t, err)
	require.Equal(t, "b", source)
	require.Equal(t, "b", records[0].Source)
	require.Equal(t, 3, a.calls(), "transient failures consume the full retry budget")
}

func TestPermanentFailureSkipsWithoutRetry(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(string) ([]model.DailyRecord, error) {
		return nil, provider.Permanent("a", fmt.Errorf("unknown instrument"))
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "b"), nil
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()
	_, source, err := c.FetchDaily(context.Background(), "000001", start, end)
	require.NoError(t, err)
	require.Equal(t, "b", source)
	require.Equal(t, 1, a.calls(), "permanent failures must not be retried")
}

func TestEmptyResultMovesToNextProvider(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(string) ([]model.DailyRecord, error) {
		return nil, nil
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "b"), nil
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()
	_, source, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.NoError(t, err)
	require.Equal(t, "b", source)
	require.Equal(t, 1, a.calls())
}

func TestAllProvidersFailedDiagnostics(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(string) ([]model.DailyRecord, error) {
		return nil, provider.Transient("a", fmt.Errorf("timeout"))
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(string) ([]model.DailyRecord, error) {
		return nil, provider.Permanent("b", fmt.Errorf("no data"))
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()
	_, _, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.Error(t, err)

	var all *AllFailedError
	require.ErrorAs(t, err, &all)
	require.Equal(t, "600519", all.Code)
	require.Len(t, all.Attempts, 2)
	require.Equal(t, "a", all.Attempts[0].Provider)
	require.Equal(t, 2, all.Attempts[0].Retries)
	require.Equal(t, "b", all.Attempts[1].Provider)
	require.Equal(t, 0, all.Attempts[1].Retries)
	require.Contains(t, err.Error(), "timeout")
	require.Contains(t, err.Error(), "no data")
}

// Scenario from the acceptance checklist: provider a errors permanently for
// 000001 but serves 600519; provider b serves 000001.
func TestMixedUniverseFailover(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(code string) ([]model.DailyRecord, error) {
		if code == "000001" {
			return nil, provider.Permanent("a", fmt.Errorf("unknown instrument %s", code))
		}
		return oneRecord(code, "a"), nil
	}}
	b := &fakeProvider{name: "b", priority: 1, daily: func(code string) ([]model.DailyRecord, error) {
		return oneRecord(code, "b"), nil
	}}

	c := New([]provider.Provider{a, b}, nil, testPolicy())
	start, end := fetchWindow()

	_, source, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.NoError(t, err)
	require.Equal(t, "a", source)

	_, source, err = c.FetchDaily(context.Background(), "000001", start, end)
	require.NoError(t, err)
	require.Equal(t, "b", source)
}

func TestRealtimeUsesSeparateList(t *testing.T) {
	dailyOnly := &fakeProvider{name: "bulk", priority: 0}
	rt := &fakeProvider{name: "fast", priority: 1, realtime: func(code string) (*model.RealtimeQuote, error) {
		return &model.RealtimeQuote{Code: code, Price: 10.5}, nil
	}}

	c := New([]provider.Provider{dailyOnly, rt}, []provider.Provider{rt}, testPolicy())
	q, source, err := c.FetchRealtime(context.Background(), "600519")
	require.NoError(t, err)
	require.Equal(t, "fast", source)
	require.Equal(t, 10.5, q.Price)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Jitter: 0}
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
	require.Equal(t, 8*time.Second, p.Delay(3))
	require.Equal(t, 10*time.Second, p.Delay(4), "delay is capped at MaxDelay")

	jittered := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := jittered.Delay(1)
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestUnclassifiedErrorIsRetried(t *testing.T) {
	a := &fakeProvider{name: "a", priority: 0, daily: func(string) ([]model.DailyRecord, error) {
		return nil, errors.New("connection reset by peer")
	}}

	c := New([]provider.Provider{a}, nil, testPolicy())
	start, end := fetchWindow()
	_, _, err := c.FetchDaily(context.Background(), "600519", start, end)
	require.Error(t, err)
	require.Equal(t, 3, a.calls())
}
