package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockSentinel/internal/analyzer"
	"StockSentinel/internal/model"
)

// fakeFetcher serves canned daily windows per code and counts invocations.
type fakeFetcher struct {
	mu         sync.Mutex
	dailyCalls map[string]int
	daily      func(code string) ([]model.DailyRecord, error)

	maxInFlight int
	inFlight    int
}

func newFakeFetcher(daily func(code string) ([]model.DailyRecord, error)) *fakeFetcher {
	return &fakeFetcher{dailyCalls: make(map[string]int), daily: daily}
}

func (f *fakeFetcher) FetchDaily(_ context.Context, code string, _, _ time.Time) ([]model.DailyRecord, string, error) {
	f.mu.Lock()
	f.dailyCalls[code]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	records, err := f.daily(code)
	return records, "fake", err
}

func (f *fakeFetcher) FetchRealtime(_ context.Context, code string) (*model.RealtimeQuote, string, error) {
	return &model.RealtimeQuote{Code: code, Price: 10, VolumeRatio: 1.0}, "fake", nil
}

func (f *fakeFetcher) FetchChips(_ context.Context, _ string) (*model.ChipDistribution, string, error) {
	return nil, "", fmt.Errorf("unsupported")
}

func (f *fakeFetcher) calls(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dailyCalls[code]
}

// memStore is an in-memory Store keyed like the real one.
type memStore struct {
	mu   sync.Mutex
	rows map[string]map[string]model.DailyRecord // code -> date -> record
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[string]model.DailyRecord)}
}

func (m *memStore) UpsertDaily(records []model.DailyRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.rows[r.Code] == nil {
			m.rows[r.Code] = make(map[string]model.DailyRecord)
		}
		m.rows[r.Code][r.DateString()] = r
	}
	return len(records), nil
}

func (m *memStore) HasData(code string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[code][day.Format(model.DateLayout)]
	return ok, nil
}

func (m *memStore) Context(code string, lookback int) ([]model.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DailyRecord
	for _, r := range m.rows[code] {
		out = append(out, r)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TradeDate.Before(out[i].TradeDate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out, nil
}

// window fabricates n daily records for code ending today.
func window(code string, n int) []model.DailyRecord {
	end := today()
	records := make([]model.DailyRecord, n)
	for i := 0; i < n; i++ {
		records[i] = model.DailyRecord{
			Code:      code,
			TradeDate: end.AddDate(0, 0, i-n+1),
			Close:     10 + float64(i)*0.1,
			Volume:    1000,
			Source:    "fake",
		}
	}
	return records
}

func TestRunAllSucceed(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})
	store := newMemStore()

	var mu sync.Mutex
	var reported []string
	o := New(fetcher, store, nil, Options{Workers: 2})
	o.OnResult = func(actx *model.AnalysisContext, _ *analyzer.Verdict) {
		mu.Lock()
		reported = append(reported, actx.Code)
		mu.Unlock()
	}

	summary := o.Run(context.Background(), []string{"600519", "000001", "300750"})
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 3, summary.Done)
	require.Equal(t, 0, summary.Failed)
	require.Empty(t, summary.Errors)
	require.Len(t, reported, 3)
}

func TestRunIsolatesFailures(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		if code == "000001" {
			return nil, fmt.Errorf("all providers failed for %s", code)
		}
		return window(code, 30), nil
	})

	o := New(fetcher, newMemStore(), nil, Options{Workers: 2})
	summary := o.Run(context.Background(), []string{"600519", "000001", "300750"})

	require.Equal(t, 2, summary.Done)
	require.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Errors["000001"], "all providers failed")
	require.NotContains(t, summary.Errors, "600519")
}

func TestRunBoundsConcurrency(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})

	codes := make([]string, 12)
	for i := range codes {
		codes[i] = fmt.Sprintf("60%04d", i)
	}

	o := New(fetcher, newMemStore(), nil, Options{Workers: 3, FetchOnly: true})
	summary := o.Run(context.Background(), codes)

	require.Equal(t, 12, summary.Done)
	require.LessOrEqual(t, fetcher.maxInFlight, 3, "no more than Workers fetches may be in flight")
}

func TestRunResumeSkipsStoredDay(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})
	store := newMemStore()
	_, err := store.UpsertDaily(window("600519", 30))
	require.NoError(t, err)

	o := New(fetcher, store, nil, Options{Workers: 1})
	summary := o.Run(context.Background(), []string{"600519"})

	require.Equal(t, 1, summary.Done)
	require.Equal(t, 0, fetcher.calls("600519"), "stored target day must skip the fetch")
}

func TestRunForceRefetches(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})
	store := newMemStore()
	_, err := store.UpsertDaily(window("600519", 30))
	require.NoError(t, err)

	o := New(fetcher, store, nil, Options{Workers: 1, Force: true})
	summary := o.Run(context.Background(), []string{"600519"})

	require.Equal(t, 1, summary.Done)
	require.Equal(t, 1, fetcher.calls("600519"))
}

func TestRunRecoversFromPanickingAnalyzer(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})

	o := New(fetcher, newMemStore(), panicAnalyzer{on: "000001"}, Options{Workers: 2})
	summary := o.Run(context.Background(), []string{"600519", "000001"})

	require.Equal(t, 1, summary.Done)
	require.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Errors["000001"], "panic")
}

type panicAnalyzer struct{ on string }

func (p panicAnalyzer) Analyze(_ context.Context, actx *model.AnalysisContext) (*analyzer.Verdict, error) {
	if actx.Code == p.on {
		panic("scoring blew up")
	}
	return &analyzer.Verdict{Code: actx.Code}, nil
}

func TestRunEnrichmentBackfillsDerivedFields(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})
	store := newMemStore()

	var got *model.AnalysisContext
	o := New(fetcher, store, nil, Options{Workers: 1, ContextSize: 10})
	o.OnResult = func(actx *model.AnalysisContext, _ *analyzer.Verdict) { got = actx }

	summary := o.Run(context.Background(), []string{"600519"})
	require.Equal(t, 1, summary.Done)
	require.NotNil(t, got)
	require.Len(t, got.Records, 10)

	latest := got.Latest()
	require.NotNil(t, latest.MA5)
	require.NotNil(t, latest.MA20, "30 stored days give MA20 a full window")
	require.NotNil(t, got.Trend)

	// Derived fields were written back to the store, not just the context.
	stored, err := store.Context("600519", 1)
	require.NoError(t, err)
	require.NotNil(t, stored[0].MA20)
}

func TestRunFetchOnlySkipsScoring(t *testing.T) {
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		return window(code, 30), nil
	})
	store := newMemStore()

	called := false
	o := New(fetcher, store, nil, Options{Workers: 1, FetchOnly: true})
	o.OnResult = func(*model.AnalysisContext, *analyzer.Verdict) { called = true }

	summary := o.Run(context.Background(), []string{"600519"})
	require.Equal(t, 1, summary.Done)
	require.False(t, called)

	stored, err := store.Context("600519", 1)
	require.NoError(t, err)
	require.Nil(t, stored[0].MA20, "fetch-only leaves derived fields unset")
}

func TestRunCancelledContextAccountsForUnstartedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newFakeFetcher(func(code string) ([]model.DailyRecord, error) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		return window(code, 30), nil
	})

	codes := make([]string, 8)
	for i := range codes {
		codes[i] = fmt.Sprintf("00%04d", i)
	}

	o := New(fetcher, newMemStore(), nil, Options{Workers: 1, FetchOnly: true})
	summary := o.Run(ctx, codes)
	require.Equal(t, 8, summary.Done+summary.Failed, "every code is accounted for")
}
