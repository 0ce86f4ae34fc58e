package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

// Yahoo is the last-resort fallback using the Yahoo Finance chart API.
// A-share codes map to Yahoo tickers by exchange suffix: 600519 -> 600519.SS,
// 000001 -> 000001.SZ. Daily history only.
type Yahoo struct {
	client *resty.Client
	pace   *pacer
}

func NewYahoo(proxyURL string, paceMin, paceMax time.Duration) *Yahoo {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &Yahoo{
		client: client,
		pace:   newPacer(paceMin, paceMax),
	}
}

func (y *Yahoo) Descriptor() Descriptor {
	return Descriptor{
		Name:         "yahoo",
		Priority:     3,
		Capabilities: CapDaily,
	}
}

func (y *Yahoo) yahooSymbol(code string) string {
	code = stripSuffix(code)
	if isShanghaiCode(code) {
		return code + ".SS"
	}
	return code + ".SZ"
}

// yahooChart is the chart API response shape.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (y *Yahoo) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, error) {
	if err := y.pace.wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s",
		url.PathEscape(y.yahooSymbol(code)))
	resp, err := y.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"period1":  fmt.Sprintf("%d", start.Unix()),
			"period2":  fmt.Sprintf("%d", end.AddDate(0, 0, 1).Unix()),
		}).
		Get(u)
	if err != nil {
		return nil, Transient("yahoo", fmt.Errorf("chart request: %w", err))
	}
	if err := classifyStatus("yahoo", resp.StatusCode()); err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, Transient("yahoo", fmt.Errorf("decode chart: %w", err))
	}
	if chart.Chart.Error != nil {
		return nil, Permanent("yahoo", fmt.Errorf("api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, Permanent("yahoo", fmt.Errorf("no data for %s", code))
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, Permanent("yahoo", fmt.Errorf("no quote block for %s", code))
	}
	quote := result.Indicators.Quote[0]

	records := make([]model.DailyRecord, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars (holidays etc.)
		}
		records = append(records, model.DailyRecord{
			Code:      stripSuffix(code),
			TradeDate: time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    int64(toFloat(quote.Volume[i])),
			Source:    "yahoo",
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].TradeDate.Before(records[j].TradeDate)
	})
	return records, nil
}

// FetchRealtime is not part of the fallback's duties; the realtime list
// only carries the low-latency domestic sources.
func (y *Yahoo) FetchRealtime(_ context.Context, code string) (*model.RealtimeQuote, error) {
	return nil, Permanent("yahoo", fmt.Errorf("realtime quotes not supported for %s", code))
}
