package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

// Tushare fetches daily bars from the api.tushare.pro JSON endpoint. It
// needs a paid token; when one is configured the adapter reports priority 0
// and leads the daily ordering, otherwise it keeps the default priority and
// fails permanently on every call so the coordinator skips past it.
type Tushare struct {
	client *resty.Client
	token  string

	// Per-minute request budget. The free tiers cap calls per minute;
	// exceeding the window blocks until it rolls over.
	perMinute   int
	mu          sync.Mutex
	windowStart time.Time
	calls       int
}

const tushareDefaultPerMinute = 80

func NewTushare(token, proxyURL string) *Tushare {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetBaseURL("https://api.tushare.pro")
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &Tushare{
		client:    client,
		token:     token,
		perMinute: tushareDefaultPerMinute,
	}
}

func (t *Tushare) Descriptor() Descriptor {
	priority := 2
	if t.token != "" {
		priority = 0 // paid token promotes tushare to the front
	}
	return Descriptor{
		Name:         "tushare",
		Priority:     priority,
		Capabilities: CapDaily,
	}
}

// tsCode converts a bare code to tushare's exchange-suffixed form:
// 600519 -> 600519.SH, 000001 -> 000001.SZ.
func (t *Tushare) tsCode(code string) string {
	if strings.Contains(code, ".") {
		return strings.ToUpper(code)
	}
	if isShanghaiCode(code) {
		return code + ".SH"
	}
	return code + ".SZ"
}

// reserve takes one slot from the per-minute budget, sleeping into the next
// window when the current one is spent.
func (t *Tushare) reserve(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= time.Minute {
		t.windowStart = now
		t.calls = 0
	}
	if t.calls < t.perMinute {
		t.calls++
		t.mu.Unlock()
		return nil
	}
	wait := time.Minute - now.Sub(t.windowStart) + time.Second
	t.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	t.mu.Lock()
	t.windowStart = time.Now()
	t.calls = 1
	t.mu.Unlock()
	return nil
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string        `json:"fields"`
		Items  [][]json.Number `json:"items"`
	} `json:"data"`
}

func (t *Tushare) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, error) {
	if t.token == "" {
		return nil, Permanent("tushare", fmt.Errorf("token not configured"))
	}
	if err := t.reserve(ctx); err != nil {
		return nil, err
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(tushareRequest{
			APIName: "daily",
			Token:   t.token,
			Params: map[string]string{
				"ts_code":    t.tsCode(stripSuffix(code)),
				"start_date": start.Format("20060102"),
				"end_date":   end.Format("20060102"),
			},
			Fields: "trade_date,open,high,low,close,vol,amount,pct_chg",
		}).
		Post("/")
	if err != nil {
		return nil, Transient("tushare", fmt.Errorf("daily request: %w", err))
	}
	if err := classifyStatus("tushare", resp.StatusCode()); err != nil {
		return nil, err
	}

	var out tushareResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, Transient("tushare", fmt.Errorf("decode daily: %w", err))
	}
	if out.Code != 0 {
		// Quota messages are retryable, anything else is not.
		msg := strings.ToLower(out.Msg)
		if strings.Contains(msg, "quota") || strings.Contains(msg, "limit") ||
			strings.Contains(msg, "每分钟") || strings.Contains(msg, "频率") {
			return nil, Transient("tushare", fmt.Errorf("quota exceeded: %s", out.Msg))
		}
		return nil, Permanent("tushare", fmt.Errorf("api error %d: %s", out.Code, out.Msg))
	}
	if out.Data == nil || len(out.Data.Items) == 0 {
		return nil, Permanent("tushare", fmt.Errorf("no data for %s", code))
	}

	idx := make(map[string]int, len(out.Data.Fields))
	for i, f := range out.Data.Fields {
		idx[f] = i
	}
	field := func(row []json.Number, name string) float64 {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return 0
		}
		v, _ := row[i].Float64()
		return v
	}

	records := make([]model.DailyRecord, 0, len(out.Data.Items))
	for _, row := range out.Data.Items {
		di, ok := idx["trade_date"]
		if !ok || di >= len(row) {
			return nil, Permanent("tushare", fmt.Errorf("response missing trade_date"))
		}
		day, err := time.Parse("20060102", row[di].String())
		if err != nil {
			return nil, Permanent("tushare", fmt.Errorf("trade_date %q: %w", row[di].String(), err))
		}
		rec := model.DailyRecord{
			Code:      stripSuffix(code),
			TradeDate: day,
			Open:      field(row, "open"),
			High:      field(row, "high"),
			Low:       field(row, "low"),
			Close:     field(row, "close"),
			Volume:    int64(field(row, "vol") * 100),     // vol is in lots of 100 shares
			Amount:    field(row, "amount") * 1000,        // amount is in thousands of CNY
			Source:    "tushare",
			PctChg:    model.Float(field(row, "pct_chg")),
		}
		if rec.Close == 0 && rec.Volume == 0 {
			continue
		}
		records = append(records, rec)
	}

	// Tushare returns newest first; the canonical order is oldest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// FetchRealtime is not served by the daily-history API.
func (t *Tushare) FetchRealtime(_ context.Context, code string) (*model.RealtimeQuote, error) {
	return nil, Permanent("tushare", fmt.Errorf("realtime quotes not supported for %s", code))
}
