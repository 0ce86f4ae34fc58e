package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

// Eastmoney fetches A-share data from the Eastmoney push2 endpoints: daily
// klines, realtime quotes and chip distribution. It is the default
// highest-priority free source.
type Eastmoney struct {
	client *resty.Client
	pace   *pacer
}

// NewEastmoney creates the adapter. paceMin/paceMax bound the randomized
// delay enforced before every outbound call.
func NewEastmoney(proxyURL string, paceMin, paceMax time.Duration) *Eastmoney {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &Eastmoney{
		client: client,
		pace:   newPacer(paceMin, paceMax),
	}
}

func (e *Eastmoney) Descriptor() Descriptor {
	return Descriptor{
		Name:         "eastmoney",
		Priority:     0,
		Capabilities: CapDaily | CapRealtime | CapChips,
	}
}

// secid is Eastmoney's market-qualified id: "1.600519" for Shanghai,
// "0.000001" for Shenzhen.
func (e *Eastmoney) secid(code string) string {
	code = stripSuffix(code)
	if isShanghaiCode(code) {
		return "1." + code
	}
	return "0." + code
}

type emKlineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (e *Eastmoney) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, error) {
	if err := e.pace.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetQueryParams(map[string]string{
			"secid":   e.secid(code),
			"klt":     "101", // daily bars
			"fqt":     "1",   // forward adjusted
			"beg":     start.Format("20060102"),
			"end":     end.Format("20060102"),
			"fields1": "f1,f2,f3,f4,f5,f6",
			"fields2": "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61",
		}).
		Get("https://push2his.eastmoney.com/api/qt/stock/kline/get")
	if err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("kline request: %w", err))
	}
	if err := classifyStatus("eastmoney", resp.StatusCode()); err != nil {
		return nil, err
	}

	var out emKlineResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("decode kline: %w", err))
	}
	if out.Data == nil || len(out.Data.Klines) == 0 {
		return nil, Permanent("eastmoney", fmt.Errorf("no kline data for %s", code))
	}

	records := make([]model.DailyRecord, 0, len(out.Data.Klines))
	for _, line := range out.Data.Klines {
		rec, err := parseEmKline(code, line)
		if err != nil {
			return nil, Permanent("eastmoney", err)
		}
		if rec.Close == 0 && rec.Volume == 0 {
			continue // suspended day
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseEmKline parses one kline CSV row:
// date,open,close,high,low,volume,amount,amplitude,pct_chg,change,turnover
func parseEmKline(code, line string) (model.DailyRecord, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 9 {
		return model.DailyRecord{}, fmt.Errorf("malformed kline %q", line)
	}
	day, err := time.Parse(model.DateLayout, parts[0])
	if err != nil {
		return model.DailyRecord{}, fmt.Errorf("kline date %q: %w", parts[0], err)
	}
	open, _ := strconv.ParseFloat(parts[1], 64)
	closeP, _ := strconv.ParseFloat(parts[2], 64)
	high, _ := strconv.ParseFloat(parts[3], 64)
	low, _ := strconv.ParseFloat(parts[4], 64)
	volume, _ := strconv.ParseInt(parts[5], 10, 64)
	amount, _ := strconv.ParseFloat(parts[6], 64)
	pct, pctErr := strconv.ParseFloat(parts[8], 64)

	rec := model.DailyRecord{
		Code:      stripSuffix(code),
		TradeDate: day,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		Amount:    amount,
		Source:    "eastmoney",
	}
	if pctErr == nil {
		rec.PctChg = model.Float(pct)
	}
	return rec, nil
}

type emQuoteResponse struct {
	Data *struct {
		Price     float64 `json:"f43"`  // scaled x100
		Name      string  `json:"f58"`
		VolRatio  float64 `json:"f50"`  // scaled x100
		TotalMV   float64 `json:"f116"`
		CircMV    float64 `json:"f117"`
		PERatio   float64 `json:"f162"` // scaled x100
		PBRatio   float64 `json:"f167"` // scaled x100
		Turnover  float64 `json:"f168"` // scaled x100
		ChangeAmt float64 `json:"f169"` // scaled x100
		ChangePct float64 `json:"f170"` // scaled x100
		Amplitude float64 `json:"f171"` // scaled x100
		High52w   float64 `json:"f174"` // scaled x100
		Low52w    float64 `json:"f175"` // scaled x100
	} `json:"data"`
}

func (e *Eastmoney) FetchRealtime(ctx context.Context, code string) (*model.RealtimeQuote, error) {
	if err := e.pace.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetQueryParams(map[string]string{
			"secid":  e.secid(code),
			"fields": "f43,f50,f58,f116,f117,f162,f167,f168,f169,f170,f171,f174,f175",
		}).
		Get("https://push2.eastmoney.com/api/qt/stock/get")
	if err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("quote request: %w", err))
	}
	if err := classifyStatus("eastmoney", resp.StatusCode()); err != nil {
		return nil, err
	}

	var out emQuoteResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("decode quote: %w", err))
	}
	if out.Data == nil || out.Data.Price == 0 {
		return nil, Permanent("eastmoney", fmt.Errorf("no realtime quote for %s", code))
	}

	d := out.Data
	return &model.RealtimeQuote{
		Code:         stripSuffix(code),
		Name:         d.Name,
		Price:        d.Price / 100,
		ChangePct:    d.ChangePct / 100,
		ChangeAmount: d.ChangeAmt / 100,
		VolumeRatio:  d.VolRatio / 100,
		TurnoverRate: d.Turnover / 100,
		Amplitude:    d.Amplitude / 100,
		PERatio:      d.PERatio / 100,
		PBRatio:      d.PBRatio / 100,
		TotalMV:      d.TotalMV,
		CircMV:       d.CircMV,
		High52w:      d.High52w / 100,
		Low52w:       d.Low52w / 100,
		FetchedAt:    time.Now(),
	}, nil
}

type emChipResponse struct {
	Data *struct {
		Code string `json:"code"`
		Rows []struct {
			Date            int     `json:"date"` // yyyymmdd
			ProfitRatio     float64 `json:"benefitPart"`
			AvgCost         float64 `json:"avgCost"`
			Cost90Low       float64 `json:"cost90Low"`
			Cost90High      float64 `json:"cost90High"`
			Concentration90 float64 `json:"concentration90"`
			Cost70Low       float64 `json:"cost70Low"`
			Cost70High      float64 `json:"cost70High"`
			Concentration70 float64 `json:"concentration70"`
		} `json:"boduan"`
	} `json:"data"`
}

// FetchChips returns the most recent chip distribution snapshot.
func (e *Eastmoney) FetchChips(ctx context.Context, code string) (*model.ChipDistribution, error) {
	if err := e.pace.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetQueryParams(map[string]string{
			"code":   stripSuffix(code),
			"market": e.secid(code)[:1],
			"count":  "5",
		}).
		Get("https://push2ex.eastmoney.com/getTopicCYQByCode")
	if err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("chip request: %w", err))
	}
	if err := classifyStatus("eastmoney", resp.StatusCode()); err != nil {
		return nil, err
	}

	var out emChipResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, Transient("eastmoney", fmt.Errorf("decode chips: %w", err))
	}
	if out.Data == nil || len(out.Data.Rows) == 0 {
		return nil, Permanent("eastmoney", fmt.Errorf("no chip data for %s", code))
	}

	row := out.Data.Rows[len(out.Data.Rows)-1]
	return &model.ChipDistribution{
		Code:            stripSuffix(code),
		Date:            fmt.Sprintf("%08d", row.Date),
		ProfitRatio:     row.ProfitRatio,
		AvgCost:         row.AvgCost,
		Cost90Low:       row.Cost90Low,
		Cost90High:      row.Cost90High,
		Concentration90: row.Concentration90,
		Cost70Low:       row.Cost70Low,
		Cost70High:      row.Cost70High,
		Concentration70: row.Concentration70,
	}, nil
}

// classifyStatus maps an HTTP status to the provider error taxonomy:
// 429/403 and 5xx are transient, other non-200 codes are permanent.
func classifyStatus(name string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return Transient(name, fmt.Errorf("rate limited: status %d", status))
	case status >= 500:
		return Transient(name, fmt.Errorf("server error: status %d", status))
	default:
		return Permanent(name, fmt.Errorf("unexpected status %d", status))
	}
}
