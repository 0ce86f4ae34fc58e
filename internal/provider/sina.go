package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentinel/internal/model"
)

// Sina fetches daily klines and realtime quotes from the Sina finance
// endpoints. Second free source after Eastmoney. The daily kline feed does
// not carry traded amount or percent change; the calculator backfills
// pct_chg from consecutive closes.
type Sina struct {
	client *resty.Client
	pace   *pacer
}

func NewSina(proxyURL string, paceMin, paceMax time.Duration) *Sina {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &Sina{
		client: client,
		pace:   newPacer(paceMin, paceMax),
	}
}

func (s *Sina) Descriptor() Descriptor {
	return Descriptor{
		Name:         "sina",
		Priority:     1,
		Capabilities: CapDaily | CapRealtime,
	}
}

// sinaSymbol prefixes the bare code with its market: sh600519 / sz000001.
func (s *Sina) sinaSymbol(code string) string {
	code = stripSuffix(code)
	if isShanghaiCode(code) {
		return "sh" + code
	}
	return "sz" + code
}

type sinaKline struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

func (s *Sina) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyRecord, error) {
	if err := s.pace.wait(ctx); err != nil {
		return nil, err
	}

	// The endpoint takes a row count, not a date range; request enough
	// calendar days to cover the range and trim locally.
	datalen := int(end.Sub(start).Hours()/24) + 1
	if datalen < 1 {
		datalen = 1
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetQueryParams(map[string]string{
			"symbol":  s.sinaSymbol(code),
			"scale":   "240", // daily
			"ma":      "no",
			"datalen": strconv.Itoa(datalen),
		}).
		Get("https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData")
	if err != nil {
		return nil, Transient("sina", fmt.Errorf("kline request: %w", err))
	}
	if err := classifyStatus("sina", resp.StatusCode()); err != nil {
		return nil, err
	}

	var rows []sinaKline
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, Transient("sina", fmt.Errorf("decode kline: %w", err))
	}
	if len(rows) == 0 {
		return nil, Permanent("sina", fmt.Errorf("no kline data for %s", code))
	}

	records := make([]model.DailyRecord, 0, len(rows))
	for _, row := range rows {
		day, err := time.Parse(model.DateLayout, row.Day)
		if err != nil {
			return nil, Permanent("sina", fmt.Errorf("kline date %q: %w", row.Day, err))
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		open, _ := strconv.ParseFloat(row.Open, 64)
		high, _ := strconv.ParseFloat(row.High, 64)
		low, _ := strconv.ParseFloat(row.Low, 64)
		closeP, _ := strconv.ParseFloat(row.Close, 64)
		volume, _ := strconv.ParseInt(row.Volume, 10, 64)
		if closeP == 0 && volume == 0 {
			continue
		}
		records = append(records, model.DailyRecord{
			Code:      stripSuffix(code),
			TradeDate: day,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
			Source:    "sina",
		})
	}
	return records, nil
}

func (s *Sina) FetchRealtime(ctx context.Context, code string) (*model.RealtimeQuote, error) {
	if err := s.pace.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", randomUserAgent()).
		SetHeader("Referer", "https://finance.sina.com.cn"). // required by hq.sinajs.cn
		SetQueryParam("list", s.sinaSymbol(code)).
		Get("https://hq.sinajs.cn/")
	if err != nil {
		return nil, Transient("sina", fmt.Errorf("quote request: %w", err))
	}
	if err := classifyStatus("sina", resp.StatusCode()); err != nil {
		return nil, err
	}
	return parseSinaQuote(stripSuffix(code), string(resp.Body()))
}

// parseSinaQuote parses the hq.sinajs.cn line format:
// var hq_str_sh600519="name,open,prevclose,price,high,low,...";
// Fields: 0 name, 1 open, 2 prev close, 3 price, 4 high, 5 low,
// 8 volume, 9 amount.
func parseSinaQuote(code, body string) (*model.RealtimeQuote, error) {
	i := strings.IndexByte(body, '"')
	j := strings.LastIndexByte(body, '"')
	if i < 0 || j <= i {
		return nil, Transient("sina", fmt.Errorf("malformed quote response"))
	}
	fields := strings.Split(body[i+1:j], ",")
	if len(fields) < 10 || fields[0] == "" {
		return nil, Permanent("sina", fmt.Errorf("no realtime quote for %s", code))
	}

	prevClose, _ := strconv.ParseFloat(fields[2], 64)
	price, _ := strconv.ParseFloat(fields[3], 64)
	high, _ := strconv.ParseFloat(fields[4], 64)
	low, _ := strconv.ParseFloat(fields[5], 64)
	if price == 0 {
		return nil, Permanent("sina", fmt.Errorf("no realtime quote for %s", code))
	}

	q := &model.RealtimeQuote{
		Code:      code,
		Name:      fields[0],
		Price:     price,
		FetchedAt: time.Now(),
	}
	if prevClose > 0 {
		q.ChangeAmount = price - prevClose
		q.ChangePct = (price - prevClose) / prevClose * 100
		q.Amplitude = (high - low) / prevClose * 100
	}
	return q, nil
}
