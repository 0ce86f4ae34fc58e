package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	base := fmt.Errorf("connection reset")

	tr := Transient("eastmoney", base)
	require.True(t, IsTransient(tr))
	require.True(t, errors.Is(tr, base))

	pe := Permanent("sina", fmt.Errorf("no data"))
	require.False(t, IsTransient(pe))

	var classified *Error
	require.True(t, errors.As(pe, &classified))
	require.Equal(t, "sina", classified.Provider)
	require.Equal(t, KindPermanent, classified.Kind)

	// Unclassified errors keep their retry budget.
	require.True(t, IsTransient(fmt.Errorf("plain network error")))
}

func TestClassifyStatus(t *testing.T) {
	require.NoError(t, classifyStatus("x", 200))
	require.True(t, IsTransient(classifyStatus("x", 429)))
	require.True(t, IsTransient(classifyStatus("x", 403)))
	require.True(t, IsTransient(classifyStatus("x", 502)))
	require.False(t, IsTransient(classifyStatus("x", 404)))
}

func TestParseEmKline(t *testing.T) {
	line := "2024-01-15,1685.00,1700.11,1710.00,1680.00,23456,3987654321.00,1.78,2.50,41.50,0.19"
	rec, err := parseEmKline("600519", line)
	require.NoError(t, err)
	require.Equal(t, "600519", rec.Code)
	require.Equal(t, "2024-01-15", rec.DateString())
	require.Equal(t, 1685.00, rec.Open)
	require.Equal(t, 1700.11, rec.Close)
	require.Equal(t, 1710.00, rec.High)
	require.Equal(t, 1680.00, rec.Low)
	require.Equal(t, int64(23456), rec.Volume)
	require.Equal(t, 3987654321.00, rec.Amount)
	require.NotNil(t, rec.PctChg)
	require.Equal(t, 2.50, *rec.PctChg)
	require.Equal(t, "eastmoney", rec.Source)

	_, err = parseEmKline("600519", "garbage")
	require.Error(t, err)
}

func TestParseSinaQuote(t *testing.T) {
	body := `var hq_str_sh600519="贵州茅台,1685.000,1658.500,1700.110,1710.000,1680.000,1700.000,1700.200,2345600,3987654321.000,100,1700.000,2024-01-15,15:00:00,00";`
	q, err := parseSinaQuote("600519", body)
	require.NoError(t, err)
	require.Equal(t, "600519", q.Code)
	require.Equal(t, "贵州茅台", q.Name)
	require.Equal(t, 1700.11, q.Price)
	require.InDelta(t, 2.509, q.ChangePct, 0.01)
	require.InDelta(t, 41.61, q.ChangeAmount, 0.01)

	_, err = parseSinaQuote("600519", `var hq_str_sh600519="";`)
	require.False(t, IsTransient(err))
}

func TestSymbolConversion(t *testing.T) {
	em := NewEastmoney("", 0, 0)
	require.Equal(t, "1.600519", em.secid("600519"))
	require.Equal(t, "0.000001", em.secid("000001"))
	require.Equal(t, "1.510300", em.secid("510300"))

	ts := NewTushare("tok", "")
	require.Equal(t, "600519.SH", ts.tsCode("600519"))
	require.Equal(t, "000001.SZ", ts.tsCode("000001"))
	require.Equal(t, "600519.SH", ts.tsCode("600519.sh"))

	y := NewYahoo("", 0, 0)
	require.Equal(t, "600519.SS", y.yahooSymbol("600519"))
	require.Equal(t, "000001.SZ", y.yahooSymbol("000001.SZ"))
}

func TestTusharePriorityPromotion(t *testing.T) {
	require.Equal(t, 0, NewTushare("paid-token", "").Descriptor().Priority)
	require.Equal(t, 2, NewTushare("", "").Descriptor().Priority)
}

func TestBuildOrdering(t *testing.T) {
	daily, realtime := Build(Options{PaceMin: time.Millisecond, PaceMax: 2 * time.Millisecond})
	require.Equal(t, "eastmoney", daily[0].Descriptor().Name)
	for i := 1; i < len(daily); i++ {
		require.GreaterOrEqual(t, daily[i].Descriptor().Priority, daily[i-1].Descriptor().Priority)
	}
	for _, p := range realtime {
		require.True(t, p.Descriptor().Capabilities.Has(CapRealtime))
	}

	// A configured token moves tushare to the front of the daily list.
	withToken, _ := Build(Options{TushareToken: "tok"})
	require.Equal(t, "tushare", withToken[0].Descriptor().Name)
}

func TestPacerHonorsContext(t *testing.T) {
	p := newPacer(50*time.Millisecond, 60*time.Millisecond)
	require.NoError(t, p.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := p.wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
