package trend

import (
	"fmt"
	"strings"

	"StockSentinel/internal/model"
)

// Volume-ratio bands for the textual description.
const (
	volumeHeavy = 1.5
	volumeLight = 0.7
)

// Evaluate reads the moving-average structure and volume of the most recent
// record and produces a qualitative signal. Records must be ordered oldest
// to newest and already enriched; returns nil when there is nothing recent
// to read.
func Evaluate(records []model.DailyRecord, quote *model.RealtimeQuote) *model.TrendSignal {
	if len(records) == 0 {
		return nil
	}
	latest := records[len(records)-1]

	sig := &model.TrendSignal{
		Alignment:  alignment(latest),
		VolumeDesc: volumeDesc(latest, quote),
	}
	if latest.MA20 != nil {
		sig.AboveMA20 = latest.Close > *latest.MA20
	}
	sig.Summary = summarize(sig, latest)
	return sig
}

// alignment classifies the MA5/MA10/MA20 ordering. Missing averages make
// the structure unreadable, which is reported as tangled.
func alignment(r model.DailyRecord) string {
	if r.MA5 == nil || r.MA10 == nil || r.MA20 == nil {
		return model.AlignTangled
	}
	switch {
	case *r.MA5 > *r.MA10 && *r.MA10 > *r.MA20:
		return model.AlignBullish
	case *r.MA5 < *r.MA10 && *r.MA10 < *r.MA20:
		return model.AlignBearish
	default:
		return model.AlignTangled
	}
}

// volumeDesc prefers the intraday volume ratio when a realtime quote is
// available, falling back to the stored daily figure.
func volumeDesc(r model.DailyRecord, quote *model.RealtimeQuote) string {
	ratio := 0.0
	switch {
	case quote != nil && quote.VolumeRatio > 0:
		ratio = quote.VolumeRatio
	case r.VolumeRatio != nil:
		ratio = *r.VolumeRatio
	default:
		return "量能未知"
	}

	switch {
	case ratio >= volumeHeavy:
		return fmt.Sprintf("放量 (量比 %.2f)", ratio)
	case ratio <= volumeLight:
		return fmt.Sprintf("缩量 (量比 %.2f)", ratio)
	default:
		return fmt.Sprintf("量能正常 (量比 %.2f)", ratio)
	}
}

func summarize(sig *model.TrendSignal, latest model.DailyRecord) string {
	var b strings.Builder

	switch sig.Alignment {
	case model.AlignBullish:
		b.WriteString("均线多头排列")
	case model.AlignBearish:
		b.WriteString("均线空头排列")
	default:
		b.WriteString("均线纠缠")
	}

	if latest.MA20 != nil {
		if sig.AboveMA20 {
			b.WriteString("，股价站上MA20")
		} else {
			b.WriteString("，股价位于MA20下方")
		}
	}

	b.WriteString("，")
	b.WriteString(sig.VolumeDesc)
	return b.String()
}
