package calculator

import (
	"errors"
	"math"

	"StockSentinel/internal/model"
)

// Moving-average windows of the canonical schema.
const (
	WindowMA5  = 5
	WindowMA10 = 10
	WindowMA20 = 20

	// volumeRatioWindow is the number of prior days averaged for the
	// volume ratio.
	volumeRatioWindow = 5
)

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// Enrich computes the derived fields of each record in place: MA5/MA10/MA20
// over closes, volume ratio against the prior five-day average volume, and
// a pct_chg backfill from consecutive closes for sources that do not report
// it. Records must be ordered oldest to newest.
//
// An indicator whose window extends past the available history stays nil.
// Insufficient history is not an error.
func Enrich(records []model.DailyRecord) {
	closes := make([]float64, len(records))
	for i := range records {
		closes[i] = records[i].Close
	}

	for i := range records {
		r := &records[i]

		if ma, err := SMA(closes[:i+1], WindowMA5); err == nil {
			r.MA5 = model.Float(round2(ma))
		}
		if ma, err := SMA(closes[:i+1], WindowMA10); err == nil {
			r.MA10 = model.Float(round2(ma))
		}
		if ma, err := SMA(closes[:i+1], WindowMA20); err == nil {
			r.MA20 = model.Float(round2(ma))
		}

		if vr, ok := volumeRatio(records, i); ok {
			r.VolumeRatio = model.Float(round2(vr))
		}

		if r.PctChg == nil && i > 0 && records[i-1].Close > 0 {
			pct := (r.Close - records[i-1].Close) / records[i-1].Close * 100
			r.PctChg = model.Float(round2(pct))
		}
	}
}

// volumeRatio is today's volume over the mean volume of the previous five
// trading days.
func volumeRatio(records []model.DailyRecord, i int) (float64, bool) {
	if i < volumeRatioWindow {
		return 0, false
	}
	sum := int64(0)
	for j := i - volumeRatioWindow; j < i; j++ {
		sum += records[j].Volume
	}
	avg := float64(sum) / volumeRatioWindow
	if avg <= 0 {
		return 0, false
	}
	return float64(records[i].Volume) / avg, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
