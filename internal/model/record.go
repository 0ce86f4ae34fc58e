package model

import "time"

// DateLayout is the canonical trade-date format used throughout the system
// and as part of the storage key.
const DateLayout = "2006-01-02"

// DailyRecord is one canonical daily bar for one instrument on one trading
// date. All provider adapters normalize into this shape. Derived fields are
// pointers: nil means "not computable yet" (e.g. MA20 with fewer than 20
// records of history), never a fabricated value.
type DailyRecord struct {
	Code      string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64

	// PctChg is the day-over-day percent change. Providers that report it
	// fill it directly; otherwise the calculator backfills it from the
	// previous close.
	PctChg *float64

	// Derived indicators, backfilled by the enrichment stage.
	MA5         *float64
	MA10        *float64
	MA20        *float64
	VolumeRatio *float64

	// Source names the provider that produced this record.
	Source string
}

// DateString returns the trade date in canonical YYYY-MM-DD form.
func (r *DailyRecord) DateString() string {
	return r.TradeDate.Format(DateLayout)
}

// Float returns a pointer to v, for filling nullable derived fields.
func Float(v float64) *float64 { return &v }
