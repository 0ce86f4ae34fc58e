package model

import (
	"fmt"
	"time"
)

// RealtimeQuote is a snapshot of intraday trading data for one instrument.
type RealtimeQuote struct {
	Code         string
	Name         string
	Price        float64
	ChangePct    float64 // percent
	ChangeAmount float64

	VolumeRatio  float64 // today's volume vs 5-day average
	TurnoverRate float64 // percent
	Amplitude    float64 // percent

	PERatio float64
	PBRatio float64
	TotalMV float64 // total market value, CNY
	CircMV  float64 // circulating market value, CNY

	High52w float64
	Low52w  float64

	FetchedAt time.Time
}

// ChipDistribution summarizes the holding-cost distribution of an instrument.
type ChipDistribution struct {
	Code string
	Date string

	ProfitRatio float64 // fraction of chips currently in profit, 0~1
	AvgCost     float64

	Cost90Low       float64
	Cost90High      float64
	Concentration90 float64 // lower = more concentrated

	Cost70Low       float64
	Cost70High      float64
	Concentration70 float64
}

// Status describes the chip structure relative to the current price.
func (c *ChipDistribution) Status(currentPrice float64) string {
	var profit string
	switch {
	case c.ProfitRatio >= 0.9:
		profit = "获利盘极高(>90%)"
	case c.ProfitRatio >= 0.7:
		profit = "获利盘较高(70-90%)"
	case c.ProfitRatio >= 0.5:
		profit = "获利盘过半(50-70%)"
	case c.ProfitRatio >= 0.3:
		profit = "获利盘偏低(30-50%)"
	default:
		profit = "大部分套牢(<30%)"
	}

	var cost string
	if c.AvgCost > 0 {
		if currentPrice >= c.AvgCost {
			cost = fmt.Sprintf("股价高于平均成本 %.2f", c.AvgCost)
		} else {
			cost = fmt.Sprintf("股价低于平均成本 %.2f", c.AvgCost)
		}
	}

	var conc string
	if c.Concentration90 > 0 {
		if c.Concentration90 <= 0.1 {
			conc = "筹码高度集中"
		} else if c.Concentration90 <= 0.2 {
			conc = "筹码较为集中"
		} else {
			conc = "筹码分散"
		}
	}

	out := profit
	if cost != "" {
		out += "，" + cost
	}
	if conc != "" {
		out += "，" + conc
	}
	return out
}
