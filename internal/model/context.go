package model

// TrendSignal is the rule-based technical judgement derived from the
// enriched daily history, handed to the scoring collaborator alongside the
// raw records.
type TrendSignal struct {
	Alignment  string // AlignBullish / AlignBearish / AlignTangled
	AboveMA20  bool
	VolumeDesc string
	Summary    string
}

// Moving-average alignment labels.
const (
	AlignBullish = "bullish" // MA5 > MA10 > MA20
	AlignBearish = "bearish" // MA5 < MA10 < MA20
	AlignTangled = "tangled"
)

// AnalysisContext is the enriched per-instrument context handed to the
// external scoring and notification collaborators.
type AnalysisContext struct {
	Code    string
	Name    string
	Records []DailyRecord // oldest to newest
	Quote   *RealtimeQuote
	Chips   *ChipDistribution
	Trend   *TrendSignal
}

// Latest returns the most recent record, or nil when there is no history.
func (c *AnalysisContext) Latest() *DailyRecord {
	if len(c.Records) == 0 {
		return nil
	}
	return &c.Records[len(c.Records)-1]
}
