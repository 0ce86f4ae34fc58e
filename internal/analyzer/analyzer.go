// Package analyzer defines the scoring seam between the data pipeline and
// whatever judges the enriched context. The pipeline only assembles context;
// scoring implementations plug in behind this interface.
package analyzer

import (
	"context"

	"StockSentinel/internal/model"
)

// Verdict is an analyzer's judgement of one instrument.
type Verdict struct {
	Code    string
	Rating  string // free-form, e.g. "看多" / "观望" / "回避"
	Summary string
}

// Analyzer scores one instrument from its enriched context.
type Analyzer interface {
	Analyze(ctx context.Context, actx *model.AnalysisContext) (*Verdict, error)
}

// Noop performs no scoring. Used when the pipeline runs fetch-and-persist
// only; the enriched context still flows to the notifier.
type Noop struct{}

func (Noop) Analyze(_ context.Context, actx *model.AnalysisContext) (*Verdict, error) {
	return &Verdict{Code: actx.Code}, nil
}
