package screener

import (
	"MarketScreener/internal/config"
	"MarketScreener/internal/model"
)

// Pipeline evaluates prepared indicator sets against the three filters.
// The filters are independent: each one is computed and reported with its
// evidence even when another has already failed, so a report can say "missed
// on convergence alone" rather than just "no".
type Pipeline struct {
	cfg config.ScreenConfig
}

func NewPipeline(cfg config.ScreenConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Evaluate runs all three filters for one symbol. The series must have
// passed Validate and the set must come from the same series.
func (p *Pipeline) Evaluate(sym model.Symbol, series model.PriceSeries, set *model.IndicatorSet) model.ScreenResult {
	last := series.Last()
	return model.ScreenResult{
		Symbol:      sym.Code,
		Name:        sym.Name,
		Date:        last.Date,
		Close:       last.Close,
		Liquidity:   EvaluateLiquidity(set, p.cfg),
		Trend:       EvaluateTrend(set, p.cfg),
		Convergence: EvaluateConvergence(set, p.cfg),
	}
}
