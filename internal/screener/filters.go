package screener

import (
	"math"
	"sort"

	"MarketScreener/internal/config"
	"MarketScreener/internal/model"
)

// EvaluateLiquidity checks the shortest-window volume MA at the latest bar
// against the lot threshold. The comparison is strict: an average exactly at
// the threshold fails. An undefined MA fails closed.
func EvaluateLiquidity(set *model.IndicatorSet, cfg config.ScreenConfig) model.LiquidityEvidence {
	window := cfg.LiquidityWindow()
	avg := set.LatestVolume(window)
	ev := model.LiquidityEvidence{
		Window:        window,
		AvgVolume:     avg,
		AvgVolumeLots: avg / float64(cfg.LotSize),
		ThresholdLots: float64(cfg.VolumeThresholdLots),
	}
	ev.Passed = model.Defined(avg) && ev.AvgVolumeLots > ev.ThresholdLots
	return ev
}

// EvaluateTrend checks that the latest close MAs strictly descend as the
// window grows: the short average above every longer one. Equality anywhere
// fails, and so does any undefined value.
func EvaluateTrend(set *model.IndicatorSet, cfg config.ScreenConfig) model.TrendEvidence {
	ev := model.TrendEvidence{Values: make([]model.WindowValue, 0, len(cfg.MAWindows))}
	ok := true
	for _, w := range cfg.MAWindows {
		v := set.LatestClose(w)
		ev.Values = append(ev.Values, model.WindowValue{Window: w, Value: v})
		if !model.Defined(v) {
			ok = false
		}
	}
	if ok {
		for i := 1; i < len(ev.Values); i++ {
			if ev.Values[i-1].Value <= ev.Values[i].Value {
				ok = false
				break
			}
		}
	}
	ev.Passed = ok
	return ev
}

// EvaluateConvergence measures how tightly the latest MA values over the
// configured windows sit together. A width exactly at the limit passes.
// Undefined inputs fail closed with a NaN width.
func EvaluateConvergence(set *model.IndicatorSet, cfg config.ScreenConfig) model.ConvergenceEvidence {
	windows := append([]int(nil), cfg.ConvergenceWindows...)
	sort.Ints(windows)
	ev := model.ConvergenceEvidence{
		Windows: windows,
		Metric:  cfg.Metric(),
		Limit:   cfg.ConvergenceLimit(),
		Width:   math.NaN(),
	}
	if len(windows) == 0 {
		return ev
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range windows {
		v := set.LatestClose(w)
		if !model.Defined(v) {
			return ev
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	switch ev.Metric {
	case model.MetricAbsolute:
		ev.Width = hi - lo
	default:
		if lo <= 0 {
			return ev
		}
		ev.Width = (hi - lo) / lo * 100
	}
	ev.Passed = ev.Width <= ev.Limit
	return ev
}
