package model

import "time"

// SkipReason classifies why a symbol could not be evaluated.
type SkipReason string

const (
	SkipSymbolUnavailable   SkipReason = "SYMBOL_UNAVAILABLE"
	SkipInsufficientHistory SkipReason = "INSUFFICIENT_HISTORY"
	SkipMalformedSeries     SkipReason = "MALFORMED_SERIES"
)

// SymbolState tracks a symbol's progress through a screen run. Every symbol
// ends in exactly one terminal state: Evaluated or Skipped.
type SymbolState string

const (
	StatePending   SymbolState = "PENDING"
	StateFetched   SymbolState = "FETCHED"
	StateIndicated SymbolState = "INDICATED"
	StateEvaluated SymbolState = "EVALUATED"
	StateSkipped   SymbolState = "SKIPPED"
)

// ConvergenceMetric selects how the spread between moving averages is measured.
type ConvergenceMetric string

const (
	MetricRelative ConvergenceMetric = "relative" // (max-min)/min, in percent
	MetricAbsolute ConvergenceMetric = "absolute" // max-min, in price units
)

// WindowValue pairs a moving-average window with its value at the latest bar.
// Value is NaN when the window is undefined there.
type WindowValue struct {
	Window int     `json:"window"`
	Value  float64 `json:"value"`
}

// LiquidityEvidence is the outcome of the volume screen: the short-window
// volume MA at the latest bar must strictly exceed the lot threshold.
type LiquidityEvidence struct {
	Passed        bool    `json:"passed"`
	Window        int     `json:"window"`
	AvgVolume     float64 `json:"avg_volume"` // shares
	AvgVolumeLots float64 `json:"avg_volume_lots"`
	ThresholdLots float64 `json:"threshold_lots"`
}

// TrendEvidence is the outcome of the alignment screen: close MAs strictly
// descending across ascending windows at the latest bar.
type TrendEvidence struct {
	Passed bool          `json:"passed"`
	Values []WindowValue `json:"values"` // ascending window order
}

// ConvergenceEvidence is the outcome of the entanglement screen: the spread
// of the latest MA values over the chosen windows, measured by Metric, no
// greater than Limit. Width is NaN when any input was undefined.
type ConvergenceEvidence struct {
	Passed  bool              `json:"passed"`
	Windows []int             `json:"windows"`
	Metric  ConvergenceMetric `json:"metric"`
	Width   float64           `json:"width"`
	Limit   float64           `json:"limit"`
}

// ScreenResult is the full evaluation of one symbol: the three filter
// outcomes with their numeric evidence, never reduced to a single boolean.
type ScreenResult struct {
	Symbol      string              `json:"symbol"`
	Name        string              `json:"name,omitempty"`
	Date        time.Time           `json:"date"`
	Close       float64             `json:"close"`
	Liquidity   LiquidityEvidence   `json:"liquidity"`
	Trend       TrendEvidence       `json:"trend"`
	Convergence ConvergenceEvidence `json:"convergence"`
}

// Matched reports whether the symbol passed all three filters.
func (r *ScreenResult) Matched() bool {
	return r.Liquidity.Passed && r.Trend.Passed && r.Convergence.Passed
}

// PassCount returns how many of the three filters passed.
func (r *ScreenResult) PassCount() int {
	n := 0
	if r.Liquidity.Passed {
		n++
	}
	if r.Trend.Passed {
		n++
	}
	if r.Convergence.Passed {
		n++
	}
	return n
}

// SkippedSymbol records a symbol that reached the Skipped terminal state.
type SkippedSymbol struct {
	Symbol string     `json:"symbol"`
	Name   string     `json:"name,omitempty"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// ScreenReport is the outcome of one full screen run. For a completed run
// len(Results) + len(Skipped) equals UniverseSize.
type ScreenReport struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	UniverseSize int
	Results      []ScreenResult  // every evaluated symbol, ranked
	Skipped      []SkippedSymbol // sorted by code
}

// Duration returns the wall time of the run.
func (r *ScreenReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Matches returns the evaluated symbols that passed all three filters,
// preserving rank order.
func (r *ScreenReport) Matches() []ScreenResult {
	var out []ScreenResult
	for _, res := range r.Results {
		if res.Matched() {
			out = append(out, res)
		}
	}
	return out
}

// SkipCounts aggregates the skip list by reason.
func (r *ScreenReport) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, s := range r.Skipped {
		counts[s.Reason]++
	}
	return counts
}
