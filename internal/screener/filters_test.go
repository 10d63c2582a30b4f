package screener

import (
	"math"
	"sort"
	"testing"
	"time"

	"MarketScreener/internal/config"
	"MarketScreener/internal/model"
)

func testScreen() config.ScreenConfig {
	return config.ScreenConfig{
		VolumeThresholdLots: 2000,
		LotSize:             1000,
		MAWindows:           []int{5, 10, 20, 60},
		ConvergenceWindows:  []int{5, 10, 20},
		ConvergenceMetric:   "relative",
		ConvergenceWidthPct: 3.0,
		LookbackDays:        80,
		Concurrency:         4,
	}
}

// latestSet builds an indicator set whose latest values are given directly,
// one value per window. NaN marks an undefined average.
func latestSet(closes, volumes map[int]float64) *model.IndicatorSet {
	windows := make([]int, 0, len(closes))
	for w := range closes {
		windows = append(windows, w)
	}
	sort.Ints(windows)
	set := &model.IndicatorSet{
		Symbol:  "TEST",
		Dates:   []time.Time{time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)},
		Windows: windows,
		Close:   make(map[int][]float64, len(closes)),
		Volume:  make(map[int][]float64, len(volumes)),
	}
	for w, v := range closes {
		set.Close[w] = []float64{v}
	}
	for w, v := range volumes {
		set.Volume[w] = []float64{v}
	}
	return set
}

func alignedCloses() map[int]float64 {
	return map[int]float64{5: 102, 10: 101.5, 20: 101, 60: 99}
}

func TestEvaluateLiquidity_StrictThreshold(t *testing.T) {
	cfg := testScreen()
	tests := []struct {
		name   string
		shares float64
		want   bool
	}{
		{"well above", 2_500_000, true},
		{"just above", 2_000_001, true},
		{"exactly at threshold", 2_000_000, false},
		{"below", 1_999_999, false},
		{"zero", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := latestSet(alignedCloses(), map[int]float64{5: tt.shares})
			ev := EvaluateLiquidity(set, cfg)
			if ev.Passed != tt.want {
				t.Errorf("avg %v shares: passed=%v, want %v", tt.shares, ev.Passed, tt.want)
			}
			if ev.Window != 5 {
				t.Errorf("expected shortest window 5, got %d", ev.Window)
			}
			if ev.AvgVolumeLots != tt.shares/1000 {
				t.Errorf("lots: got %v, want %v", ev.AvgVolumeLots, tt.shares/1000)
			}
			if ev.ThresholdLots != 2000 {
				t.Errorf("threshold lots: got %v", ev.ThresholdLots)
			}
		})
	}
}

func TestEvaluateLiquidity_UndefinedFailsClosed(t *testing.T) {
	set := latestSet(alignedCloses(), map[int]float64{5: math.NaN()})
	ev := EvaluateLiquidity(set, testScreen())
	if ev.Passed {
		t.Error("undefined volume MA must fail, not pass as zero")
	}

	// Missing window entirely behaves the same.
	set2 := latestSet(alignedCloses(), map[int]float64{})
	if ev2 := EvaluateLiquidity(set2, testScreen()); ev2.Passed {
		t.Error("missing volume MA must fail closed")
	}
}

func TestEvaluateTrend_Alignment(t *testing.T) {
	cfg := testScreen()
	vol := map[int]float64{5: 3_000_000}
	tests := []struct {
		name   string
		closes map[int]float64
		want   bool
	}{
		{"strictly descending", map[int]float64{5: 102, 10: 101, 20: 100, 60: 98}, true},
		{"equal adjacent pair", map[int]float64{5: 101, 10: 101, 20: 100, 60: 98}, false},
		{"one inversion", map[int]float64{5: 102, 10: 100, 20: 101, 60: 98}, false},
		{"fully inverted", map[int]float64{5: 98, 10: 100, 20: 101, 60: 102}, false},
		{"undefined longest window", map[int]float64{5: 102, 10: 101, 20: 100, 60: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EvaluateTrend(latestSet(tt.closes, vol), cfg)
			if ev.Passed != tt.want {
				t.Errorf("passed=%v, want %v", ev.Passed, tt.want)
			}
			if len(ev.Values) != 4 {
				t.Fatalf("expected 4 recorded values, got %d", len(ev.Values))
			}
			for i, w := range cfg.MAWindows {
				if ev.Values[i].Window != w {
					t.Errorf("value %d: window %d, want %d (ascending order)", i, ev.Values[i].Window, w)
				}
			}
		})
	}
}

func TestEvaluateConvergence_WidthAtLimitPasses(t *testing.T) {
	cfg := testScreen()
	// max 103, min 100 over the {5,10,20} subset: width exactly 3%.
	set := latestSet(map[int]float64{5: 103, 10: 101, 20: 100, 60: 90}, nil)
	ev := EvaluateConvergence(set, cfg)
	if ev.Width != 3.0 {
		t.Fatalf("width: got %v, want 3.0", ev.Width)
	}
	if !ev.Passed {
		t.Error("width equal to the limit must pass")
	}

	set2 := latestSet(map[int]float64{5: 103.1, 10: 101, 20: 100, 60: 90}, nil)
	if ev2 := EvaluateConvergence(set2, cfg); ev2.Passed {
		t.Errorf("width %v above the limit must fail", ev2.Width)
	}
}

func TestEvaluateConvergence_SubsetOnly(t *testing.T) {
	// The 60d window is far away but outside the configured subset, so it
	// must not count toward the width.
	set := latestSet(map[int]float64{5: 101, 10: 100.5, 20: 100, 60: 50}, nil)
	ev := EvaluateConvergence(set, testScreen())
	if !ev.Passed {
		t.Errorf("width %v should ignore the 60d window", ev.Width)
	}
	if len(ev.Windows) != 3 {
		t.Errorf("evidence windows: got %v", ev.Windows)
	}
}

func TestEvaluateConvergence_AbsoluteMetric(t *testing.T) {
	cfg := testScreen()
	cfg.ConvergenceMetric = "absolute"
	cfg.ConvergenceWidthAbs = 5.0

	set := latestSet(map[int]float64{5: 104, 10: 102, 20: 100, 60: 90}, nil)
	ev := EvaluateConvergence(set, cfg)
	if ev.Metric != model.MetricAbsolute {
		t.Errorf("metric: got %s", ev.Metric)
	}
	if ev.Width != 4.0 {
		t.Errorf("absolute width: got %v, want 4.0", ev.Width)
	}
	if !ev.Passed {
		t.Error("width 4 within limit 5 must pass")
	}

	set2 := latestSet(map[int]float64{5: 106, 10: 102, 20: 100, 60: 90}, nil)
	if ev2 := EvaluateConvergence(set2, cfg); ev2.Passed {
		t.Errorf("absolute width %v above limit must fail", ev2.Width)
	}
}

func TestEvaluateConvergence_UndefinedFailsClosed(t *testing.T) {
	set := latestSet(map[int]float64{5: 101, 10: math.NaN(), 20: 100, 60: 99}, nil)
	ev := EvaluateConvergence(set, testScreen())
	if ev.Passed {
		t.Error("undefined input must fail closed")
	}
	if !math.IsNaN(ev.Width) {
		t.Errorf("width should be NaN for undefined inputs, got %v", ev.Width)
	}
}

func TestPipelineEvaluate_FiltersAreIndependent(t *testing.T) {
	// Trend badly failing (inverted alignment) while the subset stays tight:
	// convergence must still be evaluated and pass on its own.
	set := latestSet(map[int]float64{5: 100, 10: 100.5, 20: 101, 60: 102},
		map[int]float64{5: 5_000_000})
	series := model.PriceSeries{
		Symbol: "2330",
		Bars:   []model.DailyBar{{Date: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), Close: 100, Volume: 5_000_000}},
	}

	p := NewPipeline(testScreen())
	res := p.Evaluate(model.Symbol{Code: "2330", Name: "台積電"}, series, set)

	if res.Trend.Passed {
		t.Error("inverted alignment should fail trend")
	}
	if !res.Convergence.Passed {
		t.Errorf("convergence should pass independently, width %v", res.Convergence.Width)
	}
	if !res.Liquidity.Passed {
		t.Error("liquidity should pass independently")
	}
	if res.Matched() {
		t.Error("a failed filter means no match")
	}
	if res.PassCount() != 2 {
		t.Errorf("pass count: got %d, want 2", res.PassCount())
	}
	if res.Close != 100 || res.Symbol != "2330" || res.Name != "台積電" {
		t.Errorf("result header: %+v", res)
	}
}
