package calculator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"MarketScreener/internal/model"
)

// ErrInsufficientHistory marks a series shorter than the longest requested window.
var ErrInsufficientHistory = errors.New("insufficient history")

// RollingMean computes the period-length simple moving average of x, aligned
// 1:1 with x. The first period-1 positions have no defined value and carry
// NaN. Runs in O(len(x)) using a rolling sum.
func RollingMean(x []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i := range x {
		sum += x[i]
		if i >= period {
			sum -= x[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// BuildIndicatorSet computes close and volume moving averages for every
// window over the given series. The windows are sorted and deduplicated.
// Returns ErrInsufficientHistory when the series is shorter than the longest
// window; no partial set is produced.
func BuildIndicatorSet(series model.PriceSeries, windows []int) (*model.IndicatorSet, error) {
	if len(windows) == 0 {
		return nil, errors.New("no moving-average windows given")
	}
	ws := make([]int, 0, len(windows))
	seen := make(map[int]bool, len(windows))
	for _, w := range windows {
		if w <= 0 {
			return nil, fmt.Errorf("window must be positive, got %d", w)
		}
		if !seen[w] {
			seen[w] = true
			ws = append(ws, w)
		}
	}
	sort.Ints(ws)

	maxWindow := ws[len(ws)-1]
	if series.Len() < maxWindow {
		return nil, fmt.Errorf("%w: %d bars, longest window needs %d", ErrInsufficientHistory, series.Len(), maxWindow)
	}

	closes := series.Closes()
	volumes := series.Volumes()

	set := &model.IndicatorSet{
		Symbol:  series.Symbol,
		Dates:   series.Dates(),
		Windows: ws,
		Close:   make(map[int][]float64, len(ws)),
		Volume:  make(map[int][]float64, len(ws)),
	}
	for _, w := range ws {
		c, err := RollingMean(closes, w)
		if err != nil {
			return nil, err
		}
		v, err := RollingMean(volumes, w)
		if err != nil {
			return nil, err
		}
		set.Close[w] = c
		set.Volume[w] = v
	}
	return set, nil
}
