package model

import (
	"math"
	"time"
)

// IndicatorSet holds simple moving averages of close and volume for one
// symbol, one slice per window, each aligned 1:1 with the source bars.
// The first window-1 positions of every slice are undefined and carry NaN,
// never zero. Use Defined to test a value before comparing it.
type IndicatorSet struct {
	Symbol  string
	Dates   []time.Time
	Windows []int // ascending, deduplicated
	Close   map[int][]float64
	Volume  map[int][]float64
}

// Defined reports whether a moving-average value exists at its position.
func Defined(x float64) bool { return !math.IsNaN(x) }

// Len returns the number of positions in the set.
func (s *IndicatorSet) Len() int { return len(s.Dates) }

// MinWindow returns the shortest configured window.
func (s *IndicatorSet) MinWindow() int {
	if len(s.Windows) == 0 {
		return 0
	}
	return s.Windows[0]
}

// MaxWindow returns the longest configured window.
func (s *IndicatorSet) MaxWindow() int {
	if len(s.Windows) == 0 {
		return 0
	}
	return s.Windows[len(s.Windows)-1]
}

// LatestClose returns the close MA for the given window at the most recent
// bar, or NaN when the window is unknown or the set is empty.
func (s *IndicatorSet) LatestClose(window int) float64 {
	return latest(s.Close[window])
}

// LatestVolume returns the volume MA for the given window at the most recent
// bar, or NaN when the window is unknown or the set is empty.
func (s *IndicatorSet) LatestVolume(window int) float64 {
	return latest(s.Volume[window])
}

// LatestDate returns the date of the most recent position.
func (s *IndicatorSet) LatestDate() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

func latest(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}
