package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedSeries marks price data that cannot be screened.
var ErrMalformedSeries = errors.New("malformed price series")

// Market identifies the listing board a symbol trades on.
type Market string

const (
	MarketTWSE Market = "TWSE" // Taiwan Stock Exchange (listed)
	MarketTPEx Market = "TPEX" // Taipei Exchange (over-the-counter)
)

// Symbol identifies a listed instrument. Code is the 4-digit exchange code
// (e.g. "2330") and is the identity used throughout the screener.
type Symbol struct {
	Code   string `json:"code"`
	Name   string `json:"name,omitempty"`
	Market Market `json:"market,omitempty"`
}

// DailyBar is one day of trading: closing price and traded volume in shares.
type DailyBar struct {
	Date   time.Time
	Close  float64
	Volume float64
}

// PriceSeries holds the daily history for one symbol, oldest bar first.
// A series is treated as immutable once produced by a fetcher.
type PriceSeries struct {
	Symbol    string
	Bars      []DailyBar
	FetchedAt time.Time
}

// Len returns the number of bars in the series.
func (s *PriceSeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar. Callers must ensure the series is non-empty.
func (s *PriceSeries) Last() DailyBar { return s.Bars[len(s.Bars)-1] }

// Closes returns the closing prices in chronological order.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the traded volumes in chronological order.
func (s *PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Dates returns the bar dates in chronological order.
func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// Validate checks the structural invariants of the series: non-empty,
// strictly ascending dates, positive closes, non-negative volumes.
// Violations are reported as ErrMalformedSeries.
func (s *PriceSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%w: empty series", ErrMalformedSeries)
	}
	for i, b := range s.Bars {
		if b.Date.IsZero() {
			return fmt.Errorf("%w: bar %d has no date", ErrMalformedSeries, i)
		}
		if math.IsNaN(b.Close) || b.Close <= 0 {
			return fmt.Errorf("%w: bar %d (%s) has close %v", ErrMalformedSeries, i, b.Date.Format("2006-01-02"), b.Close)
		}
		if math.IsNaN(b.Volume) || b.Volume < 0 {
			return fmt.Errorf("%w: bar %d (%s) has volume %v", ErrMalformedSeries, i, b.Date.Format("2006-01-02"), b.Volume)
		}
		if i > 0 && !s.Bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("%w: dates not strictly ascending at bar %d (%s)", ErrMalformedSeries, i, b.Date.Format("2006-01-02"))
		}
	}
	return nil
}
