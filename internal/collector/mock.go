package collector

import (
	"context"
	"time"

	"MarketScreener/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Canned series and errors are keyed by stock code; anything else gets a
// generated rising series that clears every filter at default settings.
type MockFetcher struct {
	Series map[string]model.PriceSeries
	Errs   map[string]error
	Base   float64 // base close for generated series, 100 when zero
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyHistory(_ context.Context, sym model.Symbol, days int) (model.PriceSeries, error) {
	if err, ok := m.Errs[sym.Code]; ok {
		return model.PriceSeries{}, err
	}
	if s, ok := m.Series[sym.Code]; ok {
		return s, nil
	}
	base := m.Base
	if base == 0 {
		base = 100
	}
	return GenerateSeries(sym.Code, base, 0.002, 2_500_000, days), nil
}

// GenerateSeries builds a linear daily series ending today at the base close.
// Positive drift makes older closes cheaper, so short moving averages sit
// above long ones. Volume is constant, in shares.
func GenerateSeries(code string, base, drift, volume float64, days int) model.PriceSeries {
	dates := weekdayDates(days)
	bars := make([]model.DailyBar, days)
	for i := 0; i < days; i++ {
		bars[i] = model.DailyBar{
			Date:   dates[i],
			Close:  base * (1 + float64(i-days+1)*drift),
			Volume: volume,
		}
	}
	return model.PriceSeries{Symbol: code, Bars: bars, FetchedAt: time.Now()}
}

// weekdayDates returns the most recent n weekdays in ascending order.
func weekdayDates(n int) []time.Time {
	dates := make([]time.Time, 0, n)
	d := time.Now().Truncate(24 * time.Hour)
	for len(dates) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}
	return dates
}
