package collector

import (
	"context"
	"errors"

	"MarketScreener/internal/model"
)

// ErrUniverseUnavailable means the symbol universe could not be produced at
// all. A screening run cannot start without a universe.
var ErrUniverseUnavailable = errors.New("universe unavailable")

// ErrSymbolUnavailable means history for one symbol could not be fetched.
// The symbol is skipped; the run continues.
var ErrSymbolUnavailable = errors.New("symbol unavailable")

// UniverseSource produces the set of symbols a screening run iterates over.
type UniverseSource interface {
	List(ctx context.Context) ([]model.Symbol, error)
	Name() string
}

// Fetcher retrieves daily price history for a single symbol.
type Fetcher interface {
	FetchDailyHistory(ctx context.Context, sym model.Symbol, days int) (model.PriceSeries, error)
	Name() string
}
