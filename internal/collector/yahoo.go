package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"MarketScreener/internal/model"
)

// YahooFetcher implements Fetcher using the Yahoo Finance public chart API.
// Taiwan listed symbols map to code.TW, OTC symbols to code.TWO.
type YahooFetcher struct {
	Client    *http.Client
	BaseURL   string            // test override; defaults to the public chart API
	SymbolMap map[string]string // per-symbol ticker overrides
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooTicker(sym model.Symbol) string {
	if mapped, ok := f.SymbolMap[sym.Code]; ok {
		return mapped
	}
	if sym.Market == model.MarketTPEx {
		return sym.Code + ".TWO"
	}
	return sym.Code + ".TW"
}

// yahooChart is the response structure from the Yahoo chart API. Close and
// volume arrays carry JSON nulls on non-trading sessions, hence interface{}.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// FetchDailyHistory returns up to days daily bars for sym, oldest first.
// The request window is twice the requested span in calendar days so that
// weekends and holidays still leave enough trading sessions to trim from.
func (f *YahooFetcher) FetchDailyHistory(ctx context.Context, sym model.Symbol, days int) (model.PriceSeries, error) {
	base := f.BaseURL
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	now := time.Now()
	from := now.AddDate(0, 0, -days*2)
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		base, url.PathEscape(f.yahooTicker(sym)), from.Unix(), now.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.PriceSeries{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo fetch %s: %w", sym.Code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return model.PriceSeries{}, fmt.Errorf("%w: yahoo has no ticker %s", ErrSymbolUnavailable, f.yahooTicker(sym))
	}
	if resp.StatusCode != http.StatusOK {
		return model.PriceSeries{}, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return model.PriceSeries{}, fmt.Errorf("%w: yahoo api error: %s", ErrSymbolUnavailable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return model.PriceSeries{}, fmt.Errorf("%w: yahoo returned no data for %s", ErrSymbolUnavailable, sym.Code)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // null close, holiday or halted session
		}
		var v float64
		if i < len(quote.Volume) {
			v = toFloat(quote.Volume[i])
		}
		bars = append(bars, model.DailyBar{
			Date:   time.Unix(ts, 0),
			Close:  c,
			Volume: v,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return model.PriceSeries{Symbol: sym.Code, Bars: bars, FetchedAt: time.Now()}, nil
}
