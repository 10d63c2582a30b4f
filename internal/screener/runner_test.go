package screener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketScreener/internal/collector"
	"MarketScreener/internal/model"
)

func TestRun_MixedUniverse(t *testing.T) {
	universe := collector.FromCodes([]string{"1111", "2222", "3333"})
	fetcher := &collector.MockFetcher{
		Series: map[string]model.PriceSeries{
			"1111": collector.GenerateSeries("1111", 100, 0.002, 2_500_000, 80),
			"3333": collector.GenerateSeries("3333", 100, 0.002, 2_500_000, 30),
		},
		Errs: map[string]error{
			"2222": fmt.Errorf("%w: no ticker", collector.ErrSymbolUnavailable),
		},
	}

	var mu sync.Mutex
	var lastDone int
	r := &Runner{
		Universe: universe,
		Fetcher:  fetcher,
		Screen:   testScreen(),
		Progress: func(done, total int, _ model.Symbol) {
			mu.Lock()
			lastDone = done
			mu.Unlock()
			if total != 3 {
				t.Errorf("progress total: got %d", total)
			}
		},
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.UniverseSize != 3 {
		t.Errorf("universe size: got %d", report.UniverseSize)
	}
	if got := len(report.Results) + len(report.Skipped); got != report.UniverseSize {
		t.Errorf("conservation violated: %d results + %d skipped != %d",
			len(report.Results), len(report.Skipped), report.UniverseSize)
	}
	if lastDone != 3 {
		t.Errorf("final progress tick: got %d", lastDone)
	}

	if len(report.Results) != 1 || report.Results[0].Symbol != "1111" {
		t.Fatalf("expected 1111 evaluated, got %+v", report.Results)
	}
	if !report.Results[0].Matched() {
		t.Error("rising liquid series should match all filters")
	}

	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skips, got %+v", report.Skipped)
	}
	// Skip list sorts by code.
	if report.Skipped[0].Symbol != "2222" || report.Skipped[0].Reason != model.SkipSymbolUnavailable {
		t.Errorf("skip 0: %+v", report.Skipped[0])
	}
	if report.Skipped[1].Symbol != "3333" || report.Skipped[1].Reason != model.SkipInsufficientHistory {
		t.Errorf("skip 1: %+v", report.Skipped[1])
	}
	if report.Skipped[1].Detail == "" {
		t.Error("skip detail should carry the underlying error")
	}
}

func TestRun_MalformedSeriesSkipped(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	bad := model.PriceSeries{
		Symbol: "4444",
		Bars: []model.DailyBar{
			{Date: day, Close: 100, Volume: 1000},
			{Date: day, Close: 101, Volume: 1000}, // duplicate date
		},
	}
	r := &Runner{
		Universe: collector.FromCodes([]string{"4444"}),
		Fetcher:  &collector.MockFetcher{Series: map[string]model.PriceSeries{"4444": bad}},
		Screen:   testScreen(),
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != model.SkipMalformedSeries {
		t.Fatalf("expected malformed skip, got %+v", report.Skipped)
	}
}

func TestRun_Ranking(t *testing.T) {
	fetcher := &collector.MockFetcher{
		Series: map[string]model.PriceSeries{
			"0001": collector.GenerateSeries("0001", 100, 0.001, 2_500_000, 80),
			"9998": collector.GenerateSeries("9998", 100, 0.001, 2_500_000, 80),
			"2222": collector.GenerateSeries("2222", 100, 0.002, 2_500_000, 80),
			"3333": collector.GenerateSeries("3333", 100, -0.001, 2_500_000, 80),
		},
	}
	r := &Runner{
		Universe: collector.FromCodes([]string{"9998", "3333", "2222", "0001"}),
		Fetcher:  fetcher,
		Screen:   testScreen(),
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 evaluated, got %d", len(report.Results))
	}

	// Full passes first ordered by convergence width, width ties by code,
	// then the partial pass.
	wantOrder := []string{"0001", "9998", "2222", "3333"}
	for i, want := range wantOrder {
		if report.Results[i].Symbol != want {
			t.Fatalf("rank %d: got %s, want %s (full order %v)", i, report.Results[i].Symbol, want, symbols(report.Results))
		}
	}
	if report.Results[3].PassCount() != 2 {
		t.Errorf("falling series should pass 2 of 3, got %d", report.Results[3].PassCount())
	}
	if w0, w2 := report.Results[0].Convergence.Width, report.Results[2].Convergence.Width; w0 >= w2 {
		t.Errorf("expected tighter width first: %v vs %v", w0, w2)
	}

	// Same inputs, same order.
	again, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	for i := range report.Results {
		if report.Results[i].Symbol != again.Results[i].Symbol {
			t.Fatalf("ranking not deterministic: %v vs %v", symbols(report.Results), symbols(again.Results))
		}
	}
}

func symbols(results []model.ScreenResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Symbol
	}
	return out
}

func TestRun_UniverseUnavailable(t *testing.T) {
	r := &Runner{
		Universe: collector.FromCodes(nil),
		Fetcher:  &collector.MockFetcher{},
		Screen:   testScreen(),
	}
	report, err := r.Run(context.Background())
	if report != nil {
		t.Error("no report when the universe cannot be listed")
	}
	if !errors.Is(err, collector.ErrUniverseUnavailable) {
		t.Errorf("expected ErrUniverseUnavailable, got %v", err)
	}
}

func TestRun_CancellationReturnsPartialReport(t *testing.T) {
	codes := make([]string, 50)
	for i := range codes {
		codes[i] = fmt.Sprintf("%04d", i+1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Runner{
		Universe: collector.FromCodes(codes),
		Fetcher:  &collector.MockFetcher{},
		Screen:   testScreen(),
		Delay:    10 * time.Millisecond,
		Progress: func(done, total int, _ model.Symbol) {
			if done == 4 {
				cancel()
			}
		},
	}
	r.Screen.Concurrency = 2

	report, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatal("cancelled run must still return the partial report")
	}
	processed := len(report.Results) + len(report.Skipped)
	if processed < 4 {
		t.Errorf("expected at least the 4 completed symbols, got %d", processed)
	}
	if processed >= 50 {
		t.Errorf("expected an interrupted run, but all %d symbols completed", processed)
	}
	if report.UniverseSize != 50 {
		t.Errorf("universe size: got %d", report.UniverseSize)
	}
}

func TestRun_NoMatchesIsNotAnError(t *testing.T) {
	// Falling series: liquidity and convergence pass, trend fails.
	fetcher := &collector.MockFetcher{
		Series: map[string]model.PriceSeries{
			"5555": collector.GenerateSeries("5555", 100, -0.001, 2_500_000, 80),
		},
	}
	r := &Runner{
		Universe: collector.FromCodes([]string{"5555"}),
		Fetcher:  fetcher,
		Screen:   testScreen(),
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("zero matches must not be an error: %v", err)
	}
	if len(report.Matches()) != 0 {
		t.Errorf("expected no matches, got %v", symbols(report.Matches()))
	}
	if len(report.Results) != 1 {
		t.Errorf("symbol should still be evaluated with evidence: %+v", report.Results)
	}
}
