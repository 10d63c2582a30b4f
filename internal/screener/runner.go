package screener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"MarketScreener/internal/calculator"
	"MarketScreener/internal/collector"
	"MarketScreener/internal/config"
	"MarketScreener/internal/metrics"
	"MarketScreener/internal/model"
)

// ProgressFunc receives a tick after each symbol reaches a terminal state.
type ProgressFunc func(done, total int, sym model.Symbol)

// Runner drives a full screen run: universe listing, concurrent history
// fetches, indicator construction and filter evaluation. Metrics and
// Progress are optional.
type Runner struct {
	Universe collector.UniverseSource
	Fetcher  collector.Fetcher
	Screen   config.ScreenConfig
	Delay    time.Duration // pause before each fetch, keeps the source happy
	Progress ProgressFunc
	Metrics  *metrics.Metrics
}

// symbolOutcome is one symbol's terminal state. A Pending outcome means the
// run was cancelled before the symbol was processed; it joins neither list.
type symbolOutcome struct {
	sym    model.Symbol
	state  model.SymbolState
	result model.ScreenResult
	skip   model.SkippedSymbol
}

// Run screens the whole universe. A completed run satisfies
// len(Results) + len(Skipped) == UniverseSize. When ctx is cancelled the
// partial report collected so far is returned together with the ctx error.
// Finding no matches is a completed run, not an error.
func (r *Runner) Run(ctx context.Context) (*model.ScreenReport, error) {
	started := time.Now()
	if r.Metrics != nil {
		r.Metrics.ScansTotal.Inc()
	}

	universe, err := r.Universe.List(ctx)
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.ScanFailures.Inc()
		}
		return nil, fmt.Errorf("list universe: %w", err)
	}
	total := len(universe)
	if r.Metrics != nil {
		r.Metrics.UniverseSize.Set(float64(total))
	}

	workers := r.Screen.Concurrency
	if workers < 1 {
		workers = 1
	}
	log.Printf("[INFO] Screen started: %d symbols from %s via %s, %d workers",
		total, r.Universe.Name(), r.Fetcher.Name(), workers)

	pipeline := NewPipeline(r.Screen)
	jobs := make(chan model.Symbol)
	outcomes := make(chan symbolOutcome)

	go func() {
		defer close(jobs)
		for _, sym := range universe {
			select {
			case jobs <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sym := range jobs {
				out := r.process(ctx, pipeline, sym)
				select {
				case outcomes <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single collector: report slices are touched by this loop only.
	report := &model.ScreenReport{StartedAt: started, UniverseSize: total}
	done := 0
	for out := range outcomes {
		done++
		switch out.state {
		case model.StateEvaluated:
			report.Results = append(report.Results, out.result)
		case model.StateSkipped:
			report.Skipped = append(report.Skipped, out.skip)
		}
		if r.Progress != nil {
			r.Progress(done, total, out.sym)
		}
	}
	sortReport(report)
	report.FinishedAt = time.Now()

	if err := ctx.Err(); err != nil {
		if r.Metrics != nil {
			r.Metrics.ScanFailures.Inc()
		}
		log.Printf("[WARN] Screen cancelled after %d/%d symbols: %v", done, total, err)
		return report, err
	}

	matches := len(report.Matches())
	if r.Metrics != nil {
		r.Metrics.ScanDuration.Observe(report.Duration().Seconds())
		r.Metrics.MatchesLastScan.Set(float64(matches))
		r.Metrics.LastScanUnix.Set(float64(report.FinishedAt.Unix()))
	}
	log.Printf("[INFO] Screen finished: %d evaluated, %d skipped, %d matched in %s",
		len(report.Results), len(report.Skipped), matches, report.Duration().Round(time.Millisecond))
	return report, nil
}

// process walks one symbol through fetch, validation, indicators and the
// filter pipeline.
func (r *Runner) process(ctx context.Context, p *Pipeline, sym model.Symbol) symbolOutcome {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return symbolOutcome{sym: sym, state: model.StatePending}
		}
	}

	fetchStart := time.Now()
	series, err := r.Fetcher.FetchDailyHistory(ctx, sym, r.Screen.LookbackDays)
	if r.Metrics != nil {
		r.Metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-fetch: not a verdict on the symbol.
			return symbolOutcome{sym: sym, state: model.StatePending}
		}
		if r.Metrics != nil {
			r.Metrics.FetchErrors.Inc()
		}
		return r.skipped(sym, model.SkipSymbolUnavailable, err)
	}

	if err := series.Validate(); err != nil {
		return r.skipped(sym, model.SkipMalformedSeries, err)
	}

	set, err := calculator.BuildIndicatorSet(series, r.Screen.MAWindows)
	if err != nil {
		if errors.Is(err, calculator.ErrInsufficientHistory) {
			return r.skipped(sym, model.SkipInsufficientHistory, err)
		}
		return r.skipped(sym, model.SkipMalformedSeries, err)
	}

	result := p.Evaluate(sym, series, set)
	if r.Metrics != nil {
		r.Metrics.SymbolsEvaluated.Inc()
		if result.Liquidity.Passed {
			r.Metrics.FilterPasses.WithLabelValues("liquidity").Inc()
		}
		if result.Trend.Passed {
			r.Metrics.FilterPasses.WithLabelValues("trend").Inc()
		}
		if result.Convergence.Passed {
			r.Metrics.FilterPasses.WithLabelValues("convergence").Inc()
		}
	}
	return symbolOutcome{sym: sym, state: model.StateEvaluated, result: result}
}

func (r *Runner) skipped(sym model.Symbol, reason model.SkipReason, err error) symbolOutcome {
	if r.Metrics != nil {
		r.Metrics.SymbolsSkipped.WithLabelValues(string(reason)).Inc()
	}
	log.Printf("[WARN] %s skipped (%s): %v", sym.Code, reason, err)
	return symbolOutcome{
		sym:   sym,
		state: model.StateSkipped,
		skip: model.SkippedSymbol{
			Symbol: sym.Code,
			Name:   sym.Name,
			Reason: reason,
			Detail: err.Error(),
		},
	}
}

// sortReport orders results by pass count, then by convergence width with
// defined widths first, then by code so equal runs produce identical output.
// The skip list sorts by code.
func sortReport(rep *model.ScreenReport) {
	sort.Slice(rep.Results, func(i, j int) bool {
		a, b := &rep.Results[i], &rep.Results[j]
		if a.PassCount() != b.PassCount() {
			return a.PassCount() > b.PassCount()
		}
		aw, bw := a.Convergence.Width, b.Convergence.Width
		ad, bd := model.Defined(aw), model.Defined(bw)
		if ad != bd {
			return ad
		}
		if ad && bd && aw != bw {
			return aw < bw
		}
		return a.Symbol < b.Symbol
	})
	sort.Slice(rep.Skipped, func(i, j int) bool {
		return rep.Skipped[i].Symbol < rep.Skipped[j].Symbol
	})
}
