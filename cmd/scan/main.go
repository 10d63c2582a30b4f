package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"MarketScreener/internal/collector"
	"MarketScreener/internal/config"
	"MarketScreener/internal/gateway"
	"MarketScreener/internal/model"
	"MarketScreener/internal/screener"
)

func buildUniverse(cfg *config.Config) collector.UniverseSource {
	switch cfg.Universe.Source {
	case "csv":
		return collector.NewCSVUniverse(cfg.Universe.CSVPath)
	case "static":
		return collector.FromCodes(cfg.Universe.Symbols)
	default: // twse
		return collector.NewTwseUniverse(cfg.Proxy, cfg.Universe.IncludeOTC,
			cfg.Universe.CacheFile, time.Duration(cfg.Universe.CacheTTLHours)*time.Hour)
	}
}

func buildFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case "rest":
		return collector.NewRestFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "mock":
		return &collector.MockFetcher{}
	default: // yahoo
		return collector.NewYahooFetcher(cfg.Proxy)
	}
}

func main() {
	var (
		cfgPath   = flag.String("config", "", "path to YAML config file")
		symbols   = flag.String("symbols", "", "comma-separated stock codes to screen instead of the configured universe")
		csvPath   = flag.String("csv", "", "CSV universe file to screen instead of the configured universe")
		provider  = flag.String("provider", "", "data source override: yahoo, rest or mock")
		threshold = flag.Int("threshold", 0, "volume threshold override, in lots")
		width     = flag.Float64("width", 0, "convergence width override, for the metric in use")
		lookback  = flag.Int("lookback", 0, "history lookback override, in days")
		top       = flag.Int("top", 0, "print at most N rows")
		all       = flag.Bool("all", false, "print every evaluated symbol with per-filter outcomes")
		asJSON    = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}

	if *provider != "" {
		cfg.DataSource.Provider = *provider
	}
	if *symbols != "" {
		cfg.Universe.Source = "static"
		cfg.Universe.Symbols = strings.Split(*symbols, ",")
	}
	if *csvPath != "" {
		cfg.Universe.Source = "csv"
		cfg.Universe.CSVPath = *csvPath
	}
	if *threshold > 0 {
		cfg.Screen.VolumeThresholdLots = *threshold
	}
	if *width > 0 {
		if cfg.Screen.Metric() == model.MetricAbsolute {
			cfg.Screen.ConvergenceWidthAbs = *width
		} else {
			cfg.Screen.ConvergenceWidthPct = *width
		}
	}
	if *lookback > 0 {
		cfg.Screen.LookbackDays = *lookback
	}

	// The one-shot CLI needs no Telegram section, so Config.Validate is too strict.
	if err := cfg.ValidateSources(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	if err := cfg.Screen.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &screener.Runner{
		Universe: buildUniverse(cfg),
		Fetcher:  buildFetcher(cfg),
		Screen:   cfg.Screen,
		Delay:    time.Duration(cfg.DataSource.RequestDelayMS) * time.Millisecond,
		Progress: func(done, total int, _ model.Symbol) {
			if done%100 == 0 && done < total {
				log.Printf("[INFO] progress: %d/%d", done, total)
			}
		},
	}
	log.Printf("[INFO] screen: %s", cfg.Screen.Describe())

	rep, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("[FATAL] scan failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(gateway.BuildReportPayload(rep)); err != nil {
			log.Fatalf("[FATAL] encode report: %v", err)
		}
		return
	}

	printReport(rep, *top, *all)
}

func printReport(rep *model.ScreenReport, top int, all bool) {
	matches := rep.Matches()
	fmt.Printf("Screen finished in %s: %d in universe, %d evaluated, %d skipped, %d matched\n",
		rep.Duration().Round(time.Millisecond), rep.UniverseSize, len(rep.Results), len(rep.Skipped), len(matches))

	if all {
		printEvaluated(rep.Results, top)
	} else if len(matches) == 0 {
		fmt.Println("no symbols matched")
	} else {
		printMatches(matches, top)
	}

	if len(rep.Skipped) > 0 {
		counts := rep.SkipCounts()
		fmt.Printf("skipped: %d unavailable, %d insufficient history, %d malformed\n",
			counts[model.SkipSymbolUnavailable], counts[model.SkipInsufficientHistory], counts[model.SkipMalformedSeries])
	}
}

func printMatches(matches []model.ScreenResult, top int) {
	if top > 0 && len(matches) > top {
		defer fmt.Printf("(%d more matches not shown)\n", len(matches)-top)
		matches = matches[:top]
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCODE\tNAME\tCLOSE\tVOL(LOTS)\tWIDTH")
	for i, m := range matches {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.0f\t%s\n",
			i+1, m.Symbol, m.Name, m.Close, m.Liquidity.AvgVolumeLots, widthString(m.Convergence))
	}
	w.Flush()
}

func printEvaluated(results []model.ScreenResult, top int) {
	if top > 0 && len(results) > top {
		defer fmt.Printf("(%d more rows not shown)\n", len(results)-top)
		results = results[:top]
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tCLOSE\tVOL(LOTS)\tWIDTH\tLIQ\tTREND\tCONV")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\t%s\n",
			r.Symbol, r.Name, r.Close,
			lotsString(r.Liquidity.AvgVolumeLots), widthString(r.Convergence),
			passMark(r.Liquidity.Passed), passMark(r.Trend.Passed), passMark(r.Convergence.Passed))
	}
	w.Flush()
}

func widthString(ev model.ConvergenceEvidence) string {
	if math.IsNaN(ev.Width) {
		return "-"
	}
	if ev.Metric == model.MetricAbsolute {
		return fmt.Sprintf("%.2f", ev.Width)
	}
	return fmt.Sprintf("%.2f%%", ev.Width)
}

func lotsString(lots float64) string {
	if math.IsNaN(lots) {
		return "-"
	}
	return fmt.Sprintf("%.0f", lots)
}

func passMark(passed bool) string {
	if passed {
		return "Y"
	}
	return "N"
}
