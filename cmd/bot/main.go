package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketScreener/internal/collector"
	"MarketScreener/internal/config"
	"MarketScreener/internal/gateway"
	"MarketScreener/internal/metrics"
	"MarketScreener/internal/notifier"
	"MarketScreener/internal/recorder"
	"MarketScreener/internal/scheduler"
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
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] MarketScreener starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init sources
	universe := buildUniverse(cfg)
	fetcher := buildFetcher(cfg)
	log.Printf("[INFO] universe: %s, data source: %s", universe.Name(), fetcher.Name())

	// Init observability and the WebSocket gateway
	m := metrics.NewMetrics()
	health := metrics.NewHealth()
	hub := gateway.NewHub()
	srv := gateway.NewServer(cfg.Server.ListenAddr, hub, health)
	srv.Start()

	// Init screen runner
	runner := &screener.Runner{
		Universe: universe,
		Fetcher:  fetcher,
		Screen:   cfg.Screen,
		Delay:    time.Duration(cfg.DataSource.RequestDelayMS) * time.Millisecond,
		Metrics:  m,
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, runner, tn, rec, health, hub,
		cfg.Schedule.Timezone, time.Duration(cfg.Schedule.RetentionDays)*24*time.Hour)
	if err := sched.RegisterAll(cfg.Schedule.ScanCron, cfg.Schedule.PruneCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand)
	log.Println("[INFO] Telegram polling started")

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing scan now")
		go sched.RunScanNow()
	}

	log.Println("[INFO] MarketScreener is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)
	log.Println("[INFO] MarketScreener stopped")
}
