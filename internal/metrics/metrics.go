package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the screener.
type Metrics struct {
	ScansTotal       prometheus.Counter
	ScanFailures     prometheus.Counter
	ScanDuration     prometheus.Histogram
	UniverseSize     prometheus.Gauge
	SymbolsEvaluated prometheus.Counter
	SymbolsSkipped   *prometheus.CounterVec // labels: reason
	FilterPasses     *prometheus.CounterVec // labels: filter
	MatchesLastScan  prometheus.Gauge
	FetchDuration    prometheus.Histogram
	FetchErrors      prometheus.Counter
	LastScanUnix     prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_scans_total",
			Help: "Screen runs started",
		}),
		ScanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_scan_failures_total",
			Help: "Screen runs that did not complete (source down or cancelled)",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_scan_duration_seconds",
			Help:    "Wall time of completed screen runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_universe_size",
			Help: "Symbols in the universe of the latest run",
		}),
		SymbolsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_symbols_evaluated_total",
			Help: "Symbols that reached full filter evaluation",
		}),
		SymbolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_symbols_skipped_total",
			Help: "Symbols skipped, by reason",
		}, []string{"reason"}),
		FilterPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_filter_passes_total",
			Help: "Individual filter passes, by filter",
		}, []string{"filter"}),
		MatchesLastScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_matches_last_scan",
			Help: "Symbols that passed all filters in the latest completed run",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_fetch_duration_seconds",
			Help:    "Per-symbol history fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_fetch_errors_total",
			Help: "Per-symbol history fetch failures",
		}),
		LastScanUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_last_scan_timestamp_seconds",
			Help: "Unix time of the latest completed run",
		}),
	}

	prometheus.MustRegister(
		m.ScansTotal,
		m.ScanFailures,
		m.ScanDuration,
		m.UniverseSize,
		m.SymbolsEvaluated,
		m.SymbolsSkipped,
		m.FilterPasses,
		m.MatchesLastScan,
		m.FetchDuration,
		m.FetchErrors,
		m.LastScanUnix,
	)

	return m
}

// Health tracks scan liveness for the /healthz endpoint.
type Health struct {
	mu sync.RWMutex

	startedAt    time.Time
	scanning     bool
	lastScanAt   time.Time
	lastError    string
	lastMatches  int
	universeSize int
}

// NewHealth returns a health tracker anchored at process start.
func NewHealth() *Health {
	return &Health{startedAt: time.Now()}
}

func (h *Health) SetScanning(v bool) {
	h.mu.Lock()
	h.scanning = v
	h.mu.Unlock()
}

// SetLastScan records the outcome of a finished run. A nil err clears any
// previous degradation.
func (h *Health) SetLastScan(at time.Time, matches, universe int, err error) {
	h.mu.Lock()
	h.lastScanAt = at
	h.lastMatches = matches
	h.universeSize = universe
	if err != nil {
		h.lastError = err.Error()
	} else {
		h.lastError = ""
	}
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. A failed last scan reports the
// service as degraded with a 503 so probes notice silently broken schedules.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "ok"
	code := http.StatusOK
	if h.lastError != "" {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	lastScan := ""
	scanAge := ""
	if !h.lastScanAt.IsZero() {
		lastScan = h.lastScanAt.Format(time.RFC3339)
		scanAge = time.Since(h.lastScanAt).Round(time.Second).String()
	}

	status := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		Scanning     bool   `json:"scanning"`
		LastScanAt   string `json:"last_scan_at,omitempty"`
		LastScanAge  string `json:"last_scan_age,omitempty"`
		LastError    string `json:"last_error,omitempty"`
		LastMatches  int    `json:"last_matches"`
		UniverseSize int    `json:"universe_size"`
	}{
		Status:       overall,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Scanning:     h.scanning,
		LastScanAt:   lastScan,
		LastScanAge:  scanAge,
		LastError:    h.lastError,
		LastMatches:  h.lastMatches,
		UniverseSize: h.universeSize,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}
