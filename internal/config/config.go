package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MarketScreener/internal/model"
)

// ErrInvalid marks configuration rejected at construction. Nothing falls
// back to a default once validation has failed.
var ErrInvalid = errors.New("invalid config")

// ScreenConfig holds the screening thresholds and windows.
type ScreenConfig struct {
	VolumeThresholdLots int     `yaml:"volume_threshold_lots"`
	LotSize             int     `yaml:"lot_size"`
	MAWindows           []int   `yaml:"ma_windows"`
	ConvergenceWindows  []int   `yaml:"convergence_windows"`
	ConvergenceMetric   string  `yaml:"convergence_metric"`
	ConvergenceWidthPct float64 `yaml:"convergence_width_pct"`
	ConvergenceWidthAbs float64 `yaml:"convergence_width_abs"`
	LookbackDays        int     `yaml:"lookback_days"`
	Concurrency         int     `yaml:"concurrency"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider       string `yaml:"provider"` // yahoo, rest, mock
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		RequestDelayMS int    `yaml:"request_delay_ms"`
	} `yaml:"data_source"`
	Universe struct {
		Source        string   `yaml:"source"` // twse, csv, static
		IncludeOTC    bool     `yaml:"include_otc"`
		CSVPath       string   `yaml:"csv_path"`
		Symbols       []string `yaml:"symbols"`
		CacheFile     string   `yaml:"cache_file"`
		CacheTTLHours int      `yaml:"cache_ttl_hours"`
	} `yaml:"universe"`
	Screen   ScreenConfig `yaml:"screen"`
	Schedule struct {
		ScanCron      string `yaml:"scan_cron"`
		PruneCron     string `yaml:"prune_cron"`
		Timezone      string `yaml:"timezone"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then fills defaults. Validation is a separate step.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("REST_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("REST_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("UNIVERSE_SOURCE"); v != "" {
		cfg.Universe.Source = v
	}
	if v := os.Getenv("VOLUME_THRESHOLD_LOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Screen.VolumeThresholdLots = n
		}
	}
	if v := os.Getenv("CONVERGENCE_WIDTH_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Screen.ConvergenceWidthPct = f
		}
	}
	if v := os.Getenv("CRON_SCAN"); v != "" {
		cfg.Schedule.ScanCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.RequestDelayMS == 0 {
		c.DataSource.RequestDelayMS = 150
	}
	if c.Universe.Source == "" {
		c.Universe.Source = "twse"
	}
	if c.Universe.CacheFile == "" {
		c.Universe.CacheFile = "data/universe.json"
	}
	if c.Universe.CacheTTLHours == 0 {
		c.Universe.CacheTTLHours = 24
	}
	if c.Screen.VolumeThresholdLots == 0 {
		c.Screen.VolumeThresholdLots = 2000
	}
	if c.Screen.LotSize == 0 {
		c.Screen.LotSize = 1000
	}
	if len(c.Screen.MAWindows) == 0 {
		c.Screen.MAWindows = []int{5, 10, 20, 60}
	}
	if len(c.Screen.ConvergenceWindows) == 0 {
		c.Screen.ConvergenceWindows = append([]int(nil), c.Screen.MAWindows...)
	}
	if c.Screen.ConvergenceMetric == "" {
		c.Screen.ConvergenceMetric = string(model.MetricRelative)
	}
	if c.Screen.LookbackDays == 0 {
		c.Screen.LookbackDays = 80
	}
	if c.Screen.Concurrency == 0 {
		c.Screen.Concurrency = 8
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 30 15 * * 1-5" // after the TWSE close
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 0 4 1 * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Taipei"
	}
	if c.Schedule.RetentionDays == 0 {
		c.Schedule.RetentionDays = 180
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/market_screener.db"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8787"
	}
}

// Validate checks everything the bot needs. The one-shot CLI validates only
// the sections it uses.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token is required", ErrInvalid)
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("%w: telegram.chat_id is required", ErrInvalid)
	}
	if err := c.ValidateSources(); err != nil {
		return err
	}
	return c.Screen.Validate()
}

// ValidateSources checks the data source and universe sections.
func (c *Config) ValidateSources() error {
	switch c.DataSource.Provider {
	case "yahoo", "mock":
	case "rest":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("%w: data_source.base_url is required for the rest provider", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown data_source.provider %q", ErrInvalid, c.DataSource.Provider)
	}
	switch c.Universe.Source {
	case "twse":
	case "csv":
		if c.Universe.CSVPath == "" {
			return fmt.Errorf("%w: universe.csv_path is required for the csv source", ErrInvalid)
		}
	case "static":
		if len(c.Universe.Symbols) == 0 {
			return fmt.Errorf("%w: universe.symbols is required for the static source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown universe.source %q", ErrInvalid, c.Universe.Source)
	}
	if c.DataSource.RequestDelayMS < 0 {
		return fmt.Errorf("%w: data_source.request_delay_ms must not be negative", ErrInvalid)
	}
	return nil
}

// Validate checks the screening options. The convergence width has no
// default: it must be set explicitly for the metric in use.
func (s *ScreenConfig) Validate() error {
	if s.VolumeThresholdLots <= 0 {
		return fmt.Errorf("%w: screen.volume_threshold_lots must be positive", ErrInvalid)
	}
	if s.LotSize <= 0 {
		return fmt.Errorf("%w: screen.lot_size must be positive", ErrInvalid)
	}
	if len(s.MAWindows) == 0 {
		return fmt.Errorf("%w: screen.ma_windows must not be empty", ErrInvalid)
	}
	for i, w := range s.MAWindows {
		if w <= 0 {
			return fmt.Errorf("%w: screen.ma_windows[%d] must be positive, got %d", ErrInvalid, i, w)
		}
		if i > 0 && w <= s.MAWindows[i-1] {
			return fmt.Errorf("%w: screen.ma_windows must be strictly increasing, got %v", ErrInvalid, s.MAWindows)
		}
	}
	if len(s.ConvergenceWindows) < 2 {
		return fmt.Errorf("%w: screen.convergence_windows needs at least 2 windows", ErrInvalid)
	}
	known := make(map[int]bool, len(s.MAWindows))
	for _, w := range s.MAWindows {
		known[w] = true
	}
	for _, w := range s.ConvergenceWindows {
		if !known[w] {
			return fmt.Errorf("%w: screen.convergence_windows contains %d, which is not in ma_windows %v", ErrInvalid, w, s.MAWindows)
		}
	}
	switch model.ConvergenceMetric(s.ConvergenceMetric) {
	case model.MetricRelative:
		if s.ConvergenceWidthPct <= 0 {
			return fmt.Errorf("%w: screen.convergence_width_pct must be set explicitly (> 0) for the relative metric", ErrInvalid)
		}
	case model.MetricAbsolute:
		if s.ConvergenceWidthAbs <= 0 {
			return fmt.Errorf("%w: screen.convergence_width_abs must be set explicitly (> 0) for the absolute metric", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: screen.convergence_metric must be %q or %q, got %q",
			ErrInvalid, model.MetricRelative, model.MetricAbsolute, s.ConvergenceMetric)
	}
	if s.LookbackDays < s.MaxWindow() {
		return fmt.Errorf("%w: screen.lookback_days %d is shorter than the longest window %d", ErrInvalid, s.LookbackDays, s.MaxWindow())
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: screen.concurrency must be at least 1", ErrInvalid)
	}
	return nil
}

// LiquidityWindow returns the window the volume screen uses: the shortest
// configured moving-average window.
func (s *ScreenConfig) LiquidityWindow() int {
	if len(s.MAWindows) == 0 {
		return 0
	}
	return s.MAWindows[0]
}

// MaxWindow returns the longest configured moving-average window.
func (s *ScreenConfig) MaxWindow() int {
	if len(s.MAWindows) == 0 {
		return 0
	}
	return s.MAWindows[len(s.MAWindows)-1]
}

// Metric returns the convergence metric as a model value.
func (s *ScreenConfig) Metric() model.ConvergenceMetric {
	return model.ConvergenceMetric(s.ConvergenceMetric)
}

// ConvergenceLimit returns the width limit for the metric in use: percent
// for relative, price units for absolute.
func (s *ScreenConfig) ConvergenceLimit() float64 {
	if s.Metric() == model.MetricAbsolute {
		return s.ConvergenceWidthAbs
	}
	return s.ConvergenceWidthPct
}

// Describe returns a short human-readable summary of the screen options.
func (s *ScreenConfig) Describe() string {
	windows := make([]string, len(s.MAWindows))
	for i, w := range s.MAWindows {
		windows[i] = strconv.Itoa(w)
	}
	unit := "%"
	if s.Metric() == model.MetricAbsolute {
		unit = ""
	}
	return fmt.Sprintf("MA[%s] vol>%d lots width<=%.2f%s",
		strings.Join(windows, ","), s.VolumeThresholdLots, s.ConvergenceLimit(), unit)
}
