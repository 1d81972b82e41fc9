package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stockcast/internal/domain"
	"stockcast/internal/indicator"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "STOCKCAST_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "config/stockcast.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockcast pipeline.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Indicators indicator.Config `yaml:"indicators"`
	Labels     LabelConfig      `yaml:"labels"`
	Schedule   Schedule         `yaml:"schedule"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	Market     string `yaml:"market"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig controls the daily bar download.
type FetchConfig struct {
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	Symbols         []string `yaml:"symbols"`
	// SymbolsFile is a CSV universe used when Symbols is empty.
	SymbolsFile string `yaml:"symbols_file"`
}

// LabelConfig selects the label specs and materialization parameters.
type LabelConfig struct {
	Types   []string `yaml:"types"`
	Windows []int    `yaml:"windows"`
	Target  string   `yaml:"target"`
	// ContextRows bounds the committed history re-fed on incremental runs.
	// Zero re-feeds everything.
	ContextRows int `yaml:"context_rows"`
	Workers     int `yaml:"workers"`
}

// Specs expands Types x Windows.
func (l LabelConfig) Specs() ([]domain.LabelSpec, error) {
	return domain.ParseLabelSpecs(l.Types, l.Windows)
}

// Schedule configures the daemon.
type Schedule struct {
	Cron     string `yaml:"cron"`
	GRPCPort int    `yaml:"grpc_port"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path from the environment or the default.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects unusable settings with
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = c.Storage.DataDir + "/stockcast.db"
	}
	if c.Storage.Market == "" {
		c.Storage.Market = string(domain.MarketUS)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Fetch.StartDate == "" {
		c.Fetch.StartDate = "2015-01-01"
	}
	if c.Fetch.BatchSize <= 0 {
		c.Fetch.BatchSize = 500
	}
	if c.Fetch.MaxWorkers <= 0 {
		c.Fetch.MaxWorkers = 4
	}
	if c.Fetch.RateLimitPerMin <= 0 {
		c.Fetch.RateLimitPerMin = 200
	}

	def := indicator.DefaultConfig()
	if len(c.Indicators.SMAPeriods) == 0 {
		c.Indicators.SMAPeriods = def.SMAPeriods
	}
	if len(c.Indicators.EMAPeriods) == 0 {
		c.Indicators.EMAPeriods = def.EMAPeriods
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = def.RSIPeriod
	}
	if c.Indicators.BBPeriod == 0 {
		c.Indicators.BBPeriod = def.BBPeriod
	}
	if c.Indicators.BBWidth == 0 {
		c.Indicators.BBWidth = def.BBWidth
	}
	if c.Indicators.ATRPeriod == 0 {
		c.Indicators.ATRPeriod = def.ATRPeriod
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}

	if len(c.Labels.Types) == 0 {
		c.Labels.Types = []string{"linear_trend", "median_gain", "max_loss"}
	}
	if len(c.Labels.Windows) == 0 {
		c.Labels.Windows = []int{5, 10, 20}
	}
	if c.Labels.Target == "" {
		c.Labels.Target = domain.ColClose
	}
	if c.Labels.Workers <= 0 {
		c.Labels.Workers = 8
	}
	if c.Labels.ContextRows < 0 {
		return fmt.Errorf("%w: labels.context_rows %d is negative", domain.ErrConfiguration, c.Labels.ContextRows)
	}
	if _, err := c.Labels.Specs(); err != nil {
		return err
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "30 20 * * 1-5"
	}
	if c.Schedule.GRPCPort == 0 {
		c.Schedule.GRPCPort = 9090
	}
	return nil
}

// ---------------------------------------------------------------------------
// Command-line overrides
// ---------------------------------------------------------------------------

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseWindows parses a comma-separated list of positive integers.
func ParseWindows(s string) ([]int, error) {
	var out []int
	for _, p := range SplitList(s) {
		w, err := strconv.Atoi(p)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("%w: window %q is not a positive integer", domain.ErrConfiguration, p)
		}
		out = append(out, w)
	}
	return out, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take priority over the ALPACA_* names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
