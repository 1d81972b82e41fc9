package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stockcast/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockcast.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID",
		"APCA_API_SECRET_KEY", "DATA_DIR", "SQLITE_PATH", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/stockcast/data"
  sqlite_path: "/tmp/stockcast/runs.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "text"
fetch:
  start_date: "2020-01-01"
  batch_size: 250
  symbols: ["AAPL", "MSFT"]
indicators:
  sma_periods: [10, 30]
  rsi_period: 7
labels:
  types: ["median_gain", "max_loss"]
  windows: [5, 60]
  context_rows: 120
  workers: 12
schedule:
  cron: "0 19 * * 1-5"
  grpc_port: 9191
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/stockcast/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/stockcast/data")
	}
	if cfg.Storage.Market != "us" {
		t.Errorf("Storage.Market = %q, want default %q", cfg.Storage.Market, "us")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Fetch.BatchSize != 250 || len(cfg.Fetch.Symbols) != 2 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Fetch.RateLimitPerMin != 200 {
		t.Errorf("Fetch.RateLimitPerMin = %d, want default 200", cfg.Fetch.RateLimitPerMin)
	}
	if cfg.Indicators.RSIPeriod != 7 || cfg.Indicators.BBPeriod != 20 {
		t.Errorf("Indicators = %+v, want rsi 7 and default bb 20", cfg.Indicators)
	}
	if cfg.Labels.Target != "Close" || cfg.Labels.ContextRows != 120 || cfg.Labels.Workers != 12 {
		t.Errorf("Labels = %+v", cfg.Labels)
	}
	if cfg.Schedule.GRPCPort != 9191 {
		t.Errorf("Schedule.GRPCPort = %d, want 9191", cfg.Schedule.GRPCPort)
	}

	specs, err := cfg.Labels.Specs()
	if err != nil {
		t.Fatalf("Specs() returned error: %v", err)
	}
	if len(specs) != 4 || specs[0].Column() != "Median Gain 5dd" || specs[3].Column() != "Max Loss 60dd" {
		t.Errorf("Specs() = %v", specs)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "data" || cfg.Storage.SQLitePath != "data/stockcast.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if len(cfg.Labels.Types) != 3 || len(cfg.Labels.Windows) != 3 {
		t.Errorf("Labels = %+v, want all three families over three windows", cfg.Labels)
	}
	if cfg.Schedule.Cron == "" {
		t.Error("Schedule.Cron should have a default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("APCA_API_SECRET_KEY", "apca-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "apca-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "apca-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
}

func TestLoadRejectsInvalidLabels(t *testing.T) {
	clearEnv(t)
	for name, content := range map[string]string{
		"unknown type": "labels:\n  types: [\"volatility\"]\n",
		"zero window":  "labels:\n  windows: [5, 0]\n",
		"negative ctx": "labels:\n  context_rows: -1\n",
		"bad bb width": "indicators:\n  bb_width: -2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Load() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvPath, "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
	t.Setenv(EnvPath, "/etc/stockcast.yaml")
	if got := Path(); got != "/etc/stockcast.yaml" {
		t.Errorf("Path() = %q, want env value", got)
	}
}

func TestParseWindows(t *testing.T) {
	got, err := ParseWindows("5, 10,,20")
	if err != nil {
		t.Fatalf("ParseWindows() returned error: %v", err)
	}
	if len(got) != 3 || got[2] != 20 {
		t.Errorf("ParseWindows() = %v, want [5 10 20]", got)
	}
	for _, bad := range []string{"5,x", "0", "-3"} {
		if _, err := ParseWindows(bad); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("ParseWindows(%q) error = %v, want ErrConfiguration", bad, err)
		}
	}
}
