package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/gather"
	"stockcast/internal/gather/us"
	"stockcast/internal/pipeline"
	"stockcast/internal/store"
	"stockcast/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols to fetch (default: configured list, then stored symbols)")
	symbolsFile := flag.String("symbols-file", "", "CSV universe file, or a directory holding dated <prefix>_YYYY-MM-DD.csv files")
	filePrefix := flag.String("prefix", "us_stock", "file prefix used when -symbols-file is a directory")
	startDate := flag.String("start", "", "first date for symbols without stored bars (YYYY-MM-DD)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *startDate != "" {
		cfg.Fetch.StartDate = *startDate
	}
	if *symbolsFile != "" {
		cfg.Fetch.SymbolsFile = *symbolsFile
		if fi, err := os.Stat(*symbolsFile); err == nil && fi.IsDir() {
			cfg.Fetch.SymbolsFile = gather.LatestSymbolFile(*symbolsFile, *filePrefix)
		}
	}

	// Dual logger: stdout + /tmp log file.
	logFile, err := util.OpenLogFile(os.TempDir(), "fetch-bars")
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logFile.Close()
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, io.MultiWriter(os.Stdout, logFile)))

	pstore := store.NewParquetStore(cfg.Storage.DataDir, domain.Market(cfg.Storage.Market))
	p, err := pipeline.New(cfg, pstore, nil)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	fetcher := us.NewDailyBarFetcher(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.BaseURL,
		pstore,
		us.FetchOptions{
			StartDate:       cfg.Fetch.StartDate,
			BatchSize:       cfg.Fetch.BatchSize,
			MaxWorkers:      cfg.Fetch.MaxWorkers,
			RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
			StateDir:        filepath.Join(cfg.Storage.DataDir, cfg.Storage.Market, "daily"),
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting fetch-bars", "logFile", logFile.Name(), "dataDir", cfg.Storage.DataDir)
	stats, err := p.Fetch(ctx, fetcher, config.SplitList(*symbols))
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	slog.Info("fetch-bars finished",
		"symbols", stats.Symbols,
		"fetched", stats.Fetched,
		"upToDate", stats.UpToDate,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"bars", stats.Bars,
	)
}
