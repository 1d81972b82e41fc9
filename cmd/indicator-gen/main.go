package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/pipeline"
	"stockcast/internal/store"
	"stockcast/internal/util"
)

func main() {
	tickers := flag.String("tickers", "", "comma-separated tickers to process (default: all stored symbols)")
	force := flag.Bool("force", false, "recompute every instrument from scratch")
	workers := flag.Int("workers", 0, "parallel workers (default: labels.workers from config)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFile, err := util.OpenLogFile(os.TempDir(), "indicator-gen")
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logFile.Close()
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, io.MultiWriter(os.Stdout, logFile)))

	ledger, err := store.NewRunLedger(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run ledger: %v", err)
	}
	defer ledger.Close()

	p, err := pipeline.New(cfg, store.NewParquetStore(cfg.Storage.DataDir, domain.Market(cfg.Storage.Market)), ledger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting indicator-gen", "logFile", logFile.Name(), "columns", len(p.Schema().Columns), "force", *force)
	summary, err := p.Indicators(ctx, pipeline.Options{
		Tickers: config.SplitList(*tickers),
		Force:   *force,
		Workers: *workers,
	})
	if err != nil {
		log.Fatalf("indicator stage failed: %v", err)
	}
	summary.Print(os.Stdout)
}
