package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/pipeline"
	"stockcast/internal/store"
	"stockcast/internal/util"
)

func main() {
	labelTypes := flag.String("label-types", "", "comma-separated label types: linear_trend, median_gain, max_loss (default: config)")
	windows := flag.String("windows", "", "comma-separated forward windows in trading days (default: config)")
	tickers := flag.String("tickers", "", "comma-separated tickers to process (default: every indicator table)")
	force := flag.Bool("force", false, "relabel every instrument from scratch")
	workers := flag.Int("workers", 0, "parallel workers (default: labels.workers from config)")
	history := flag.Int("history", 0, "print the last N recorded runs with their failures and exit")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *labelTypes != "" {
		cfg.Labels.Types = config.SplitList(*labelTypes)
	}
	if *windows != "" {
		w, err := config.ParseWindows(*windows)
		if err != nil {
			log.Fatalf("invalid -windows: %v", err)
		}
		cfg.Labels.Windows = w
	}
	specs, err := cfg.Labels.Specs()
	if err != nil {
		log.Fatalf("invalid label configuration: %v", err)
	}

	logFile, err := util.OpenLogFile(os.TempDir(), "label-gen")
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

	if *history > 0 {
		if err := p.History(ctx, *history, os.Stdout); err != nil {
			log.Fatalf("reading run history: %v", err)
		}
		return
	}

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Column()
	}
	slog.Info("starting label-gen", "logFile", logFile.Name(), "labels", strings.Join(names, ", "), "force", *force)

	summary, err := p.Labels(ctx, specs, pipeline.Options{
		Tickers: config.SplitList(*tickers),
		Force:   *force,
		Workers: *workers,
	})
	if err != nil {
		log.Fatalf("label stage failed: %v", err)
	}
	summary.Print(os.Stdout)
}
