package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/daemon"
	"stockcast/internal/gather/us"
	"stockcast/internal/pipeline"
	"stockcast/internal/store"
	"stockcast/internal/util"
)

func main() {
	runNow := flag.Bool("run-now", false, "run the pipeline once at startup")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFile, err := util.OpenLogFile(os.TempDir(), "stockcast-daemon")
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

	pstore := store.NewParquetStore(cfg.Storage.DataDir, domain.Market(cfg.Storage.Market))
	p, err := pipeline.New(cfg, pstore, ledger)
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

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		slog.Warn("ET timezone unavailable, scheduling in local time", "err", err)
		loc = time.Local
	}
	d := daemon.New(p, fetcher, loc)
	if err := d.Schedule(cfg.Schedule.Cron); err != nil {
		log.Fatalf("%v", err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Schedule.GRPCPort))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, d.Health())
	go func() {
		if err := gs.Serve(lis); err != nil {
			slog.Error("grpc server stopped", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting stockcast-daemon",
		"logFile", logFile.Name(),
		"cron", cfg.Schedule.Cron,
		"grpcAddr", lis.Addr().String(),
	)
	d.Start(ctx)
	if *runNow {
		go func() {
			if err := d.RunOnce(ctx); err != nil {
				slog.Error("startup run failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	d.Stop()
	gs.GracefulStop()
}
