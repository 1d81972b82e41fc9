// Package daemon runs the full pipeline on a cron schedule and publishes
// the outcome of the last run through the gRPC health service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"stockcast/internal/gather"
	"stockcast/internal/pipeline"
)

// ServiceName is the health-check service reporting pipeline status.
const ServiceName = "stockcast.pipeline"

// ErrBusy is returned when a run is requested while another is in flight.
var ErrBusy = errors.New("pipeline run already in progress")

// Daemon schedules pipeline runs.
type Daemon struct {
	cron    *cron.Cron
	pipe    *pipeline.Pipeline
	fetcher gather.Fetcher
	health  *health.Server
	running atomic.Bool
	baseCtx context.Context
	log     *slog.Logger
}

// New creates a daemon whose schedule is evaluated in loc. fetcher may be
// nil to skip the download step.
func New(p *pipeline.Pipeline, fetcher gather.Fetcher, loc *time.Location) *Daemon {
	if loc == nil {
		loc = time.Local
	}
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Daemon{
		cron:    cron.New(cron.WithLocation(loc)),
		pipe:    p,
		fetcher: fetcher,
		health:  hs,
		baseCtx: context.Background(),
		log:     slog.Default().With("component", "daemon"),
	}
}

// Health returns the health server to register on a gRPC server.
func (d *Daemon) Health() *health.Server { return d.health }

// Schedule registers a full pipeline run at spec (standard 5-field cron).
func (d *Daemon) Schedule(spec string) error {
	if _, err := d.cron.AddFunc(spec, d.scheduledRun); err != nil {
		return fmt.Errorf("register pipeline run %q: %w", spec, err)
	}
	return nil
}

// Start starts the scheduler. Scheduled runs use ctx.
func (d *Daemon) Start(ctx context.Context) {
	d.baseCtx = ctx
	d.cron.Start()
	for _, e := range d.cron.Entries() {
		d.log.Info("scheduler started", "next", e.Next)
	}
}

// Stop stops the scheduler, waits for a running job and marks the service
// as shutting down.
func (d *Daemon) Stop() {
	<-d.cron.Stop().Done()
	d.health.Shutdown()
	d.log.Info("scheduler stopped")
}

func (d *Daemon) scheduledRun() {
	if err := d.RunOnce(d.baseCtx); err != nil && !errors.Is(err, ErrBusy) {
		d.log.Error("scheduled run failed", "err", err)
	}
}

// RunOnce executes fetch, indicators and labels and updates the health
// status. Overlapping calls return ErrBusy.
func (d *Daemon) RunOnce(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("skipping run, previous run still active")
		return ErrBusy
	}
	defer d.running.Store(false)

	start := time.Now()
	d.log.Info("pipeline run starting")
	err := d.pipe.RunAll(ctx, d.fetcher)
	if err != nil {
		d.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	d.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	d.log.Info("pipeline run complete", "elapsed", time.Since(start).Round(time.Second))
	return nil
}
