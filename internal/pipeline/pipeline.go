// Package pipeline wires the stores, stages and batch coordinator into the
// runs the commands and the daemon execute.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"stockcast/internal/batch"
	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/gather"
	"stockcast/internal/indicator"
	"stockcast/internal/labels"
	"stockcast/internal/materialize"
	"stockcast/internal/store"
)

// Pipeline runs the fetch, indicator and label stages against one data
// directory.
type Pipeline struct {
	cfg    *config.Config
	store  *store.ParquetStore
	ledger *store.RunLedger
	gen    *indicator.Generator
	log    *slog.Logger
}

// Options restrict or alter one stage run.
type Options struct {
	Tickers []string
	Force   bool
	Workers int
}

// New builds a pipeline. ledger may be nil to skip run recording.
func New(cfg *config.Config, ps *store.ParquetStore, ledger *store.RunLedger) (*Pipeline, error) {
	gen, err := indicator.NewGenerator(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:    cfg,
		store:  ps,
		ledger: ledger,
		gen:    gen,
		log:    slog.Default().With("component", "pipeline"),
	}, nil
}

// Schema returns the indicator columns handed to the label stage.
func (p *Pipeline) Schema() domain.FeatureSchema { return p.gen.Schema() }

// Fetch brings raw bars up to date. With no symbols it refreshes the
// configured list, or every symbol already stored.
func (p *Pipeline) Fetch(ctx context.Context, f gather.Fetcher, symbols []string) (gather.Stats, error) {
	if len(symbols) == 0 {
		symbols = p.cfg.Fetch.Symbols
	}
	if len(symbols) == 0 && p.cfg.Fetch.SymbolsFile != "" {
		loaded, err := gather.LoadSymbolFile(p.cfg.Fetch.SymbolsFile)
		if err != nil {
			return gather.Stats{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		symbols = loaded
	}
	if len(symbols) == 0 {
		stored, err := p.store.ListSymbols(ctx, p.cfg.Storage.Market)
		if err != nil {
			return gather.Stats{}, fmt.Errorf("listing stored symbols: %w", err)
		}
		symbols = stored
	}
	if len(symbols) == 0 {
		return gather.Stats{}, fmt.Errorf("%w: no symbols to fetch", domain.ErrConfiguration)
	}
	return f.Run(ctx, batch.Dedupe(symbols))
}

// Indicators materializes the indicator stage from raw bars.
func (p *Pipeline) Indicators(ctx context.Context, opts Options) (batch.Summary, error) {
	src := materialize.BarSource{Bars: p.store, Market: domain.Market(p.cfg.Storage.Market)}
	// EMA, RSI and ATR are recursive, so exact continuity needs full history.
	d := materialize.NewDriver(src, p.store, domain.StageIndicators, p.gen, 0)
	return p.run(ctx, d, opts)
}

// Labels materializes the label stage for specs from the indicator stage.
func (p *Pipeline) Labels(ctx context.Context, specs []domain.LabelSpec, opts Options) (batch.Summary, error) {
	t, err := labels.NewTransformer(specs, p.cfg.Labels.Target, p.gen.Schema())
	if err != nil {
		return batch.Summary{}, err
	}
	src := materialize.TableSource{Tables: p.store, Stage: domain.StageIndicators}
	ctxRows := materialize.LabelContextRows(p.cfg.Labels.ContextRows, specs)
	d := materialize.NewDriver(src, p.store, domain.StageLabels, t, ctxRows)
	return p.run(ctx, d, opts)
}

// RunAll fetches bars, then builds indicators and labels for every
// instrument with the configured specs.
func (p *Pipeline) RunAll(ctx context.Context, f gather.Fetcher) error {
	if f != nil {
		if _, err := p.Fetch(ctx, f, nil); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	}
	if _, err := p.Indicators(ctx, Options{}); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	specs, err := p.cfg.Labels.Specs()
	if err != nil {
		return err
	}
	if _, err := p.Labels(ctx, specs, Options{}); err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, d *materialize.Driver, opts Options) (batch.Summary, error) {
	all, err := d.Source.Instruments(ctx)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("listing %s instruments: %w", d.Stage, err)
	}
	instruments, missing := batch.FilterTickers(all, opts.Tickers)
	if len(missing) > 0 {
		p.log.Warn("requested tickers not found", "stage", d.Stage, "tickers", missing)
	}
	if len(instruments) == 0 {
		p.log.Warn("no instruments to process", "stage", d.Stage)
		return batch.Summarize(nil), nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = p.cfg.Labels.Workers
	}

	runID, err := p.beginRun(ctx, d.Stage)
	if err != nil {
		return batch.Summary{}, err
	}

	start := time.Now()
	p.log.Info("stage starting",
		"stage", d.Stage,
		"instruments", len(instruments),
		"workers", workers,
		"force", opts.Force,
		"run", runID,
	)
	outcomes := batch.Run(ctx, instruments, workers, func(ctx context.Context, inst string) domain.Outcome {
		return d.Materialize(ctx, inst, opts.Force)
	})
	summary := batch.Summarize(outcomes)
	p.log.Info("stage complete",
		"stage", d.Stage,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed(),
		"newRows", summary.NewRows,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if err := p.finishRun(ctx, runID, outcomes, summary); err != nil {
		p.log.Error("recording run failed", "run", runID, "err", err)
	}
	return summary, ctx.Err()
}

func (p *Pipeline) beginRun(ctx context.Context, stage domain.Stage) (string, error) {
	if p.ledger == nil {
		return "", nil
	}
	id, err := p.ledger.BeginRun(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, outcomes []domain.Outcome, s batch.Summary) error {
	if p.ledger == nil {
		return nil
	}
	// Record even when ctx was cancelled mid-run.
	ctx = context.WithoutCancel(ctx)
	if err := p.ledger.RecordOutcomes(ctx, runID, outcomes); err != nil {
		return err
	}
	return p.ledger.FinishRun(ctx, runID, s.Total, s.Succeeded, s.NewRows)
}

// History writes the last limit runs from the ledger to w, newest first,
// with the failed instruments of each run listed underneath.
func (p *Pipeline) History(ctx context.Context, limit int, w io.Writer) error {
	if p.ledger == nil {
		return errors.New("no run ledger configured")
	}
	runs, err := p.ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs")
		return nil
	}
	for _, r := range runs {
		status := "unfinished"
		if !r.FinishedAt.IsZero() {
			status = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s  %-10s  %s  %d/%d succeeded, %d new rows (%s)\n",
			r.StartedAt.UTC().Format(time.DateTime), r.Stage, r.ID, r.Succeeded, r.Total, r.NewRows, status)

		failures, err := p.ledger.FailuresForRun(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, f := range failures {
			fmt.Fprintf(w, "    - %s [%s] %s\n", f.Instrument, f.Cause, f.Message)
		}
	}
	return nil
}
