// Package materialize turns an upstream per-instrument table into a
// committed stage table, recomputing only what is new since the last run.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stockcast/internal/domain"
	"stockcast/internal/store"
)

// Transformer computes one stage's table from its upstream rows.
type Transformer interface {
	// Name identifies the stage in logs.
	Name() string
	// Validate checks the full upstream series before selection.
	Validate(src *domain.Table) error
	// Transform returns one output row per input row plus non-fatal warnings.
	Transform(src *domain.Table) (*domain.Table, []error, error)
}

// Horizoned is implemented by transformers whose last rows are not final
// until more upstream rows arrive. Horizon returns how many trailing rows
// must stay uncommitted.
type Horizoned interface {
	Horizon() int
}

// Source loads the upstream table for an instrument.
type Source interface {
	// Load returns the instrument's rows. A missing instrument yields
	// domain.ErrDataNotFound and one without rows domain.ErrEmptyData.
	Load(ctx context.Context, instrument string) (*domain.Table, error)
	// Instruments lists every instrument the source can load.
	Instruments(ctx context.Context) ([]string, error)
}

// Driver materializes one stage for one instrument at a time. A Driver is
// safe for concurrent use across distinct instruments.
type Driver struct {
	Source      Source
	Store       store.TableStore
	Stage       domain.Stage
	Transformer Transformer
	// ContextRows is passed to the Selector; zero re-feeds full history.
	ContextRows int

	log *slog.Logger
}

// NewDriver returns a Driver for stage.
func NewDriver(src Source, st store.TableStore, stage domain.Stage, t Transformer, contextRows int) *Driver {
	return &Driver{
		Source:      src,
		Store:       st,
		Stage:       stage,
		Transformer: t,
		ContextRows: contextRows,
		log:         slog.Default().With("stage", string(stage)),
	}
}

// Materialize brings the instrument's table up to date with its upstream.
// Every error is reported in the returned Outcome.
func (d *Driver) Materialize(ctx context.Context, instrument string, force bool) domain.Outcome {
	start := time.Now()
	out, err := d.materialize(ctx, instrument, force)
	if err != nil {
		out = domain.Failed(instrument, err)
	}
	d.logger().Debug("materialized",
		"instrument", instrument,
		"success", out.Success,
		"newRows", out.NewRows,
		"warnings", len(out.Warnings),
		"message", out.Message,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out
}

func (d *Driver) materialize(ctx context.Context, instrument string, force bool) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}
	src, err := d.Source.Load(ctx, instrument)
	if err != nil {
		return domain.Outcome{}, err
	}
	src.Normalize()
	if src.Len() == 0 {
		return domain.Outcome{}, fmt.Errorf("%s upstream for %s: %w", d.Stage, instrument, domain.ErrEmptyData)
	}
	if err := d.Transformer.Validate(src); err != nil {
		return domain.Outcome{}, err
	}

	key := domain.StoreKey{Stage: d.Stage, Instrument: instrument}
	sel := &Selector{Store: d.Store, ContextRows: d.ContextRows}
	selection, err := sel.Select(ctx, key, src, force)
	if err != nil {
		return domain.Outcome{}, err
	}
	if selection.Empty() {
		return domain.Succeeded(instrument, 0, "%s: %s", instrument, selection.Reason), nil
	}

	computed, warnings, err := d.Transformer.Transform(selection.Rows)
	if err != nil {
		if domain.Cause(err) == domain.CauseOther {
			err = fmt.Errorf("%w: %v", domain.ErrComputation, err)
		}
		return domain.Outcome{}, err
	}
	if computed.Len() != selection.Rows.Len() {
		return domain.Outcome{}, fmt.Errorf("%w: %s returned %d rows for %d inputs",
			domain.ErrComputation, d.Transformer.Name(), computed.Len(), selection.Rows.Len())
	}

	final := committable(computed, d.Transformer)
	pending := computed.Len() - final.Len()

	var out domain.Outcome
	switch selection.Mode {
	case ModeFull:
		if final.Len() == 0 {
			out = domain.Succeeded(instrument, 0, "%s: no committable rows yet (%d awaiting forward data)",
				instrument, pending)
			break
		}
		if err := d.Store.WriteFull(ctx, key, final); err != nil {
			return domain.Outcome{}, err
		}
		out = domain.Succeeded(instrument, final.Len(), "%s: wrote %d rows (%d pending)",
			instrument, final.Len(), pending)
	default:
		fresh := final.After(selection.LastCommitted)
		if fresh.Len() == 0 {
			out = domain.Succeeded(instrument, 0, "%s: already up to date (%d rows awaiting forward data)",
				instrument, pending)
			break
		}
		if err := d.Store.Append(ctx, key, fresh); err != nil {
			return domain.Outcome{}, err
		}
		out = domain.Succeeded(instrument, fresh.Len(), "%s: appended %d rows (%d context, %d pending)",
			instrument, fresh.Len(), selection.Context, pending)
	}
	out.Warnings = warnings
	return out, nil
}

// committable drops the trailing rows t still needs future data for.
func committable(computed *domain.Table, t Transformer) *domain.Table {
	h, ok := t.(Horizoned)
	if !ok || h.Horizon() <= 0 {
		return computed
	}
	n := max(computed.Len()-h.Horizon(), 0)
	return &domain.Table{Instrument: computed.Instrument, Rows: computed.Rows[:n]}
}

func (d *Driver) logger() *slog.Logger {
	if d.log == nil {
		return slog.Default().With("stage", string(d.Stage))
	}
	return d.log
}
