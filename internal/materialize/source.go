package materialize

import (
	"context"
	"fmt"

	"stockcast/internal/domain"
	"stockcast/internal/store"
)

// BarSource loads raw daily bars as an OHLCV table.
type BarSource struct {
	Bars   store.BarStore
	Market domain.Market
}

// Load reads every stored bar for instrument.
func (s BarSource) Load(ctx context.Context, instrument string) (*domain.Table, error) {
	bars, err := s.Bars.ReadAllBars(ctx, instrument, string(s.Market))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars for %s: %w", instrument, domain.ErrEmptyData)
	}
	return domain.TableFromBars(instrument, bars), nil
}

// Instruments lists symbols with stored bars.
func (s BarSource) Instruments(ctx context.Context) ([]string, error) {
	return s.Bars.ListSymbols(ctx, string(s.Market))
}

// TableSource loads a previously materialized stage table.
type TableSource struct {
	Tables store.TableStore
	Stage  domain.Stage
}

// Load reads the whole stage table for instrument.
func (s TableSource) Load(ctx context.Context, instrument string) (*domain.Table, error) {
	t, err := s.Tables.ReadTail(ctx, domain.StoreKey{Stage: s.Stage, Instrument: instrument}, 0)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("%s table for %s: %w", s.Stage, instrument, domain.ErrEmptyData)
	}
	return t, nil
}

// Instruments lists instruments with a table for the stage.
func (s TableSource) Instruments(ctx context.Context) ([]string, error) {
	return s.Tables.ListInstruments(ctx, s.Stage)
}
