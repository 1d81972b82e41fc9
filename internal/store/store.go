// Package store defines storage interfaces for raw bars, per-instrument
// stage tables, and the run ledger.
package store

import (
	"context"
	"time"

	"stockcast/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadAllBars returns every stored bar for the symbol in timestamp order.
	ReadAllBars(ctx context.Context, symbol string, market string) ([]domain.Bar, error)

	// LatestBar returns the timestamp of the newest stored bar. ok is false
	// when the symbol has no bars.
	LatestBar(ctx context.Context, symbol string, market string) (ts time.Time, ok bool, err error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// TableStore persists per-instrument stage tables. A table is append-only
// except through WriteFull, which truncates and rewrites it.
type TableStore interface {
	// LastKey returns the date of the last committed row, or "" when the
	// table does not exist or is empty.
	LastKey(ctx context.Context, key domain.StoreKey) (string, error)

	// ReadTail returns the last n rows; n <= 0 returns every row. A missing
	// table yields domain.ErrDataNotFound.
	ReadTail(ctx context.Context, key domain.StoreKey, n int) (*domain.Table, error)

	// Append adds rows strictly after the last committed date.
	Append(ctx context.Context, key domain.StoreKey, rows *domain.Table) error

	// WriteFull replaces the table with rows.
	WriteFull(ctx context.Context, key domain.StoreKey, rows *domain.Table) error

	// ListInstruments returns every instrument with a table for stage.
	ListInstruments(ctx context.Context, stage domain.Stage) ([]string, error)
}
