package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockcast/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ TableStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and TableStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
	Market  domain.Market
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory. WriteBars files bars under market.
func NewParquetStore(dataDir string, market domain.Market) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Market: market}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// TableRecord is the Parquet schema for one row of a stage table. Numeric
// columns (prices, indicators, thresholds) live in Values; categorical
// label columns live in Labels and are absent when undefined.
type TableRecord struct {
	Date   string             `parquet:"date"`
	Values map[string]float64 `parquet:"values"`
	Labels map[string]string  `parquet:"labels"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet grouped by symbol and year under the
// store's market directory. Each symbol+year combination produces a
// separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Existing records are merged; a year file that exists but cannot be read
// fails the write rather than being overwritten.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	market := string(s.Market)
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadAllBars reads every year file stored for symbol. A symbol without a
// bar directory yields domain.ErrDataNotFound.
func (s *ParquetStore) ReadAllBars(_ context.Context, symbol string, market string) ([]domain.Bar, error) {
	years, exists, err := s.barYears(symbol, market)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bars for %s: %w", symbol, domain.ErrDataNotFound)
	}
	var bars []domain.Bar
	for _, y := range years {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, y))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%d: %w", symbol, y, err)
		}
		for _, r := range records {
			bars = append(bars, r.toBar())
		}
	}
	return bars, nil
}

// LatestBar returns the newest bar timestamp for symbol.
func (s *ParquetStore) LatestBar(_ context.Context, symbol string, market string) (time.Time, bool, error) {
	years, _, err := s.barYears(symbol, market)
	if err != nil || len(years) == 0 {
		return time.Time{}, false, err
	}
	records, err := readParquetFile[BarRecord](s.barPath(symbol, market, years[len(years)-1]))
	if err != nil {
		return time.Time{}, false, err
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(records[len(records)-1].Timestamp).UTC(), true, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barYears returns the years with a bar file for symbol, ascending, and
// whether the symbol directory exists at all.
func (s *ParquetStore) barYears(symbol, market string) ([]int, bool, error) {
	dir := filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if !ok || e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, true, nil
}

func (r BarRecord) toBar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// TableStore implementation
// ---------------------------------------------------------------------------

// LastKey returns the final committed date of the table, or "".
func (s *ParquetStore) LastKey(_ context.Context, key domain.StoreKey) (string, error) {
	records, err := readParquetFile[TableRecord](s.tablePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s/%s: %w", key.Stage, key.Instrument, err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].Date, nil
}

// ReadTail returns the last n rows of the table; n <= 0 returns all rows.
func (s *ParquetStore) ReadTail(_ context.Context, key domain.StoreKey, n int) (*domain.Table, error) {
	records, err := readParquetFile[TableRecord](s.tablePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s table for %s: %w", key.Stage, key.Instrument, domain.ErrDataNotFound)
		}
		return nil, fmt.Errorf("reading %s/%s: %w", key.Stage, key.Instrument, err)
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return recordsToTable(key.Instrument, records), nil
}

// Append commits rows after the table's last date. Rows must be strictly
// increasing, start after the committed tail, and carry the same numeric
// columns as the committed rows.
func (s *ParquetStore) Append(_ context.Context, key domain.StoreKey, rows *domain.Table) error {
	if rows.Len() == 0 {
		return nil
	}
	path := s.tablePath(key)
	existing, err := readParquetFile[TableRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s/%s: %w", key.Stage, key.Instrument, err)
	}

	incoming := tableToRecords(rows)
	if err := checkIncreasing(incoming); err != nil {
		return fmt.Errorf("appending to %s/%s: %w", key.Stage, key.Instrument, err)
	}
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		if incoming[0].Date <= last.Date {
			return fmt.Errorf("appending to %s/%s: row %s is not after committed %s",
				key.Stage, key.Instrument, incoming[0].Date, last.Date)
		}
		if !sameColumns(last.Values, incoming[0].Values) {
			return fmt.Errorf("appending to %s/%s: %w: column set differs from committed rows",
				key.Stage, key.Instrument, domain.ErrComputation)
		}
	}

	if err := writeParquetFile(path, append(existing, incoming...)); err != nil {
		return fmt.Errorf("writing %s/%s: %w", key.Stage, key.Instrument, err)
	}
	return nil
}

// WriteFull truncates the table and writes rows.
func (s *ParquetStore) WriteFull(_ context.Context, key domain.StoreKey, rows *domain.Table) error {
	records := tableToRecords(rows)
	if err := checkIncreasing(records); err != nil {
		return fmt.Errorf("writing %s/%s: %w", key.Stage, key.Instrument, err)
	}
	if err := writeParquetFile(s.tablePath(key), records); err != nil {
		return fmt.Errorf("writing %s/%s: %w", key.Stage, key.Instrument, err)
	}
	return nil
}

// ListInstruments lists instruments with a table for the given stage.
func (s *ParquetStore) ListInstruments(_ context.Context, stage domain.Stage) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, string(stage)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".parquet"); ok && !e.IsDir() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func recordsToTable(instrument string, records []TableRecord) *domain.Table {
	t := &domain.Table{Instrument: instrument, Rows: make([]domain.Row, len(records))}
	for i, r := range records {
		row := domain.NewRow(r.Date)
		for k, v := range r.Values {
			row.Values[k] = v
		}
		for k, v := range r.Labels {
			row.Labels[k] = v
		}
		t.Rows[i] = row
	}
	return t
}

func tableToRecords(t *domain.Table) []TableRecord {
	out := make([]TableRecord, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = TableRecord{Date: r.Date, Values: r.Values, Labels: r.Labels}
	}
	return out
}

func checkIncreasing(records []TableRecord) error {
	for i := 1; i < len(records); i++ {
		if records[i].Date <= records[i-1].Date {
			return fmt.Errorf("dates not strictly increasing at %s", records[i].Date)
		}
	}
	return nil
}

func sameColumns(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// tablePath returns the filesystem path for a stage table.
// Layout: <dataDir>/<stage>/<SYMBOL>.parquet
func (s *ParquetStore) tablePath(key domain.StoreKey) string {
	return filepath.Join(s.DataDir, string(key.Stage), strings.ToUpper(key.Instrument)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes to a sibling temp file and renames it into place
// so readers never observe a partial file.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
