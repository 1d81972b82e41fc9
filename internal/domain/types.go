// Package domain defines the core value types shared by every stage of the
// pipeline: raw bars, per-instrument tables, label specifications, and the
// outcome of materializing one instrument.
package domain

import (
	"math"
	"sort"
	"time"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// DateLayout is the canonical calendar-date key format.
const DateLayout = "2006-01-02"

// Base column names carried by every table built from bars.
const (
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"
)

// BaseColumns lists the OHLCV columns in display order.
var BaseColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Bar is one daily OHLCV bar for a symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Row is one dated row of an instrument table. Missing numeric values are
// NaN; missing categorical values are absent from Labels.
type Row struct {
	Date   string
	Values map[string]float64
	Labels map[string]string
}

// NewRow returns a row with initialised maps.
func NewRow(date string) Row {
	return Row{
		Date:   date,
		Values: make(map[string]float64),
		Labels: make(map[string]string),
	}
}

// Value returns the named numeric value, or NaN if absent.
func (r Row) Value(name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{
		Date:   r.Date,
		Values: make(map[string]float64, len(r.Values)),
		Labels: make(map[string]string, len(r.Labels)),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	for k, v := range r.Labels {
		out.Labels[k] = v
	}
	return out
}

// Table is an ordered, date-keyed sequence of rows for one instrument.
type Table struct {
	Instrument string
	Rows       []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// LastDate returns the date of the final row, or "" for an empty table.
func (t *Table) LastDate() string {
	if t.Len() == 0 {
		return ""
	}
	return t.Rows[len(t.Rows)-1].Date
}

// Column extracts the named numeric column in row order.
func (t *Table) Column(name string) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Value(name)
	}
	return out
}

// Dates returns the date keys in row order.
func (t *Table) Dates() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Date
	}
	return out
}

// After returns a new table holding only the rows dated strictly after date.
// An empty date keeps every row.
func (t *Table) After(date string) *Table {
	out := &Table{Instrument: t.Instrument}
	for _, r := range t.Rows {
		if date == "" || r.Date > date {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Normalize sorts rows by date and drops duplicate dates, keeping the last
// occurrence of each.
func (t *Table) Normalize() {
	if t.Len() == 0 {
		return
	}
	idx := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[r.Date] = i
	}
	rows := make([]Row, 0, len(idx))
	for i, r := range t.Rows {
		if idx[r.Date] == i {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	t.Rows = rows
}

// TableFromBars converts bars into a table keyed by calendar date.
func TableFromBars(instrument string, bars []Bar) *Table {
	t := &Table{Instrument: instrument, Rows: make([]Row, 0, len(bars))}
	for _, b := range bars {
		r := NewRow(b.Timestamp.UTC().Format(DateLayout))
		r.Values[ColOpen] = b.Open
		r.Values[ColHigh] = b.High
		r.Values[ColLow] = b.Low
		r.Values[ColClose] = b.Close
		r.Values[ColVolume] = float64(b.Volume)
		t.Rows = append(t.Rows, r)
	}
	t.Normalize()
	return t
}

// FeatureSchema names the derived indicator columns produced by the
// indicator stage. It is handed explicitly to downstream stages.
type FeatureSchema struct {
	Columns []string
}

// Has reports whether the schema contains the named column.
func (s FeatureSchema) Has(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Stage identifies one materialized dataset.
type Stage string

const (
	StageIndicators Stage = "indicators"
	StageLabels     Stage = "labels"
)

// StoreKey addresses one per-instrument table of one stage. Storage layout
// is the adapter's concern.
type StoreKey struct {
	Stage      Stage
	Instrument string
}
