// Package indicator derives technical-indicator columns from daily OHLCV
// tables. Every indicator is causal: row i depends only on rows 0..i.
package indicator

import (
	"fmt"

	"stockcast/internal/domain"
)

// MACD periods.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// Column names that do not depend on a period.
const (
	ColMACD       = "MACD"
	ColMACDSignal = "MACD Signal"
	ColMACDHist   = "MACD Histogram"
	ColOBV        = "OBV"
	ColReturn1d   = "Return 1d"
)

// Config selects indicator periods.
type Config struct {
	SMAPeriods []int   `yaml:"sma_periods"`
	EMAPeriods []int   `yaml:"ema_periods"`
	RSIPeriod  int     `yaml:"rsi_period"`
	BBPeriod   int     `yaml:"bb_period"`
	BBWidth    float64 `yaml:"bb_width"`
	ATRPeriod  int     `yaml:"atr_period"`
}

// DefaultConfig returns the periods used when none are configured.
func DefaultConfig() Config {
	return Config{
		SMAPeriods: []int{5, 10, 20, 50},
		EMAPeriods: []int{12, 26},
		RSIPeriod:  14,
		BBPeriod:   20,
		BBWidth:    2,
		ATRPeriod:  14,
	}
}

// Validate rejects non-positive periods.
func (c Config) Validate() error {
	for _, p := range append(append(append([]int{}, c.SMAPeriods...), c.EMAPeriods...), c.RSIPeriod, c.ATRPeriod) {
		if p <= 0 {
			return fmt.Errorf("%w: indicator period %d must be positive", domain.ErrConfiguration, p)
		}
	}
	if c.BBPeriod < 2 || c.BBWidth <= 0 {
		return fmt.Errorf("%w: bollinger period %d width %g", domain.ErrConfiguration, c.BBPeriod, c.BBWidth)
	}
	return nil
}

// Generator computes the configured indicators and owns the resulting
// feature schema.
type Generator struct {
	cfg    Config
	schema domain.FeatureSchema
}

// NewGenerator validates cfg and builds the schema.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{cfg: cfg}
	var cols []string
	for _, p := range cfg.SMAPeriods {
		cols = append(cols, fmt.Sprintf("SMA %d", p))
	}
	for _, p := range cfg.EMAPeriods {
		cols = append(cols, fmt.Sprintf("EMA %d", p))
	}
	cols = append(cols,
		fmt.Sprintf("RSI %d", cfg.RSIPeriod),
		ColMACD, ColMACDSignal, ColMACDHist,
		fmt.Sprintf("BB Upper %d", cfg.BBPeriod),
		fmt.Sprintf("BB Lower %d", cfg.BBPeriod),
		fmt.Sprintf("BB PctB %d", cfg.BBPeriod),
		fmt.Sprintf("ATR %d", cfg.ATRPeriod),
		ColOBV, ColReturn1d,
	)
	g.schema = domain.FeatureSchema{Columns: cols}
	return g, nil
}

// Schema returns the derived column names in output order.
func (g *Generator) Schema() domain.FeatureSchema { return g.schema }

// Name identifies the stage in logs.
func (g *Generator) Name() string { return string(domain.StageIndicators) }

// Validate checks that src carries the OHLCV columns.
func (g *Generator) Validate(src *domain.Table) error {
	if src.Len() == 0 {
		return fmt.Errorf("%w: no bars", domain.ErrEmptyData)
	}
	for _, c := range domain.BaseColumns {
		if _, ok := src.Rows[0].Values[c]; !ok {
			return fmt.Errorf("%w: column %q missing", domain.ErrComputation, c)
		}
	}
	return nil
}

// Transform implements the materialization stage contract.
func (g *Generator) Transform(src *domain.Table) (*domain.Table, []error, error) {
	out, err := g.Generate(src)
	return out, nil, err
}

// Generate returns a copy of src's OHLCV rows with every schema column set.
func (g *Generator) Generate(src *domain.Table) (*domain.Table, error) {
	if err := g.Validate(src); err != nil {
		return nil, err
	}
	closes := src.Column(domain.ColClose)
	high, low := src.Column(domain.ColHigh), src.Column(domain.ColLow)
	volume := src.Column(domain.ColVolume)

	derived := make(map[string][]float64, len(g.schema.Columns))
	for _, p := range g.cfg.SMAPeriods {
		derived[fmt.Sprintf("SMA %d", p)] = SMA(closes, p)
	}
	for _, p := range g.cfg.EMAPeriods {
		derived[fmt.Sprintf("EMA %d", p)] = EMA(closes, p)
	}
	derived[fmt.Sprintf("RSI %d", g.cfg.RSIPeriod)] = RSI(closes, g.cfg.RSIPeriod)
	derived[ColMACD], derived[ColMACDSignal], derived[ColMACDHist] = MACD(closes, MACDFast, MACDSlow, MACDSignal)
	up, lo, pb := Bollinger(closes, g.cfg.BBPeriod, g.cfg.BBWidth)
	derived[fmt.Sprintf("BB Upper %d", g.cfg.BBPeriod)] = up
	derived[fmt.Sprintf("BB Lower %d", g.cfg.BBPeriod)] = lo
	derived[fmt.Sprintf("BB PctB %d", g.cfg.BBPeriod)] = pb
	derived[fmt.Sprintf("ATR %d", g.cfg.ATRPeriod)] = ATR(high, low, closes, g.cfg.ATRPeriod)
	derived[ColOBV] = OBV(closes, volume)
	derived[ColReturn1d] = Returns(closes)

	out := &domain.Table{Instrument: src.Instrument, Rows: make([]domain.Row, len(src.Rows))}
	for i, r := range src.Rows {
		row := domain.NewRow(r.Date)
		for _, c := range domain.BaseColumns {
			row.Values[c] = r.Value(c)
		}
		for _, c := range g.schema.Columns {
			row.Values[c] = derived[c][i]
		}
		out.Rows[i] = row
	}
	return out, nil
}
