package indicator

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/domain"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDeltaSlice(t, []float64{2, 3, 4}, got[2:], 1e-12)
}

func TestEMASeededWithSMA(t *testing.T) {
	got := EMA([]float64{2, 4, 6, 8}, 3)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 4.0, got[2], 1e-12)
	assert.InDelta(t, 0.5*8+0.5*4, got[3], 1e-12)

	// Leading NaN shifts the seed.
	got = EMA([]float64{math.NaN(), 2, 4, 6}, 3)
	assert.InDelta(t, 4.0, got[3], 1e-12)
}

func TestRSI(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6}
	got := RSI(up, 3)
	assert.True(t, math.IsNaN(got[2]))
	assert.Equal(t, 100.0, got[3])

	// Gains 2,0 and loss 1 over period 3: avg gain 2/3, avg loss 1/3.
	got = RSI([]float64{10, 12, 11, 11}, 3)
	assert.InDelta(t, 100-100/(1+2.0), got[3], 1e-9)
}

func TestBollingerFlatSeries(t *testing.T) {
	up, lo, pb := Bollinger([]float64{5, 5, 5, 5}, 3, 2)
	assert.Equal(t, 5.0, up[3])
	assert.Equal(t, 5.0, lo[3])
	assert.True(t, math.IsNaN(pb[3]), "%B is undefined on zero width")
}

func TestBollingerSampleStdDev(t *testing.T) {
	// [1 2 3]: mean 2, sample standard deviation 1.
	up, lo, pb := Bollinger([]float64{1, 2, 3}, 3, 1)
	assert.InDelta(t, 3.0, up[2], 1e-12)
	assert.InDelta(t, 1.0, lo[2], 1e-12)
	assert.InDelta(t, 1.0, pb[2], 1e-12)
	assert.True(t, math.IsNaN(up[1]))
}

func TestOBVAndReturns(t *testing.T) {
	closes := []float64{10, 11, 11, 9}
	vol := []float64{100, 200, 300, 400}
	assert.Equal(t, []float64{0, 200, 200, -200}, OBV(closes, vol))

	r := Returns([]float64{0, 5, 10})
	assert.True(t, math.IsNaN(r[0]))
	assert.True(t, math.IsNaN(r[1]), "division by zero price is NaN")
	assert.InDelta(t, 100.0, r[2], 1e-12)
}

func bars(n int) *domain.Table {
	t := &domain.Table{Instrument: "BBRI"}
	for i := 0; i < n; i++ {
		r := domain.NewRow(fmt.Sprintf("2023-%02d-%02d", 1+i/28, 1+i%28))
		c := 50 + 5*math.Sin(float64(i)/3) + float64(i)*0.1
		r.Values[domain.ColOpen] = c - 0.3
		r.Values[domain.ColHigh] = c + 1
		r.Values[domain.ColLow] = c - 1
		r.Values[domain.ColClose] = c
		r.Values[domain.ColVolume] = float64(1000 + 10*i)
		t.Rows = append(t.Rows, r)
	}
	return t
}

func TestGeneratorSchemaAndWarmup(t *testing.T) {
	g, err := NewGenerator(DefaultConfig())
	require.NoError(t, err)

	schema := g.Schema()
	for _, c := range []string{"SMA 50", "EMA 12", "RSI 14", "MACD Signal", "BB PctB 20", "ATR 14", "OBV", "Return 1d"} {
		assert.True(t, schema.Has(c), c)
	}

	out, err := g.Generate(bars(80))
	require.NoError(t, err)
	require.Equal(t, 80, out.Len())
	for _, r := range out.Rows {
		require.Len(t, r.Values, len(domain.BaseColumns)+len(schema.Columns))
	}
	assert.True(t, math.IsNaN(out.Rows[48].Value("SMA 50")))
	assert.False(t, math.IsNaN(out.Rows[49].Value("SMA 50")))
	// Signal needs slow EMA warm-up plus signal warm-up.
	assert.True(t, math.IsNaN(out.Rows[MACDSlow+MACDSignal-3].Value(ColMACDSignal)))
	assert.False(t, math.IsNaN(out.Rows[MACDSlow+MACDSignal-2].Value(ColMACDSignal)))
}

func TestGeneratorIsCausal(t *testing.T) {
	g, err := NewGenerator(DefaultConfig())
	require.NoError(t, err)

	full, err := g.Generate(bars(90))
	require.NoError(t, err)
	head := bars(90)
	head.Rows = head.Rows[:60]
	part, err := g.Generate(head)
	require.NoError(t, err)

	for i, r := range part.Rows {
		for col, v := range r.Values {
			w := full.Rows[i].Values[col]
			if math.IsNaN(v) {
				assert.True(t, math.IsNaN(w), "%s row %d", col, i)
				continue
			}
			assert.Equal(t, w, v, "%s row %d", col, i)
		}
	}
}

func TestGeneratorValidate(t *testing.T) {
	_, err := NewGenerator(Config{SMAPeriods: []int{0}, RSIPeriod: 14, BBPeriod: 20, BBWidth: 2, ATRPeriod: 14})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	g, err := NewGenerator(DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, g.Validate(&domain.Table{}), domain.ErrEmptyData)
	noVol := bars(3)
	delete(noVol.Rows[0].Values, domain.ColVolume)
	assert.ErrorIs(t, g.Validate(noVol), domain.ErrComputation)
}
