package pipeline

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/config"
	"stockcast/internal/domain"
	"stockcast/internal/gather"
	"stockcast/internal/store"
)

func makeBars(symbol string, from, n int, price func(i int) float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 0, n)
	for i := from; i < from+n; i++ {
		c := price(i)
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: int64(1000 + i),
		})
	}
	return bars
}

func wave(i int) float64 { return 100 + 8*math.Sin(float64(i)/4) + 0.2*float64(i) }

func newTestPipeline(t *testing.T) (*Pipeline, *store.ParquetStore, *store.RunLedger) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DataDir = dir
	cfg.Labels.Windows = []int{5, 10}
	cfg.Labels.Workers = 2
	require.NoError(t, cfg.Validate())

	ps := store.NewParquetStore(dir, domain.MarketUS)
	ledger, err := store.NewRunLedger(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	p, err := New(cfg, ps, ledger)
	require.NoError(t, err)
	return p, ps, ledger
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	p, ps, ledger := newTestPipeline(t)

	var bars []domain.Bar
	bars = append(bars, makeBars("BBCA", 0, 80, wave)...)
	bars = append(bars, makeBars("FLAT", 0, 80, func(int) float64 { return 50 })...)
	bars = append(bars, makeBars("NEWCO", 0, 4, wave)...)
	require.NoError(t, ps.WriteBars(ctx, bars))

	ind, err := p.Indicators(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, ind.Succeeded)
	assert.Equal(t, 164, ind.NewRows)

	specs, err := p.cfg.Labels.Specs()
	require.NoError(t, err)
	lab, err := p.Labels(ctx, specs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, lab.Succeeded)
	assert.Len(t, lab.Failures[domain.CauseDegenerate], 1)
	assert.Len(t, lab.Failures[domain.CauseInsufficient], 1)

	tbl, err := ps.ReadTail(ctx, domain.StoreKey{Stage: domain.StageLabels, Instrument: "BBCA"}, 0)
	require.NoError(t, err)
	// The last 10 rows wait for their 10-day forward window.
	require.Equal(t, 70, tbl.Len())
	row := tbl.Rows[10]
	assert.Contains(t, row.Values, "RSI 14", "indicator columns flow into the label table")
	assert.Contains(t, []string{"High Gain", "Low Gain"}, row.Labels["Median Gain 10dd"])

	// Nothing new upstream: both stages are no-ops.
	again, err := p.Labels(ctx, specs, Options{})
	require.NoError(t, err)
	assert.Zero(t, again.NewRows)

	// Five more days arrive for BBCA only.
	require.NoError(t, ps.WriteBars(ctx, makeBars("BBCA", 80, 5, wave)))
	ind, err = p.Indicators(ctx, Options{Tickers: []string{"bbca"}})
	require.NoError(t, err)
	assert.Equal(t, 1, ind.Total)
	assert.Equal(t, 5, ind.NewRows)
	lab, err = p.Labels(ctx, specs, Options{Tickers: []string{"BBCA", "MISSING"}})
	require.NoError(t, err)
	assert.Equal(t, 5, lab.NewRows)

	runs, err := ledger.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
	assert.Equal(t, string(domain.StageLabels), runs[0].Stage)
	assert.Equal(t, 5, runs[0].NewRows)
}

type stubFetcher struct {
	got []string
}

func (s *stubFetcher) Name() string { return "stub" }

func (s *stubFetcher) Run(_ context.Context, symbols []string) (gather.Stats, error) {
	s.got = symbols
	return gather.Stats{Symbols: len(symbols)}, nil
}

func TestPipelineFetchSymbolSelection(t *testing.T) {
	ctx := context.Background()
	p, ps, _ := newTestPipeline(t)
	f := &stubFetcher{}

	_, err := p.Fetch(ctx, f, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration, "no configured or stored symbols")

	require.NoError(t, ps.WriteBars(ctx, makeBars("TLKM", 0, 2, wave)))
	_, err = p.Fetch(ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"TLKM"}, f.got)

	_, err = p.Fetch(ctx, f, []string{"AAPL", "AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, f.got)
}

func TestPipelineFetchSymbolsFile(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPipeline(t)
	f := &stubFetcher{}

	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte("symbol,name\nbbca,Bank\ntlkm,Telkom\n"), 0o644))
	p.cfg.Fetch.SymbolsFile = path

	_, err := p.Fetch(ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBCA", "TLKM"}, f.got)

	p.cfg.Fetch.SymbolsFile = filepath.Join(t.TempDir(), "missing.csv")
	_, err = p.Fetch(ctx, f, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPipelineHistory(t *testing.T) {
	ctx := context.Background()
	p, ps, _ := newTestPipeline(t)

	var buf bytes.Buffer
	require.NoError(t, p.History(ctx, 5, &buf))
	assert.Equal(t, "No recorded runs\n", buf.String())

	var bars []domain.Bar
	bars = append(bars, makeBars("FLAT", 0, 80, func(int) float64 { return 50 })...)
	bars = append(bars, makeBars("NEWCO", 0, 4, wave)...)
	require.NoError(t, ps.WriteBars(ctx, bars))
	_, err := p.Indicators(ctx, Options{})
	require.NoError(t, err)
	specs, err := p.cfg.Labels.Specs()
	require.NoError(t, err)
	_, err = p.Labels(ctx, specs, Options{})
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, p.History(ctx, 5, &buf))
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.Contains(t, lines[0], "labels")
	assert.Contains(t, lines[0], "0/2 succeeded")
	assert.Contains(t, lines[1], "FLAT [degenerate]")
	assert.Contains(t, lines[2], "NEWCO [insufficient_data]")
	assert.Contains(t, lines[3], "indicators")
	assert.Contains(t, lines[3], "2/2 succeeded")

	buf.Reset()
	require.NoError(t, p.History(ctx, 1, &buf))
	assert.NotContains(t, buf.String(), "indicators", "limit keeps only the newest run")

	noLedger, err := New(p.cfg, ps, nil)
	require.NoError(t, err)
	assert.Error(t, noLedger.History(ctx, 5, &buf))
}
