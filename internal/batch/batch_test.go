package batch

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/domain"
)

func TestRunOrderedAndDeduped(t *testing.T) {
	var calls sync.Map
	task := func(_ context.Context, inst string) domain.Outcome {
		n, _ := calls.LoadOrStore(inst, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		return domain.Succeeded(inst, len(inst), "%s ok", inst)
	}

	got := Run(context.Background(), []string{"BBCA", "TLKM", "bbca", "", "ASII", "TLKM"}, 4, task)
	require.Len(t, got, 3)
	assert.Equal(t, "BBCA", got[0].Instrument)
	assert.Equal(t, "TLKM", got[1].Instrument)
	assert.Equal(t, "ASII", got[2].Instrument)

	calls.Range(func(k, v any) bool {
		assert.EqualValues(t, 1, v.(*atomic.Int32).Load(), "instrument %v ran more than once", k)
		return true
	})
}

func TestRunIsolatesPanicsAndFailures(t *testing.T) {
	task := func(_ context.Context, inst string) domain.Outcome {
		switch inst {
		case "BOOM":
			panic("index out of range")
		case "FLAT":
			return domain.Failed(inst, fmt.Errorf("%w: variance=0", domain.ErrDegenerateSeries))
		}
		return domain.Succeeded(inst, 1, "ok")
	}

	got := Run(context.Background(), []string{"AAA", "BOOM", "FLAT", "ZZZ"}, 2, task)
	require.Len(t, got, 4)
	assert.True(t, got[0].Success)
	assert.False(t, got[1].Success)
	assert.Equal(t, domain.CauseComputation, got[1].Cause())
	assert.Contains(t, got[1].Message, "BOOM")
	assert.Equal(t, domain.CauseDegenerate, got[2].Cause())
	assert.True(t, got[3].Success)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	got := Run(ctx, []string{"A", "B", "C"}, 2, func(_ context.Context, inst string) domain.Outcome {
		ran.Add(1)
		return domain.Succeeded(inst, 0, "ok")
	})
	require.Len(t, got, 3)
	assert.Zero(t, ran.Load())
	for _, o := range got {
		assert.False(t, o.Success)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestRunEmpty(t *testing.T) {
	assert.Empty(t, Run(context.Background(), nil, 4, nil))
}

func TestSummarizeAndPrint(t *testing.T) {
	limited := domain.Succeeded("ANTM", 5, "ok")
	limited.Warnings = []error{fmt.Errorf("%w: Max Loss 60dd", domain.ErrInsufficientHistory)}

	outcomes := []domain.Outcome{
		domain.Succeeded("BBCA", 3, "ok"),
		limited,
		domain.Failed("FLAT", fmt.Errorf("%w: variance=0", domain.ErrDegenerateSeries)),
		domain.Failed("NEWCO", fmt.Errorf("%w: 3 rows", domain.ErrInsufficientHistory)),
		domain.Failed("GONE", domain.ErrDataNotFound),
		domain.Failed("ODD", fmt.Errorf("disk full")),
	}

	s := Summarize(outcomes)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 4, s.Failed())
	assert.Equal(t, 8, s.NewRows)
	assert.Len(t, s.Limited, 1)
	assert.Len(t, s.Failures[domain.CauseDegenerate], 1)
	assert.Len(t, s.Failures[domain.CauseOther], 1)

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "Succeeded:         2 (8 new rows)")
	assert.Contains(t, out, "Suspended/delisted (no price variation) (1):")
	assert.Contains(t, out, "Insufficient data (1):")
	assert.Contains(t, out, "Missing or empty upstream data (1):")
	assert.Contains(t, out, "Other errors (1):\n  - ODD - disk full")
	assert.Contains(t, out, "ANTM: insufficient history: Max Loss 60dd")
}

func TestFilterTickers(t *testing.T) {
	all := []string{"AAPL", "BBCA", "TLKM"}

	sel, missing := FilterTickers(all, nil)
	assert.Equal(t, all, sel)
	assert.Empty(t, missing)

	sel, missing = FilterTickers(all, []string{"tlkm", "XXXX", "AAPL", "TLKM"})
	assert.Equal(t, []string{"TLKM", "AAPL"}, sel)
	assert.Equal(t, []string{"XXXX"}, missing)
}
