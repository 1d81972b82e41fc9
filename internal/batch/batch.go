// Package batch fans a per-instrument task out over a fixed worker pool and
// aggregates the outcomes.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"stockcast/internal/domain"
)

// Task materializes one instrument. It must not touch any other
// instrument's files.
type Task func(ctx context.Context, instrument string) domain.Outcome

// progressEvery controls how often Run logs progress.
const progressEvery = 100

// Run executes task once per distinct instrument using at most workers
// goroutines. Results are returned in the order instruments first appear.
// A panicking task yields an ErrComputation outcome; once ctx is cancelled
// the remaining instruments are reported as failed without running.
func Run(ctx context.Context, instruments []string, workers int, task Task) []domain.Outcome {
	unique := Dedupe(instruments)
	results := make([]domain.Outcome, len(unique))
	if len(unique) == 0 {
		return results
	}

	jobs := make(chan int, len(unique))
	for i := range unique {
		jobs <- i
	}
	close(jobs)

	var (
		wg        sync.WaitGroup
		done      atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
		total     = len(unique)
		log       = slog.Default().With("component", "batch")
		workerCnt = min(max(workers, 1), total)
	)

	for w := 0; w < workerCnt; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				inst := unique[idx]
				if err := ctx.Err(); err != nil {
					results[idx] = domain.Failed(inst, fmt.Errorf("cancelled: %w", err))
				} else {
					results[idx] = runSafe(ctx, inst, task)
				}
				if !results[idx].Success {
					failed.Add(1)
				}
				if n := done.Add(1); n%progressEvery == 0 || int(n) == total {
					log.Info("progress",
						"done", fmt.Sprintf("%d/%d", n, total),
						"failed", failed.Load(),
						"elapsed", time.Since(runStart).Round(time.Second),
					)
				}
			}
		}()
	}
	wg.Wait()
	return results
}

func runSafe(ctx context.Context, instrument string, task Task) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "instrument", instrument, "panic", r, "stack", string(debug.Stack()))
			out = domain.Failed(instrument, fmt.Errorf("%w: panic: %v", domain.ErrComputation, r))
		}
	}()
	out = task(ctx, instrument)
	if out.Instrument == "" {
		out.Instrument = instrument
	}
	return out
}

// Dedupe returns instruments with duplicates and blanks removed, keeping
// first occurrences. Comparison is case-insensitive.
func Dedupe(instruments []string) []string {
	seen := make(map[string]struct{}, len(instruments))
	out := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		inst = strings.TrimSpace(inst)
		k := strings.ToUpper(inst)
		if inst == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, inst)
	}
	return out
}

// FilterTickers restricts all to the requested tickers. An empty request
// selects everything. Requested tickers absent from all are returned as
// missing.
func FilterTickers(all, requested []string) (selected, missing []string) {
	requested = Dedupe(requested)
	if len(requested) == 0 {
		return all, nil
	}
	index := make(map[string]string, len(all))
	for _, a := range all {
		index[strings.ToUpper(a)] = a
	}
	for _, r := range requested {
		if a, ok := index[strings.ToUpper(r)]; ok {
			selected = append(selected, a)
		} else {
			missing = append(missing, strings.ToUpper(r))
		}
	}
	return selected, missing
}
