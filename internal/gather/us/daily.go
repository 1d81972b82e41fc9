package us

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockcast/internal/domain"
	"stockcast/internal/gather"
	"stockcast/internal/store"
	"stockcast/internal/util"
)

var _ gather.Fetcher = (*DailyBarFetcher)(nil)

// BarClient is the subset of the Alpaca market-data client the fetcher uses.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// FetchOptions configures a DailyBarFetcher.
type FetchOptions struct {
	StartDate       string // first day fetched for symbols without bars
	BatchSize       int    // symbols per API call
	MaxWorkers      int    // concurrent API calls
	RateLimitPerMin int
	Feed            string // "sip" or "iex"
	StateDir        string // where fetch progress files live
}

// DailyBarFetcher fetches daily OHLCV bars for US equities from the Alpaca
// market-data API, starting after each symbol's last stored bar.
type DailyBarFetcher struct {
	client  BarClient
	store   store.BarStore
	opts    FetchOptions
	limiter *util.RateLimiter
	log     *slog.Logger

	// retryDelay is the first backoff between failed API calls.
	retryDelay time.Duration

	// endDate resolves the last trading day to request.
	endDate func(ctx context.Context) (time.Time, error)
}

// NewDailyBarFetcher creates a fetcher backed by the Alpaca market-data and
// trading-calendar APIs.
func NewDailyBarFetcher(apiKey, apiSecret, dataURL, baseURL string, s store.BarStore, opts FetchOptions) *DailyBarFetcher {
	copts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		copts.BaseURL = dataURL
	}
	f := newDailyBarFetcher(marketdata.NewClient(copts), s, opts)
	f.endDate = func(context.Context) (time.Time, error) {
		return LatestFinishedTradingDay(apiKey, apiSecret, baseURL)
	}
	return f
}

func newDailyBarFetcher(client BarClient, s store.BarStore, opts FetchOptions) *DailyBarFetcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.Feed == "" {
		opts.Feed = "sip"
	}
	return &DailyBarFetcher{
		client:     client,
		store:      s,
		opts:       opts,
		limiter:    util.NewRateLimiter(opts.RateLimitPerMin),
		retryDelay: 2 * time.Second,
		log:        slog.Default().With("fetcher", "us-daily"),
	}
}

// Name returns the fetcher identifier.
func (f *DailyBarFetcher) Name() string { return "us-daily" }

// fetchJob is one GetMultiBars call.
type fetchJob struct {
	Symbols []string
	Range   gather.DateRange
}

// Run fetches new daily bars for symbols and merges them into the store.
// Re-running on the same day only requests symbols that are still behind.
func (f *DailyBarFetcher) Run(ctx context.Context, symbols []string) (gather.Stats, error) {
	stats := gather.Stats{Symbols: len(symbols)}
	start, err := time.Parse(domain.DateLayout, f.opts.StartDate)
	if err != nil {
		return stats, fmt.Errorf("parsing start date %q: %w", f.opts.StartDate, err)
	}

	end, err := f.endDate(ctx)
	if err != nil {
		return stats, fmt.Errorf("determining end date: %w", err)
	}
	endStr := end.Format(domain.DateLayout)

	progress, err := newFetchProgress(f.opts.StateDir)
	if err != nil {
		return stats, err
	}
	defer progress.Close()
	if last := progress.LastCompleted(); last != "" && last != endStr {
		// New trading day: symbols that were empty yesterday get another try.
		if err := progress.Reset(); err != nil {
			return stats, err
		}
	}

	latest := make(map[string]time.Time)
	var pending []string
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if progress.IsEmpty(sym) {
			stats.Empty++
			continue
		}
		ts, ok, err := f.store.LatestBar(ctx, sym, string(domain.MarketUS))
		if err != nil {
			return stats, fmt.Errorf("latest bar for %s: %w", sym, err)
		}
		if ok {
			latest[sym] = ts
		}
		pending = append(pending, sym)
	}

	jobs := planJobs(pending, latest, start, end, f.opts.BatchSize)
	stats.UpToDate = len(pending) - countSymbols(jobs)
	f.log.Info("starting us-daily",
		"endDate", endStr,
		"symbols", len(symbols),
		"upToDate", stats.UpToDate,
		"batches", len(jobs),
	)

	var (
		wg       sync.WaitGroup
		fetched  atomic.Int64
		empty    atomic.Int64
		failed   atomic.Int64
		barCount atomic.Int64
		runStart = time.Now()
		jobCh    = make(chan int, len(jobs))
	)
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)

	for w := 0; w < min(f.opts.MaxWorkers, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				if ctx.Err() != nil {
					return
				}
				job := jobs[idx]
				bars, err := f.fetch(ctx, job)
				if err == nil && len(bars) > 0 {
					err = f.store.WriteBars(ctx, bars)
				}
				if err != nil {
					failed.Add(int64(len(job.Symbols)))
					f.log.Error("batch failed",
						"batch", fmt.Sprintf("%d/%d", idx+1, len(jobs)),
						"err", err,
					)
					continue
				}

				hits := make(map[string]struct{})
				for _, b := range bars {
					hits[b.Symbol] = struct{}{}
				}
				var misses []string
				for _, sym := range job.Symbols {
					if _, ok := hits[sym]; !ok {
						misses = append(misses, sym)
					}
				}
				// Only brand-new symbols are remembered as empty; a known
				// symbol with no bars yet simply has not traded since.
				var unknown []string
				for _, sym := range misses {
					if _, ok := latest[sym]; !ok {
						unknown = append(unknown, sym)
					}
				}
				if err := progress.MarkEmpty(unknown); err != nil {
					f.log.Error("marking empty failed", "err", err)
				}

				fetched.Add(int64(len(hits)))
				empty.Add(int64(len(misses)))
				barCount.Add(int64(len(bars)))
				f.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", idx+1, len(jobs)),
					"from", job.Range.Start.Format(domain.DateLayout),
					"hits", len(hits),
					"empty", len(misses),
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	stats.Fetched = int(fetched.Load())
	stats.Empty += int(empty.Load())
	stats.Failed = int(failed.Load())
	stats.Bars = int(barCount.Load())
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if stats.Failed == 0 {
		if err := progress.MarkCompleted(endStr); err != nil {
			return stats, err
		}
	}
	f.log.Info("complete",
		"fetched", stats.Fetched,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"bars", stats.Bars,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return stats, nil
}

// fetch performs one rate-limited, retried GetMultiBars call.
func (f *DailyBarFetcher) fetch(ctx context.Context, job fetchJob) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		multiBars, err = f.client.GetMultiBars(job.Symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     job.Range.Start,
			End:       job.Range.End,
			Feed:      marketdata.Feed(f.opts.Feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return convertBars(multiBars), nil
}

func convertBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}

// planJobs groups symbols by the first day they still need and splits each
// group into batches of at most batchSize. Symbols already holding end are
// left out.
func planJobs(symbols []string, latest map[string]time.Time, start, end time.Time, batchSize int) []fetchJob {
	groups := make(map[time.Time][]string)
	for _, sym := range symbols {
		from := start
		if ts, ok := latest[sym]; ok {
			y, m, d := ts.UTC().Date()
			from = time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
		}
		if from.After(end) {
			continue
		}
		groups[from] = append(groups[from], sym)
	}

	starts := make([]time.Time, 0, len(groups))
	for s := range groups {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	var jobs []fetchJob
	for _, s := range starts {
		syms := groups[s]
		sort.Strings(syms)
		for i := 0; i < len(syms); i += batchSize {
			jobs = append(jobs, fetchJob{
				Symbols: syms[i:min(i+batchSize, len(syms))],
				Range:   gather.DateRange{Start: s, End: end},
			})
		}
	}
	return jobs
}

func countSymbols(jobs []fetchJob) int {
	n := 0
	for _, j := range jobs {
		n += len(j.Symbols)
	}
	return n
}
