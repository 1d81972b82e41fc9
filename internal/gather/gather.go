// Package gather downloads raw market data into the bar store.
package gather

import (
	"context"
	"time"
)

// Fetcher brings stored bars for a set of symbols up to date.
type Fetcher interface {
	// Name returns the fetcher identifier.
	Name() string
	// Run fetches everything newer than each symbol's last stored bar.
	Run(ctx context.Context, symbols []string) (Stats, error)
}

// Stats summarises one fetch run.
type Stats struct {
	Symbols  int // symbols requested
	UpToDate int // already had the latest trading day
	Fetched  int // returned at least one bar
	Empty    int // returned nothing
	Failed   int // symbols in batches that errored
	Bars     int
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}
