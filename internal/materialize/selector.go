package materialize

import (
	"context"
	"fmt"

	"stockcast/internal/domain"
	"stockcast/internal/store"
)

// SafetyMargin is added to the longest label window when a bounded
// context is configured.
const SafetyMargin = 10

// Mode describes how a selection must be committed.
type Mode int

const (
	// ModeFull rewrites the whole table.
	ModeFull Mode = iota + 1
	// ModeIncremental appends rows after the last committed date.
	ModeIncremental
	// ModeUpToDate means there is nothing to compute.
	ModeUpToDate
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	case ModeUpToDate:
		return "up-to-date"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Selection is the slice of upstream rows to feed into a transformer.
type Selection struct {
	Mode Mode
	// Rows is context ∪ new, ordered and unique by date. Nil when up to date.
	Rows *domain.Table
	// LastCommitted is the store's last date; "" in full mode.
	LastCommitted string
	// Context is the number of already committed rows included in Rows.
	Context int
	// Reason explains an up-to-date selection.
	Reason string
}

// Empty reports whether nothing needs to be materialized.
func (s Selection) Empty() bool { return s.Mode == ModeUpToDate }

// NewRows returns the number of rows in the selection dated after the
// committed tail.
func (s Selection) NewRows() int {
	if s.Rows == nil {
		return 0
	}
	return s.Rows.Len() - s.Context
}

// Selector decides which upstream rows must be recomputed for one
// instrument so that windows crossing the append boundary see real data.
type Selector struct {
	Store store.TableStore
	// ContextRows bounds how many committed rows are re-fed as context.
	// Zero re-feeds every committed date.
	ContextRows int
}

// Select returns the rows of upstream to materialize into key. upstream
// must be normalized.
func (s *Selector) Select(ctx context.Context, key domain.StoreKey, upstream *domain.Table, force bool) (Selection, error) {
	if upstream.Len() == 0 {
		return Selection{}, fmt.Errorf("%s upstream for %s: %w", key.Stage, key.Instrument, domain.ErrEmptyData)
	}
	if force {
		return Selection{Mode: ModeFull, Rows: upstream}, nil
	}

	last, err := s.Store.LastKey(ctx, key)
	if err != nil {
		return Selection{}, err
	}
	if last == "" {
		return Selection{Mode: ModeFull, Rows: upstream}, nil
	}
	if upstream.LastDate() == last {
		return Selection{Mode: ModeUpToDate, LastCommitted: last, Reason: "already up to date"}, nil
	}

	fresh := upstream.After(last)
	if fresh.Len() == 0 {
		return Selection{Mode: ModeUpToDate, LastCommitted: last, Reason: "no new upstream rows"}, nil
	}

	tail, err := s.Store.ReadTail(ctx, key, s.ContextRows)
	if err != nil {
		return Selection{}, err
	}
	committed := make(map[string]struct{}, tail.Len())
	for _, r := range tail.Rows {
		committed[r.Date] = struct{}{}
	}

	rows := &domain.Table{Instrument: upstream.Instrument}
	for _, r := range upstream.Rows {
		if r.Date > last {
			break
		}
		if _, ok := committed[r.Date]; ok {
			rows.Rows = append(rows.Rows, r)
		}
	}
	contextLen := rows.Len()
	rows.Rows = append(rows.Rows, fresh.Rows...)
	rows.Normalize()

	return Selection{
		Mode:          ModeIncremental,
		Rows:          rows,
		LastCommitted: last,
		Context:       contextLen,
	}, nil
}

// LabelContextRows returns the context size for a label stage. A
// configured zero keeps the full history; anything else is raised to at
// least the longest window plus SafetyMargin.
func LabelContextRows(configured int, specs []domain.LabelSpec) int {
	if configured <= 0 {
		return 0
	}
	return max(configured, domain.MaxWindow(specs)+SafetyMargin)
}
