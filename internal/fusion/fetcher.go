// Package fusion fetches the partial results a screener page is built from
// and folds them into one composite record per symbol.
package fusion

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Limits bounds the historical windows fetched per symbol
type Limits struct {
	IndicatorRows int
	PriceRows     int
}

// DefaultLimits returns 60 indicator rows and 180 daily price rows
func DefaultLimits() Limits {
	return Limits{IndicatorRows: 60, PriceRows: 180}
}

// Snapshot is the filter-wide part of a page
type Snapshot struct {
	Count         int
	UniqueSymbols int
	Latest        []*models.SignalBar
}

// Detail is the page-scoped part of a page
type Detail struct {
	// Latest holds the newest bar per (symbol, timeframe)
	Latest []*models.SignalBar
	// History holds date-descending rows per timeframe as returned by the store
	History map[models.Timeframe][]*models.SignalBar
}

// Fetcher issues the read-only store queries for one request
type Fetcher struct {
	store  storage.SignalStore
	limits Limits
}

// NewFetcher creates a fetcher. Non-positive limits fall back to the defaults.
func NewFetcher(store storage.SignalStore, limits Limits) *Fetcher {
	def := DefaultLimits()
	if limits.IndicatorRows <= 0 {
		limits.IndicatorRows = def.IndicatorRows
	}
	if limits.PriceRows <= 0 {
		limits.PriceRows = def.PriceRows
	}
	return &Fetcher{store: store, limits: limits}
}

// Limits returns the effective history limits
func (f *Fetcher) Limits() Limits {
	return f.limits
}

// Snapshot runs the count, unique-symbol count and latest snapshot queries
// concurrently. Any failure fails the whole snapshot.
func (f *Fetcher) Snapshot(ctx context.Context, filter models.Filter) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := f.store.CountMatching(gctx, filter)
		if err != nil {
			return fmt.Errorf("count matching symbols: %w", err)
		}
		snap.Count = n
		return nil
	})
	g.Go(func() error {
		n, err := f.store.UniqueSymbolCount(gctx)
		if err != nil {
			return fmt.Errorf("count unique symbols: %w", err)
		}
		snap.UniqueSymbols = n
		return nil
	})
	g.Go(func() error {
		bars, err := f.store.LatestBarPerSymbol(gctx, filter)
		if err != nil {
			return fmt.Errorf("fetch latest snapshot: %w", err)
		}
		snap.Latest = bars
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if snap.Latest == nil {
		snap.Latest = []*models.SignalBar{}
	}
	return &snap, nil
}

// Detail fetches the per-timeframe latest bars and one history window per
// timeframe for symbols. The daily window is widened to cover price history.
func (f *Fetcher) Detail(ctx context.Context, symbols []string, timeframes []models.Timeframe) (*Detail, error) {
	return f.DetailWithWindow(ctx, symbols, timeframes, 0)
}

// DetailWithWindow is Detail with every history window widened to at least
// minRows, so callers needing a longer series share the same queries.
func (f *Fetcher) DetailWithWindow(ctx context.Context, symbols []string, timeframes []models.Timeframe, minRows int) (*Detail, error) {
	detail := &Detail{
		Latest:  []*models.SignalBar{},
		History: make(map[models.Timeframe][]*models.SignalBar, len(timeframes)),
	}
	if len(symbols) == 0 {
		return detail, nil
	}

	histories := make([][]*models.SignalBar, len(timeframes))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bars, err := f.store.DetailForSymbols(gctx, symbols, timeframes)
		if err != nil {
			return fmt.Errorf("fetch timeframe detail: %w", err)
		}
		if bars != nil {
			detail.Latest = bars
		}
		return nil
	})
	for i, tf := range timeframes {
		g.Go(func() error {
			bars, err := f.store.HistoryForSymbols(gctx, symbols, tf, max(f.rowsFor(tf), minRows))
			if err != nil {
				return fmt.Errorf("fetch %s history: %w", tf, err)
			}
			histories[i] = bars
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, tf := range timeframes {
		detail.History[tf] = histories[i]
	}
	return detail, nil
}

func (f *Fetcher) rowsFor(tf models.Timeframe) int {
	if tf == models.DailyTimeframe {
		return max(f.limits.IndicatorRows, f.limits.PriceRows)
	}
	return f.limits.IndicatorRows
}

// Series returns the newest n history rows of symbol in timeframe, oldest first
func (d *Detail) Series(symbol string, tf models.Timeframe, n int) []*models.SignalBar {
	rows := []*models.SignalBar{}
	for _, bar := range d.History[tf] {
		if bar.Symbol == symbol {
			rows = append(rows, bar)
		}
	}
	return tail(ascending(rows), n)
}
