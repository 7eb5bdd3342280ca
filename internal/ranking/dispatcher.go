// Package ranking resolves the ordered symbol list a screener page is cut from.
package ranking

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// CountSource returns per-symbol positive flag counts for one timeframe
type CountSource interface {
	SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) ([]models.SymbolSignalCount, error)
}

// Dispatcher selects a sort strategy from a SortSpec
type Dispatcher struct {
	counts CountSource
}

// NewDispatcher creates a dispatcher backed by counts
func NewDispatcher(counts CountSource) *Dispatcher {
	return &Dispatcher{counts: counts}
}

// FetchCounts queries the count source when spec selects a timeframe sort.
// It returns nil counts for every other strategy.
func (d *Dispatcher) FetchCounts(ctx context.Context, spec models.SortSpec, filter models.Filter) ([]models.SymbolSignalCount, error) {
	resolved, kind, tf := spec.Resolve()
	if kind != models.SortBySignalCount {
		return nil, nil
	}
	counts, err := d.counts.SortedSymbolsBySignalCount(ctx, tf, resolved.Direction, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch %s signal counts: %w", tf, err)
	}
	if counts == nil {
		counts = []models.SymbolSignalCount{}
	}
	return counts, nil
}

// Order applies spec to universe. counts is only read for timeframe sorts.
func (d *Dispatcher) Order(spec models.SortSpec, universe []*models.SignalBar, counts []models.SymbolSignalCount) []string {
	resolved, kind, _ := spec.Resolve()
	switch kind {
	case models.SortByPrice:
		return SortByPrice(universe, resolved.Direction)
	case models.SortBySignalCount:
		return SortBySignalCount(symbolsOf(universe), counts, resolved.Direction)
	default:
		return SortBySymbol(universe, resolved.Direction)
	}
}

// Resolve fetches counts when needed and orders universe
func (d *Dispatcher) Resolve(ctx context.Context, spec models.SortSpec, filter models.Filter, universe []*models.SignalBar) ([]string, error) {
	counts, err := d.FetchCounts(ctx, spec, filter)
	if err != nil {
		return nil, err
	}
	return d.Order(spec, universe, counts), nil
}
