package fusion

import (
	"sort"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// Composite is every fetched row belonging to one symbol
type Composite struct {
	Symbol string
	// Base is the latest snapshot row, nil when the symbol had none
	Base        *models.SignalBar
	ByTimeframe map[models.Timeframe]*models.SignalBar
	// MACDHistory is ascending by date and capped at Limits.IndicatorRows
	MACDHistory map[models.Timeframe][]*models.SignalBar
	// PriceHistory is the daily series, ascending and capped at Limits.PriceRows
	PriceHistory []*models.SignalBar
}

// Merge folds the snapshot and detail rows into one Composite per symbol, in
// the order of symbols. Rows for other symbols are ignored.
func (f *Fetcher) Merge(symbols []string, base []*models.SignalBar, detail *Detail) []*Composite {
	bySymbol := make(map[string]*Composite, len(symbols))
	out := make([]*Composite, 0, len(symbols))
	for _, sym := range symbols {
		if _, dup := bySymbol[sym]; dup {
			continue
		}
		c := &Composite{
			Symbol:       sym,
			ByTimeframe:  make(map[models.Timeframe]*models.SignalBar),
			MACDHistory:  make(map[models.Timeframe][]*models.SignalBar),
			PriceHistory: []*models.SignalBar{},
		}
		bySymbol[sym] = c
		out = append(out, c)
	}

	for _, bar := range base {
		if c, ok := bySymbol[bar.Symbol]; ok {
			c.Base = bar
		}
	}

	if detail == nil {
		return out
	}

	for _, bar := range detail.Latest {
		c, ok := bySymbol[bar.Symbol]
		if !ok {
			continue
		}
		if cur, seen := c.ByTimeframe[bar.Timeframe]; !seen || bar.Date.After(cur.Date) {
			c.ByTimeframe[bar.Timeframe] = bar
		}
	}

	for tf, rows := range detail.History {
		for _, bar := range rows {
			c, ok := bySymbol[bar.Symbol]
			if !ok {
				continue
			}
			c.MACDHistory[tf] = append(c.MACDHistory[tf], bar)
		}
	}

	for _, c := range out {
		if daily, ok := c.MACDHistory[models.DailyTimeframe]; ok {
			c.PriceHistory = tail(ascending(daily), f.limits.PriceRows)
		}
		for tf, rows := range c.MACDHistory {
			c.MACDHistory[tf] = tail(ascending(rows), f.limits.IndicatorRows)
		}
	}
	return out
}

// ascending returns a date-ascending copy of rows
func ascending(rows []*models.SignalBar) []*models.SignalBar {
	sorted := make([]*models.SignalBar, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	return sorted
}

// tail keeps the newest n rows of an ascending series
func tail(rows []*models.SignalBar, n int) []*models.SignalBar {
	if len(rows) > n {
		return rows[len(rows)-n:]
	}
	return rows
}
