package ranking

import (
	"sort"
	"strings"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// SortBySymbol orders bars by case-insensitive symbol. The sort is stable.
func SortBySymbol(bars []*models.SignalBar, dir models.SortDirection) []string {
	sorted := copyBars(bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := strings.ToLower(sorted[i].Symbol), strings.ToLower(sorted[j].Symbol)
		if dir == models.SortDesc {
			return a > b
		}
		return a < b
	})
	return symbolsOf(sorted)
}

// SortByPrice orders bars by close price. The sort is stable.
func SortByPrice(bars []*models.SignalBar, dir models.SortDirection) []string {
	sorted := copyBars(bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := sorted[i].ClosePrice.Cmp(sorted[j].ClosePrice)
		if dir == models.SortDesc {
			return c > 0
		}
		return c < 0
	})
	return symbolsOf(sorted)
}

// SortBySignalCount orders universe by count, then by total positive count in
// the same direction, then by symbol ascending. Universe symbols without a
// count row rank with zero counts; rows outside universe are dropped.
func SortBySignalCount(universe []string, counts []models.SymbolSignalCount, dir models.SortDirection) []string {
	bySymbol := make(map[string]models.SymbolSignalCount, len(counts))
	for _, c := range counts {
		if _, seen := bySymbol[c.Symbol]; !seen {
			bySymbol[c.Symbol] = c
		}
	}

	rows := make([]models.SymbolSignalCount, 0, len(universe))
	seen := make(map[string]struct{}, len(universe))
	for _, sym := range universe {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		c, ok := bySymbol[sym]
		if !ok {
			c = models.SymbolSignalCount{Symbol: sym}
		}
		rows = append(rows, c)
	}

	sortCounts(rows, dir)

	out := make([]string, len(rows))
	for i, c := range rows {
		out[i] = c.Symbol
	}
	return out
}

func sortCounts(rows []models.SymbolSignalCount, dir models.SortDirection) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Count != b.Count {
			if dir == models.SortAsc {
				return a.Count < b.Count
			}
			return a.Count > b.Count
		}
		if a.TotalPositive != b.TotalPositive {
			if dir == models.SortAsc {
				return a.TotalPositive < b.TotalPositive
			}
			return a.TotalPositive > b.TotalPositive
		}
		return a.Symbol < b.Symbol
	})
}

func copyBars(bars []*models.SignalBar) []*models.SignalBar {
	out := make([]*models.SignalBar, len(bars))
	copy(out, bars)
	return out
}

func symbolsOf(bars []*models.SignalBar) []string {
	out := make([]string, len(bars))
	for i, b := range bars {
		out[i] = b.Symbol
	}
	return out
}
