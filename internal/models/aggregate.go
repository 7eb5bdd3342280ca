package models

import (
	"github.com/shopspring/decimal"
)

// TriggerEvent lists the keys that newly became true on a date, or just the
// cycle-end key when the bar closes a cycle
type TriggerEvent struct {
	Date      string      `json:"date"`
	Triggered []SignalKey `json:"triggered_signals"`
}

// SignalCount is the positive-flag tally of a timeframe's latest bar
type SignalCount struct {
	Positive      int `json:"positive_count"`
	TotalPossible int `json:"total_possible"`
}

// SymbolSignalCount is one row of the pre-aggregated signal count ranking
type SymbolSignalCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
	// TotalPositive sums positive counts across every timeframe's latest bar
	TotalPositive int `json:"total_positive"`
}

// ChangeStatus tells how a percent change was resolved
type ChangeStatus string

const (
	ChangeOK ChangeStatus = "ok"
	// ChangeInsufficientData means fewer than two price points exist; percent is 0
	ChangeInsufficientData ChangeStatus = "insufficient_data"
	// ChangeUndefined means the previous price is zero; percent is absent
	ChangeUndefined ChangeStatus = "undefined"
)

// PriceChange is the day-over-day change of the close price. Absolute is nil
// when fewer than two prices exist.
type PriceChange struct {
	Status   ChangeStatus     `json:"status"`
	Percent  *float64         `json:"percent"`
	Absolute *decimal.Decimal `json:"absolute"`
}

// MACDPoint is one entry of the indicator history
type MACDPoint struct {
	Date       string  `json:"date"`
	MACDLine   float64 `json:"macd_line"`
	SignalLine float64 `json:"signal_line"`
	Histogram  float64 `json:"histogram"`
}

// PricePoint is one entry of the daily price history
type PricePoint struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// InstrumentAggregate is the per-symbol composite record served to the screener
type InstrumentAggregate struct {
	Symbol       string                       `json:"symbol"`
	Name         string                       `json:"name"`
	AssetType    string                       `json:"asset_type"`
	Price        decimal.Decimal              `json:"price"`
	Change       PriceChange                  `json:"change"`
	Signals      map[Timeframe][]SignalFlags  `json:"signals"`
	Triggers     map[Timeframe][]TriggerEvent `json:"triggers,omitempty"`
	MACDHistory  map[Timeframe][]MACDPoint    `json:"macd_history"`
	PriceHistory []PricePoint                 `json:"price_history"`
	Counts       map[Timeframe]SignalCount    `json:"signal_counts"`
}

// Filter narrows the instrument universe
type Filter struct {
	AssetType string `json:"asset_type,omitempty"`
	// Search is a case-insensitive substring match on the symbol
	Search string `json:"search,omitempty"`
	// Symbols restricts the universe to an explicit set (watchlists)
	Symbols []string `json:"symbols,omitempty"`
}

// Page is one page of ranked aggregates
type Page struct {
	Rows              []*InstrumentAggregate `json:"rows"`
	Total             int                    `json:"total"`
	UniqueSymbolCount int                    `json:"unique_symbol_count"`
	Page              int                    `json:"page"`
	PageSize          int                    `json:"page_size"`
	Sort              SortSpec               `json:"sort"`
}
