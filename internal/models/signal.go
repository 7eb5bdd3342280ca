package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is an aggregation period over which indicator bars are computed
type Timeframe string

const (
	Timeframe1d  Timeframe = "1d"
	Timeframe2d  Timeframe = "2d"
	Timeframe3d  Timeframe = "3d"
	Timeframe5d  Timeframe = "5d"
	Timeframe1wk Timeframe = "1wk"
	Timeframe2wk Timeframe = "2wk"
	Timeframe3wk Timeframe = "3wk"
	Timeframe1mo Timeframe = "1mo"
	Timeframe2mo Timeframe = "2mo"
	Timeframe3mo Timeframe = "3mo"
	Timeframe4mo Timeframe = "4mo"
	Timeframe5mo Timeframe = "5mo"

	// DailyTimeframe is the granularity used for price history and percent change
	DailyTimeframe = Timeframe1d
)

var trackedTimeframes = []Timeframe{
	Timeframe1d, Timeframe2d, Timeframe3d, Timeframe5d,
	Timeframe1wk, Timeframe2wk, Timeframe3wk,
	Timeframe1mo, Timeframe2mo, Timeframe3mo, Timeframe4mo, Timeframe5mo,
}

// Timeframes returns the tracked timeframes in their fixed display order
func Timeframes() []Timeframe {
	out := make([]Timeframe, len(trackedTimeframes))
	copy(out, trackedTimeframes)
	return out
}

// ParseTimeframe parses a timeframe identifier, case-insensitively
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if !tf.Valid() {
		return "", ErrInvalidTimeframe
	}
	return tf, nil
}

// Valid reports whether tf is one of the tracked timeframes
func (tf Timeframe) Valid() bool {
	for _, t := range trackedTimeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// SignalBar is one indicator row per (symbol, timeframe, date)
type SignalBar struct {
	Symbol     string          `json:"symbol"`
	AssetType  string          `json:"asset_type"`
	Timeframe  Timeframe       `json:"timeframe"`
	Date       time.Time       `json:"date"`
	ClosePrice decimal.Decimal `json:"close_price"`
	MACDLine   float64         `json:"macd_line"`
	SignalLine float64         `json:"signal_line"`
	Histogram  float64         `json:"macd_histogram"`
	Signal1    bool            `json:"signal_1"`
	Signal2    bool            `json:"signal_2"`
	Signal3    bool            `json:"signal_3"`
	Signal4    bool            `json:"signal_4"`
	Signal5    bool            `json:"signal_5"`
	Signal6    bool            `json:"signal_6"`
	Signal7    bool            `json:"signal_7"`
}

// Validate validates a SignalBar
func (b *SignalBar) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !b.Timeframe.Valid() {
		return ErrInvalidTimeframe
	}
	if b.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Flag returns the value of flag k on the bar
func (b *SignalBar) Flag(k SignalKey) (bool, error) {
	get, ok := signalAccessors[k]
	if !ok {
		return false, ErrUnknownSignalKey
	}
	return get(b), nil
}

// IsCycleEnd reports whether the bar carries the cycle-end flag
func (b *SignalBar) IsCycleEnd() bool {
	return b.Signal7
}

// PositiveCount is the number of true flags among the trigger keys (signal_1..signal_6)
func (b *SignalBar) PositiveCount() int {
	n := 0
	for _, k := range triggerKeys {
		if signalAccessors[k](b) {
			n++
		}
	}
	return n
}

// Flags returns the bar's flags as surfaced for the latest bar of a timeframe
func (b *SignalBar) Flags() SignalFlags {
	return SignalFlags{
		Date:    TradingDate(b.Date),
		Signal1: b.Signal1,
		Signal2: b.Signal2,
		Signal3: b.Signal3,
		Signal4: b.Signal4,
		Signal5: b.Signal5,
		Signal6: b.Signal6,
		Signal7: b.Signal7,
	}
}

// SignalFlags is the flag set of a single bar
type SignalFlags struct {
	Date    string `json:"date"`
	Signal1 bool   `json:"signal_1"`
	Signal2 bool   `json:"signal_2"`
	Signal3 bool   `json:"signal_3"`
	Signal4 bool   `json:"signal_4"`
	Signal5 bool   `json:"signal_5"`
	Signal6 bool   `json:"signal_6"`
	Signal7 bool   `json:"signal_7"`
}

// TradingDateLayout is the wire format of trading dates
const TradingDateLayout = "2006-01-02"

// TradingDate formats a timezone-naive trading date
func TradingDate(t time.Time) string {
	return t.Format(TradingDateLayout)
}

// ParseTradingDate parses a YYYY-MM-DD trading date as UTC midnight
func ParseTradingDate(s string) (time.Time, error) {
	t, err := time.Parse(TradingDateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
