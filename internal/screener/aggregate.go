package screener

import (
	"github.com/mohamedkhairy/signal-screener/internal/fusion"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentChange compares the last two prices of an ascending series
func PercentChange(prices []decimal.Decimal) models.PriceChange {
	if len(prices) < 2 {
		zero := 0.0
		return models.PriceChange{Status: models.ChangeInsufficientData, Percent: &zero}
	}
	latest, previous := prices[len(prices)-1], prices[len(prices)-2]
	diff := latest.Sub(previous)
	if previous.IsZero() {
		return models.PriceChange{Status: models.ChangeUndefined, Absolute: &diff}
	}
	pct, _ := diff.DivRound(previous, 16).Mul(hundred).Float64()
	return models.PriceChange{Status: models.ChangeOK, Percent: &pct, Absolute: &diff}
}

// buildAggregate shapes a composite into the record served to callers.
// Missing timeframes yield empty arrays and zero counts.
func buildAggregate(c *fusion.Composite, timeframes []models.Timeframe, triggers map[models.Timeframe][]models.TriggerEvent) *models.InstrumentAggregate {
	agg := &models.InstrumentAggregate{
		Symbol:       c.Symbol,
		Name:         c.Symbol,
		Signals:      make(map[models.Timeframe][]models.SignalFlags, len(timeframes)),
		MACDHistory:  make(map[models.Timeframe][]models.MACDPoint, len(timeframes)),
		PriceHistory: make([]models.PricePoint, 0, len(c.PriceHistory)),
		Counts:       make(map[models.Timeframe]models.SignalCount, len(timeframes)),
		Triggers:     triggers,
	}

	if c.Base != nil {
		agg.AssetType = c.Base.AssetType
		agg.Price = c.Base.ClosePrice
	}

	for _, tf := range timeframes {
		count := models.SignalCount{TotalPossible: models.TotalPossibleSignals}
		flags := []models.SignalFlags{}
		if bar, ok := c.ByTimeframe[tf]; ok {
			flags = append(flags, bar.Flags())
			count.Positive = bar.PositiveCount()
			if agg.AssetType == "" {
				agg.AssetType = bar.AssetType
			}
		}
		agg.Signals[tf] = flags
		agg.Counts[tf] = count

		history := c.MACDHistory[tf]
		points := make([]models.MACDPoint, 0, len(history))
		for _, bar := range history {
			points = append(points, models.MACDPoint{
				Date:       models.TradingDate(bar.Date),
				MACDLine:   bar.MACDLine,
				SignalLine: bar.SignalLine,
				Histogram:  bar.Histogram,
			})
		}
		agg.MACDHistory[tf] = points
	}

	prices := make([]decimal.Decimal, 0, len(c.PriceHistory))
	for _, bar := range c.PriceHistory {
		agg.PriceHistory = append(agg.PriceHistory, models.PricePoint{
			Date:  models.TradingDate(bar.Date),
			Price: bar.ClosePrice,
		})
		prices = append(prices, bar.ClosePrice)
	}
	agg.Change = PercentChange(prices)

	return agg
}
