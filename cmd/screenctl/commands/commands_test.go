package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatChange(t *testing.T) {
	pct := 10.0
	assert.Equal(t, "+10.00%", formatChange(models.PriceChange{Status: models.ChangeOK, Percent: &pct}))
	assert.Equal(t, "n/a", formatChange(models.PriceChange{Status: models.ChangeUndefined}))
	assert.Equal(t, "-", formatChange(models.PriceChange{Status: models.ChangeInsufficientData}))
}

func TestPrintPage(t *testing.T) {
	pct := -1.5
	page := &models.Page{
		Rows: []*models.InstrumentAggregate{{
			Symbol: "AAPL",
			Price:  decimal.RequireFromString("187.3"),
			Change: models.PriceChange{Status: models.ChangeOK, Percent: &pct},
			Counts: map[models.Timeframe]models.SignalCount{
				models.Timeframe1d: {Positive: 3, TotalPossible: 6},
			},
		}},
		Total:             41,
		UniqueSymbolCount: 900,
		PageSize:          20,
		Sort:              models.SortSpec{Field: "1d", Direction: models.SortDesc},
	}

	var buf bytes.Buffer
	require.NoError(t, printPage(&buf, page))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "page 1/3")
	assert.Contains(t, lines[0], "sort 1d desc")
	assert.Contains(t, lines[1], "5MO")
	assert.Contains(t, lines[2], "187.30")
	assert.Contains(t, lines[2], "-1.50%")
	assert.Contains(t, lines[2], "3/6")
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"page", "triggers", "instrument", "invalidate"} {
		assert.True(t, names[want], want)
	}
}
