package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("1D")
	require.NoError(t, err)
	assert.Equal(t, Timeframe1d, tf)

	tf, err = ParseTimeframe(" 3wk ")
	require.NoError(t, err)
	assert.Equal(t, Timeframe3wk, tf)

	_, err = ParseTimeframe("4d")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestTimeframes_FixedOrderAndCopy(t *testing.T) {
	tfs := Timeframes()
	require.Len(t, tfs, 12)
	assert.Equal(t, Timeframe1d, tfs[0])
	assert.Equal(t, Timeframe5mo, tfs[11])

	tfs[0] = "mutated"
	assert.Equal(t, Timeframe1d, Timeframes()[0])
}

func TestSignalBar_Validate(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		bar  SignalBar
		want error
	}{
		{"valid", SignalBar{Symbol: "AAPL", Timeframe: Timeframe1d, Date: date}, nil},
		{"missing symbol", SignalBar{Timeframe: Timeframe1d, Date: date}, ErrInvalidSymbol},
		{"bad timeframe", SignalBar{Symbol: "AAPL", Timeframe: "7d", Date: date}, ErrInvalidTimeframe},
		{"missing date", SignalBar{Symbol: "AAPL", Timeframe: Timeframe1d}, ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestSignalBar_FlagsAndCounts(t *testing.T) {
	bar := &SignalBar{
		Symbol:    "AAPL",
		Timeframe: Timeframe1d,
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Signal1:   true,
		Signal4:   true,
		Signal7:   true,
	}

	v, err := bar.Flag(SignalKey4)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = bar.Flag(SignalKey2)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = bar.Flag("signal_8")
	assert.ErrorIs(t, err, ErrUnknownSignalKey)

	assert.True(t, bar.IsCycleEnd())
	assert.Equal(t, 2, bar.PositiveCount(), "cycle-end flag is not counted")

	flags := bar.Flags()
	assert.Equal(t, "2024-03-01", flags.Date)
	assert.True(t, flags.Signal7)
}

func TestAccessor(t *testing.T) {
	for _, k := range append(TriggerKeys(), CycleEndKey) {
		get, err := Accessor(k)
		require.NoError(t, err, k)
		assert.NotNil(t, get)
	}

	_, err := Accessor("signal_0")
	assert.ErrorIs(t, err, ErrUnknownSignalKey)
}

func TestSortSpec_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		spec     SortSpec
		wantSpec SortSpec
		wantKind SortKind
		wantTF   Timeframe
	}{
		{"empty", SortSpec{}, SortSpec{Field: "symbol", Direction: SortAsc}, SortBySymbol, ""},
		{"symbol desc", SortSpec{Field: "Symbol", Direction: "DESC"}, SortSpec{Field: "symbol", Direction: SortDesc}, SortBySymbol, ""},
		{"price default", SortSpec{Field: "price"}, SortSpec{Field: "price", Direction: SortAsc}, SortByPrice, ""},
		{"timeframe default desc", SortSpec{Field: "1WK"}, SortSpec{Field: "1wk", Direction: SortDesc}, SortBySignalCount, Timeframe1wk},
		{"timeframe asc", SortSpec{Field: "1d", Direction: SortAsc}, SortSpec{Field: "1d", Direction: SortAsc}, SortBySignalCount, Timeframe1d},
		{"unknown field", SortSpec{Field: "change", Direction: SortDesc}, SortSpec{Field: "symbol", Direction: SortAsc}, SortBySymbol, ""},
		{"bad direction", SortSpec{Field: "price", Direction: "up"}, SortSpec{Field: "price", Direction: SortAsc}, SortByPrice, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, kind, tf := tt.spec.Resolve()
			assert.Equal(t, tt.wantSpec, spec)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantTF, tf)
		})
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("count_matching", cause)

	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "count_matching")
	assert.NoError(t, NewStoreError("noop", nil))

	wrapped := errors.Join(errors.New("page"), err)
	assert.True(t, IsStoreError(wrapped))
	assert.False(t, IsStoreError(cause))
}

func TestPriceChange_JSON(t *testing.T) {
	undefined, err := json.Marshal(PriceChange{Status: ChangeUndefined})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"undefined","percent":null,"absolute":null}`, string(undefined))

	pct := 10.0
	diff := decimal.RequireFromString("1.5")
	ok, err := json.Marshal(PriceChange{Status: ChangeOK, Percent: &pct, Absolute: &diff})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","percent":10,"absolute":"1.5"}`, string(ok))
}

func TestTriggerEvent_EmptyListEncodesAsArray(t *testing.T) {
	data, err := json.Marshal(TriggerEvent{Date: "2024-03-01", Triggered: []SignalKey{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01","triggered_signals":[]}`, string(data))
}

func TestPricePoint_DecimalPrice(t *testing.T) {
	p := PricePoint{Date: "2024-03-01", Price: decimal.RequireFromString("101.25")}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01","price":"101.25"}`, string(data))
}
