package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/screener"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBar(symbol string, tf models.Timeframe, date string, price string, flags ...bool) *models.SignalBar {
	d, _ := models.ParseTradingDate(date)
	b := &models.SignalBar{
		Symbol:     symbol,
		AssetType:  "stock",
		Timeframe:  tf,
		Date:       d,
		ClosePrice: decimal.RequireFromString(price),
	}
	dst := []*bool{&b.Signal1, &b.Signal2, &b.Signal3, &b.Signal4, &b.Signal5, &b.Signal6, &b.Signal7}
	for i, f := range flags {
		*dst[i] = f
	}
	return b
}

func testStore() *storage.MockSignalStore {
	return storage.NewMockSignalStore(
		testBar("AAPL", models.Timeframe1d, "2024-03-01", "100"),
		testBar("AAPL", models.Timeframe1d, "2024-03-04", "110", true),
		testBar("MSFT", models.Timeframe1d, "2024-03-04", "400", true, true),
		testBar("TSLA", models.Timeframe1d, "2024-03-04", "200"),
	)
}

func newTestRouter(store storage.SignalStore) *mux.Router {
	svc := screener.NewService(store, nil, screener.DefaultConfig())
	router := mux.NewRouter()
	NewScreenerHandler(svc).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())
	return router
}

func serve(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) models.Page {
	t.Helper()
	var page models.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page
}

func TestScreenerHandler_GetPage(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/screener?page_size=2&sort=price&direction=desc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	page := decodePage(t, w)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "MSFT", page.Rows[0].Symbol)
	assert.Equal(t, "TSLA", page.Rows[1].Symbol)
	assert.Equal(t, models.SortSpec{Field: "price", Direction: models.SortDesc}, page.Sort)
}

func TestScreenerHandler_GetPage_SearchAndTimeframeSort(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/screener?sort=1D", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, w)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, []string{"MSFT", "AAPL", "TSLA"}, []string{page.Rows[0].Symbol, page.Rows[1].Symbol, page.Rows[2].Symbol})

	w = serve(router, "GET", "/api/v1/screener?search=aa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decodePage(t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 3, page.UniqueSymbolCount)
}

func TestScreenerHandler_GetPage_BadParamsFallBack(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/screener?page=-3&page_size=abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, w)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, screener.DefaultConfig().DefaultPageSize, page.PageSize)
}

func TestScreenerHandler_GetPage_RowShape(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/screener?search=TSLA", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	rows := raw["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})

	assert.Equal(t, "200", row["price"])
	change := row["change"].(map[string]interface{})
	assert.Equal(t, "insufficient_data", change["status"])
	assert.Equal(t, 0.0, change["percent"])
	signals := row["signals"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, signals["5mo"])
	assert.NotContains(t, row, "triggers")
}

func TestScreenerHandler_StoreErrors(t *testing.T) {
	store := testStore()
	store.SetError(storage.OpLatestBarPerSymbol, errors.New("connection refused"))
	router := newTestRouter(store)

	w := serve(router, "GET", "/api/v1/screener", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Signal store unavailable", body["error"])
	assert.Equal(t, float64(http.StatusBadGateway), body["code"])
}

func TestScreenerHandler_Timeout(t *testing.T) {
	store := testStore()
	store.Delay = time.Second
	cfg := screener.DefaultConfig()
	cfg.QueryTimeout = 10 * time.Millisecond
	router := mux.NewRouter()
	NewScreenerHandler(screener.NewService(store, nil, cfg)).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())

	w := serve(router, "GET", "/api/v1/screener", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestScreenerHandler_PostWatchlist(t *testing.T) {
	router := newTestRouter(testStore())

	body, _ := json.Marshal(WatchlistRequest{Symbols: []string{"TSLA", "AAPL", "NOPE"}, Sort: "symbol", Direction: "desc"})
	w := serve(router, "POST", "/api/v1/screener/watchlist", body)
	require.Equal(t, http.StatusOK, w.Code)

	page := decodePage(t, w)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.UniqueSymbolCount)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "TSLA", page.Rows[0].Symbol)
}

func TestScreenerHandler_PostWatchlist_BadBody(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "POST", "/api/v1/screener/watchlist", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	symbols := make([]string, MaxWatchlistSymbols+1)
	for i := range symbols {
		symbols[i] = "S"
	}
	body, _ := json.Marshal(WatchlistRequest{Symbols: symbols})
	w = serve(router, "POST", "/api/v1/screener/watchlist", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScreenerHandler_GetInstrument(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/instruments/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var agg models.InstrumentAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
	assert.Equal(t, "AAPL", agg.Symbol)
	assert.Equal(t, models.ChangeOK, agg.Change.Status)
	require.Len(t, agg.Triggers[models.Timeframe1d], 2)
	assert.Equal(t, []models.SignalKey{models.SignalKey1}, agg.Triggers[models.Timeframe1d][1].Triggered)

	w = serve(router, "GET", "/api/v1/instruments/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScreenerHandler_GetTriggers(t *testing.T) {
	router := newTestRouter(testStore())

	w := serve(router, "GET", "/api/v1/instruments/MSFT/triggers/1D", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Symbol    string                `json:"symbol"`
		Timeframe string                `json:"timeframe"`
		Events    []models.TriggerEvent `json:"events"`
		Count     int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1d", body.Timeframe)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, []models.SignalKey{models.SignalKey1, models.SignalKey2}, body.Events[0].Triggered)

	w = serve(router, "GET", "/api/v1/instruments/MSFT/triggers/7d", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScreenerHandler_GetTriggers_DirectCall(t *testing.T) {
	handler := NewScreenerHandler(screener.NewService(testStore(), nil, screener.DefaultConfig()))

	req := httptest.NewRequest("GET", "/api/v1/instruments/AAPL/triggers/1wk", nil)
	req = mux.SetURLVars(req, map[string]string{"symbol": "AAPL", "timeframe": "1wk"})
	w := httptest.NewRecorder()

	handler.GetTriggers(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"events":[]`))
}

func TestScreenerHandler_GetFreshness(t *testing.T) {
	store := testStore()
	router := newTestRouter(store)

	w := serve(router, "GET", "/api/v1/freshness", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"latest_update":null,"has_data":false}`, w.Body.String())

	store.Updated = time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	w = serve(router, "GET", "/api/v1/freshness", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"latest_update":"2024-03-04T22:00:00Z","has_data":true}`, w.Body.String())
}

func TestRespondWithServiceError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{models.ErrInvalidSymbol, http.StatusBadRequest},
		{models.ErrInvalidTimeframe, http.StatusBadRequest},
		{models.ErrSymbolNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{models.NewStoreError("count_matching", errors.New("x")), http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			respondWithServiceError(w, httptest.NewRequest("GET", "/x", nil), tt.err)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"store": testStore()})

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewHealthHandler(map[string]Pinger{"store": failingPinger{errors.New("down")}})
	w = httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")

	w = httptest.NewRecorder()
	h.Live(w, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
