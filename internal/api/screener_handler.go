package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/screener"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
)

// MaxWatchlistSymbols bounds the symbols accepted by the watchlist endpoint
const MaxWatchlistSymbols = 500

// Screener is the service behind the screener endpoints
type Screener interface {
	FetchPage(ctx context.Context, req screener.PageRequest) (*models.Page, error)
	FetchWatchlistPage(ctx context.Context, symbols []string, req screener.PageRequest) (*models.Page, error)
	ExpandTriggerHistory(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.TriggerEvent, error)
	GetInstrument(ctx context.Context, symbol string) (*models.InstrumentAggregate, error)
	Freshness(ctx context.Context) (time.Time, error)
}

// ScreenerHandler handles screener endpoints
type ScreenerHandler struct {
	screener Screener
}

// NewScreenerHandler creates a new screener handler
func NewScreenerHandler(s Screener) *ScreenerHandler {
	return &ScreenerHandler{screener: s}
}

// RegisterRoutes mounts the screener endpoints on an /api/v1 subrouter
func (h *ScreenerHandler) RegisterRoutes(v1 *mux.Router) {
	v1.HandleFunc("/screener", h.GetPage).Methods("GET")
	v1.HandleFunc("/screener/watchlist", h.PostWatchlist).Methods("POST")
	v1.HandleFunc("/instruments/{symbol}", h.GetInstrument).Methods("GET")
	v1.HandleFunc("/instruments/{symbol}/triggers/{timeframe}", h.GetTriggers).Methods("GET")
	v1.HandleFunc("/freshness", h.GetFreshness).Methods("GET")
}

// GetPage handles GET /api/v1/screener
func (h *ScreenerHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := screener.PageRequest{
		Page:     parseIntQuery(r, "page", 0, 0, math.MaxInt32),
		PageSize: parseIntQuery(r, "page_size", 0, 1, math.MaxInt32),
		Filter: models.Filter{
			AssetType: q.Get("asset_type"),
			Search:    q.Get("search"),
		},
		Sort: models.SortSpec{
			Field:     q.Get("sort"),
			Direction: models.SortDirection(q.Get("direction")),
		},
	}

	page, err := h.screener.FetchPage(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

// WatchlistRequest is the body of POST /api/v1/screener/watchlist
type WatchlistRequest struct {
	Symbols   []string `json:"symbols"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	AssetType string   `json:"asset_type"`
	Search    string   `json:"search"`
	Sort      string   `json:"sort"`
	Direction string   `json:"direction"`
}

// PostWatchlist handles POST /api/v1/screener/watchlist
func (h *ScreenerHandler) PostWatchlist(w http.ResponseWriter, r *http.Request) {
	var body WatchlistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.Symbols) > MaxWatchlistSymbols {
		respondWithError(w, http.StatusBadRequest, "Too many symbols, maximum is "+strconv.Itoa(MaxWatchlistSymbols))
		return
	}
	if body.Page < 0 {
		body.Page = 0
	}

	req := screener.PageRequest{
		Page:     body.Page,
		PageSize: body.PageSize,
		Filter: models.Filter{
			AssetType: body.AssetType,
			Search:    body.Search,
		},
		Sort: models.SortSpec{
			Field:     body.Sort,
			Direction: models.SortDirection(body.Direction),
		},
	}

	page, err := h.screener.FetchWatchlistPage(r.Context(), body.Symbols, req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

// GetInstrument handles GET /api/v1/instruments/{symbol}
func (h *ScreenerHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	agg, err := h.screener.GetInstrument(r.Context(), symbol)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, agg)
}

// GetTriggers handles GET /api/v1/instruments/{symbol}/triggers/{timeframe}
func (h *ScreenerHandler) GetTriggers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	timeframe, err := models.ParseTimeframe(vars["timeframe"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid timeframe: "+vars["timeframe"])
		return
	}

	events, err := h.screener.ExpandTriggerHistory(r.Context(), symbol, timeframe)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"events":    events,
		"count":     len(events),
	})
}

// GetFreshness handles GET /api/v1/freshness
func (h *ScreenerHandler) GetFreshness(w http.ResponseWriter, r *http.Request) {
	updated, err := h.screener.Freshness(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	var latest *time.Time
	if !updated.IsZero() {
		latest = &updated
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"latest_update": latest,
		"has_data":      latest != nil,
	})
}

// respondWithServiceError maps screener errors to HTTP status codes
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	var message string
	switch {
	case errors.Is(err, models.ErrInvalidSymbol), errors.Is(err, models.ErrInvalidTimeframe):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrSymbolNotFound):
		code, message = http.StatusNotFound, "Symbol not found"
	case errors.Is(err, context.DeadlineExceeded):
		code, message = http.StatusGatewayTimeout, "Signal store timed out"
	case errors.Is(err, context.Canceled):
		code, message = http.StatusServiceUnavailable, "Request cancelled"
	case models.IsStoreError(err):
		code, message = http.StatusBadGateway, "Signal store unavailable"
	default:
		code, message = http.StatusInternalServerError, "Internal server error"
	}

	if code >= http.StatusInternalServerError {
		logger.ErrorsTotal.WithLabelValues("api", strconv.Itoa(code)).Inc()
		logger.WithContext(r.Context()).Error("Screener request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", code),
			logger.ErrorField(err),
		)
	}
	respondWithError(w, code, message)
}

func parseIntQuery(r *http.Request, key string, defaultValue, min, max int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < min || value > max {
		return defaultValue
	}
	return value
}
