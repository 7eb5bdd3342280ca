// Package screener assembles ranked, paginated pages of instrument aggregates
// and expands per-timeframe trigger histories.
package screener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/fusion"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/ranking"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/mohamedkhairy/signal-screener/internal/transition"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var (
	pageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_requests_total",
			Help: "Total number of screener operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	pageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screener_request_duration_seconds",
			Help:    "Duration of screener operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Config holds the page assembly limits
type Config struct {
	DefaultPageSize      int
	MaxPageSize          int
	IndicatorHistoryRows int
	PriceHistoryRows     int
	DetailHistoryRows    int
	QueryTimeout         time.Duration
}

// DefaultConfig returns the default page assembly limits
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:      20,
		MaxPageSize:          200,
		IndicatorHistoryRows: 60,
		PriceHistoryRows:     180,
		DetailHistoryRows:    100,
		QueryTimeout:         10 * time.Second,
	}
}

// ConfigFromScreenerConfig converts the application config
func ConfigFromScreenerConfig(cfg config.ScreenerConfig) Config {
	return Config{
		DefaultPageSize:      cfg.DefaultPageSize,
		MaxPageSize:          cfg.MaxPageSize,
		IndicatorHistoryRows: cfg.IndicatorHistoryRows,
		PriceHistoryRows:     cfg.PriceHistoryRows,
		DetailHistoryRows:    cfg.DetailHistoryRows,
		QueryTimeout:         cfg.QueryTimeout,
	}
}

// PageRequest selects one page of the screener
type PageRequest struct {
	Page     int
	PageSize int
	Filter   models.Filter
	Sort     models.SortSpec
}

// Service is the caller-facing screener
type Service struct {
	store      storage.SignalStore
	fetcher    *fusion.Fetcher
	dispatcher *ranking.Dispatcher
	machine    *transition.Machine
	timeframes []models.Timeframe
	config     Config
}

// NewService creates a screener. counts ranks timeframe sorts; pass the store
// itself or a ranking cache wrapping it.
func NewService(store storage.SignalStore, counts ranking.CountSource, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = def.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.DetailHistoryRows <= 0 {
		cfg.DetailHistoryRows = def.DetailHistoryRows
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if counts == nil {
		counts = store
	}

	return &Service{
		store: store,
		fetcher: fusion.NewFetcher(store, fusion.Limits{
			IndicatorRows: cfg.IndicatorHistoryRows,
			PriceRows:     cfg.PriceHistoryRows,
		}),
		dispatcher: ranking.NewDispatcher(counts),
		machine:    transition.Default(),
		timeframes: models.Timeframes(),
		config:     cfg,
	}
}

// FetchPage returns one ranked page of aggregates
func (s *Service) FetchPage(ctx context.Context, req PageRequest) (page *models.Page, err error) {
	defer s.observe("fetch_page", time.Now(), &err)

	req.Filter.Symbols = nil
	return s.fetchPage(ctx, req, false)
}

// FetchWatchlistPage pages over an explicit symbol set. Total and
// UniqueSymbolCount are the number of watchlist symbols found in the store.
func (s *Service) FetchWatchlistPage(ctx context.Context, symbols []string, req PageRequest) (page *models.Page, err error) {
	defer s.observe("fetch_watchlist_page", time.Now(), &err)

	req.Filter.Symbols = normalizeSymbols(symbols)
	if len(req.Filter.Symbols) == 0 {
		req = s.normalize(req)
		return &models.Page{
			Rows:     []*models.InstrumentAggregate{},
			Page:     req.Page,
			PageSize: req.PageSize,
			Sort:     req.Sort,
		}, nil
	}
	return s.fetchPage(ctx, req, true)
}

func (s *Service) fetchPage(ctx context.Context, req PageRequest, watchlist bool) (*models.Page, error) {
	req = s.normalize(req)
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	// phase 1: filter-wide snapshot and ranking counts
	var (
		snap   *fusion.Snapshot
		counts []models.SymbolSignalCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.fetcher.Snapshot(gctx, req.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.dispatcher.FetchCounts(gctx, req.Sort, req.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ordered := s.dispatcher.Order(req.Sort, snap.Latest, counts)
	symbols := Paginate(ordered, req.Page, req.PageSize)

	// phase 2: page-scoped detail
	detail, err := s.fetcher.Detail(ctx, symbols, s.timeframes)
	if err != nil {
		return nil, err
	}

	rows := make([]*models.InstrumentAggregate, 0, len(symbols))
	for _, c := range s.fetcher.Merge(symbols, snap.Latest, detail) {
		rows = append(rows, buildAggregate(c, s.timeframes, nil))
	}

	page := &models.Page{
		Rows:              rows,
		Total:             snap.Count,
		UniqueSymbolCount: snap.UniqueSymbols,
		Page:              req.Page,
		PageSize:          req.PageSize,
		Sort:              req.Sort,
	}
	if watchlist {
		page.Total = len(snap.Latest)
		page.UniqueSymbolCount = len(snap.Latest)
	}

	logger.Debug("Assembled screener page",
		logger.Int("page", req.Page),
		logger.Int("page_size", req.PageSize),
		logger.Int("rows", len(rows)),
		logger.Int("total", page.Total),
		logger.String("sort", req.Sort.Field),
		logger.Bool("watchlist", watchlist),
	)
	return page, nil
}

// ExpandTriggerHistory returns the trigger events of one symbol and timeframe,
// oldest first, over the detail history window
func (s *Service) ExpandTriggerHistory(ctx context.Context, symbol string, timeframe models.Timeframe) (events []models.TriggerEvent, err error) {
	defer s.observe("expand_trigger_history", time.Now(), &err)

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}
	if !timeframe.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTimeframe, timeframe)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	return s.triggers(ctx, symbol, timeframe)
}

func (s *Service) triggers(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.TriggerEvent, error) {
	bars, err := s.store.HistoryForSymbols(ctx, []string{symbol}, timeframe, s.config.DetailHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("fetch %s trigger history for %s: %w", timeframe, symbol, err)
	}
	events, err := s.machine.Run(bars)
	if err != nil {
		return nil, fmt.Errorf("expand %s triggers for %s: %w", timeframe, symbol, err)
	}
	return events, nil
}

// GetInstrument returns the detail view of one symbol with the trigger
// history of every timeframe
func (s *Service) GetInstrument(ctx context.Context, symbol string) (agg *models.InstrumentAggregate, err error) {
	defer s.observe("get_instrument", time.Now(), &err)

	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	symbols := []string{symbol}
	base, err := s.store.LatestBarPerSymbol(ctx, models.Filter{Symbols: symbols})
	if err != nil {
		return nil, fmt.Errorf("fetch latest bar for %s: %w", symbol, err)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrSymbolNotFound, symbol)
	}

	// one window per timeframe serves both the MACD history and the triggers
	detail, err := s.fetcher.DetailWithWindow(ctx, symbols, s.timeframes, s.config.DetailHistoryRows)
	if err != nil {
		return nil, err
	}

	byTimeframe := make(map[models.Timeframe][]models.TriggerEvent, len(s.timeframes))
	for _, tf := range s.timeframes {
		events, err := s.machine.Run(detail.Series(symbol, tf, s.config.DetailHistoryRows))
		if err != nil {
			return nil, fmt.Errorf("expand %s triggers for %s: %w", tf, symbol, err)
		}
		byTimeframe[tf] = events
	}

	composites := s.fetcher.Merge(symbols, base, detail)
	return buildAggregate(composites[0], s.timeframes, byTimeframe), nil
}

// Freshness returns when the newest signal row was ingested. The zero time
// means the store holds no rows.
func (s *Service) Freshness(ctx context.Context) (updated time.Time, err error) {
	defer s.observe("freshness", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	updated, err = s.store.LatestUpdate(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch latest update: %w", err)
	}
	return updated, nil
}

// normalize clamps the page size and resolves the sort
func (s *Service) normalize(req PageRequest) PageRequest {
	if req.PageSize <= 0 {
		req.PageSize = s.config.DefaultPageSize
	}
	req.PageSize = min(max(req.PageSize, 1), s.config.MaxPageSize)
	req.Sort, _, _ = req.Sort.Resolve()
	req.Filter.AssetType = strings.TrimSpace(req.Filter.AssetType)
	req.Filter.Search = strings.TrimSpace(req.Filter.Search)
	return req
}

func (s *Service) observe(op string, start time.Time, err *error) {
	pageDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	pageRequests.WithLabelValues(op, outcome(*err)).Inc()
	if *err != nil && !errors.Is(*err, models.ErrSymbolNotFound) {
		logger.Warn("Screener operation failed",
			logger.String("operation", op),
			logger.ErrorField(*err),
		)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, models.ErrSymbolNotFound):
		return "not_found"
	case models.IsStoreError(err):
		return "store_error"
	default:
		return "invalid"
	}
}

// normalizeSymbols trims, drops empties and de-duplicates, keeping order
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
