package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_store_query_latency_seconds",
			Help:    "Latency of signal store queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"operation"},
	)

	storeQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_store_query_errors_total",
			Help: "Total number of failed signal store queries",
		},
		[]string{"operation"},
	)
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// barColumns is the projection scanned by scanBars
const barColumns = `symbol, COALESCE(asset_type, ''), timeframe, date, COALESCE(close_price, 0),
	COALESCE(macd_line, 0), COALESCE(signal_line, 0), COALESCE(macd_histogram, 0),
	signal_1, signal_2, signal_3, signal_4, signal_5, signal_6, signal_7`

// positiveExpr counts the true trigger flags of a row
const positiveExpr = `(signal_1::int + signal_2::int + signal_3::int + signal_4::int + signal_5::int + signal_6::int)`

// TimescaleSignalStore implements SignalStore on a TimescaleDB/PostgreSQL table
type TimescaleSignalStore struct {
	db    *sql.DB
	table string
}

// NewTimescaleSignalStore opens a connection pool and verifies it
func NewTimescaleSignalStore(dbConfig config.DatabaseConfig) (*TimescaleSignalStore, error) {
	if !tableNamePattern.MatchString(dbConfig.Table) {
		return nil, fmt.Errorf("invalid signals table name %q", dbConfig.Table)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to TimescaleDB",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
		logger.String("table", dbConfig.Table),
	)

	return &TimescaleSignalStore{db: db, table: dbConfig.Table}, nil
}

// CountMatching counts distinct symbols matching the filter
func (t *TimescaleSignalStore) CountMatching(ctx context.Context, filter models.Filter) (count int, err error) {
	defer t.observe("count_matching", time.Now(), &err)

	where, args := filterClause(filter, 1)
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT symbol) FROM %s%s`, t.table, where)

	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, models.NewStoreError("count_matching", err)
	}
	return count, nil
}

// UniqueSymbolCount counts distinct symbols across the table
func (t *TimescaleSignalStore) UniqueSymbolCount(ctx context.Context) (count int, err error) {
	defer t.observe("unique_symbol_count", time.Now(), &err)

	query := fmt.Sprintf(`SELECT COUNT(DISTINCT symbol) FROM %s`, t.table)
	if err := t.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, models.NewStoreError("unique_symbol_count", err)
	}
	return count, nil
}

// LatestBarPerSymbol returns the newest bar per matching symbol. When several
// timeframes share the newest date the daily bar wins.
func (t *TimescaleSignalStore) LatestBarPerSymbol(ctx context.Context, filter models.Filter) (bars []*models.SignalBar, err error) {
	defer t.observe("latest_bar_per_symbol", time.Now(), &err)

	where, args := filterClause(filter, 2)
	args = append([]interface{}{string(models.DailyTimeframe)}, args...)
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (symbol) %s
		FROM %s%s
		ORDER BY symbol, date DESC, (timeframe = $1) DESC, timeframe
	`, barColumns, t.table, where)

	bars, err = t.queryBars(ctx, "latest_bar_per_symbol", query, args...)
	return bars, err
}

// DetailForSymbols returns the newest bar per (symbol, timeframe)
func (t *TimescaleSignalStore) DetailForSymbols(ctx context.Context, symbols []string, timeframes []models.Timeframe) (bars []*models.SignalBar, err error) {
	if len(symbols) == 0 || len(timeframes) == 0 {
		return []*models.SignalBar{}, nil
	}
	defer t.observe("detail_for_symbols", time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (symbol, timeframe) %s
		FROM %s
		WHERE symbol = ANY($1) AND timeframe = ANY($2)
		ORDER BY symbol, timeframe, date DESC
	`, barColumns, t.table)

	bars, err = t.queryBars(ctx, "detail_for_symbols", query, pq.Array(symbols), pq.Array(timeframeStrings(timeframes)))
	return bars, err
}

// HistoryForSymbols returns up to maxRows bars per symbol, newest first
func (t *TimescaleSignalStore) HistoryForSymbols(ctx context.Context, symbols []string, timeframe models.Timeframe, maxRows int) (bars []*models.SignalBar, err error) {
	if len(symbols) == 0 || maxRows <= 0 {
		return []*models.SignalBar{}, nil
	}
	defer t.observe("history_for_symbols", time.Now(), &err)

	query := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY date DESC) AS rn
			FROM %s
			WHERE symbol = ANY($1) AND timeframe = $2
		) windowed
		WHERE rn <= $3
		ORDER BY symbol, date DESC
	`, barColumns, t.table)

	bars, err = t.queryBars(ctx, "history_for_symbols", query, pq.Array(symbols), string(timeframe), maxRows)
	return bars, err
}

// SortedSymbolsBySignalCount ranks symbols by the positive count of their
// latest bar in timeframe. TotalPositive sums the latest bar of every tracked
// timeframe. Symbols without a bar in timeframe rank with a zero count.
func (t *TimescaleSignalStore) SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) (counts []models.SymbolSignalCount, err error) {
	defer t.observe("sorted_symbols_by_signal_count", time.Now(), &err)

	where, args := filterClause(filter, 3)
	if where == "" {
		where = " WHERE timeframe = ANY($2)"
	} else {
		where += " AND timeframe = ANY($2)"
	}
	args = append([]interface{}{string(timeframe), pq.Array(timeframeStrings(models.Timeframes()))}, args...)

	order := "DESC"
	if direction == models.SortAsc {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		WITH latest AS (
			SELECT DISTINCT ON (symbol, timeframe) symbol, timeframe, %s AS positive
			FROM %s%s
			ORDER BY symbol, timeframe, date DESC
		)
		SELECT symbol,
			COALESCE(MAX(positive) FILTER (WHERE timeframe = $1), 0) AS signal_count,
			COALESCE(SUM(positive), 0) AS total_positive
		FROM latest
		GROUP BY symbol
		ORDER BY signal_count %s, total_positive %s, symbol ASC
	`, positiveExpr, t.table, where, order, order)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStoreError("sorted_symbols_by_signal_count", err)
	}
	defer rows.Close()

	counts = []models.SymbolSignalCount{}
	for rows.Next() {
		var c models.SymbolSignalCount
		if err := rows.Scan(&c.Symbol, &c.Count, &c.TotalPositive); err != nil {
			return nil, models.NewStoreError("sorted_symbols_by_signal_count", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("sorted_symbols_by_signal_count", err)
	}
	return counts, nil
}

// LatestUpdate returns the newest created_at in the table
func (t *TimescaleSignalStore) LatestUpdate(ctx context.Context) (updated time.Time, err error) {
	defer t.observe("latest_update", time.Now(), &err)

	var ts sql.NullTime
	query := fmt.Sprintf(`SELECT MAX(created_at) FROM %s`, t.table)
	if err := t.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return time.Time{}, models.NewStoreError("latest_update", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// Ping checks database connectivity
func (t *TimescaleSignalStore) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

// Close closes the database connection
func (t *TimescaleSignalStore) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

func (t *TimescaleSignalStore) queryBars(ctx context.Context, op string, query string, args ...interface{}) ([]*models.SignalBar, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStoreError(op, err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, models.NewStoreError(op, err)
	}
	return bars, nil
}

func (t *TimescaleSignalStore) observe(op string, start time.Time, err *error) {
	storeQueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *err != nil {
		storeQueryErrors.WithLabelValues(op).Inc()
		logger.Warn("Signal store query failed",
			logger.String("operation", op),
			logger.ErrorField(*err),
		)
	}
}

// rowScanner is the part of *sql.Rows scanBars reads
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanBars reads barColumns rows. Timeframes are kept as stored since every
// query compares them exactly.
func scanBars(rows rowScanner) ([]*models.SignalBar, error) {
	bars := []*models.SignalBar{}
	for rows.Next() {
		var bar models.SignalBar
		var timeframe string
		if err := rows.Scan(
			&bar.Symbol,
			&bar.AssetType,
			&timeframe,
			&bar.Date,
			&bar.ClosePrice,
			&bar.MACDLine,
			&bar.SignalLine,
			&bar.Histogram,
			&bar.Signal1,
			&bar.Signal2,
			&bar.Signal3,
			&bar.Signal4,
			&bar.Signal5,
			&bar.Signal6,
			&bar.Signal7,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal bar: %w", err)
		}
		bar.Timeframe = models.Timeframe(timeframe)
		bar.Date = truncateToDate(bar.Date)
		bars = append(bars, &bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bars, nil
}

// filterClause renders the WHERE clause for filter with placeholders starting at argIndex
func filterClause(filter models.Filter, argIndex int) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.AssetType != "" {
		conds = append(conds, fmt.Sprintf("asset_type = $%d", argIndex))
		args = append(args, filter.AssetType)
		argIndex++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds = append(conds, fmt.Sprintf(`symbol ILIKE $%d ESCAPE '\'`, argIndex))
		args = append(args, "%"+escapeLike(search)+"%")
		argIndex++
	}
	if len(filter.Symbols) > 0 {
		conds = append(conds, fmt.Sprintf("symbol = ANY($%d)", argIndex))
		args = append(args, pq.Array(filter.Symbols))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func timeframeStrings(tfs []models.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = string(tf)
	}
	return out
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
