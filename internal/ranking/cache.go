package ranking

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultCacheTTL is how long a cached ranking is served (5 minutes)
const DefaultCacheTTL = 5 * time.Minute

const (
	rankingKeyPrefix = "screener:ranking:"
	rankingKeySet    = "screener:ranking:keys"
)

var cacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ranking_cache_requests_total",
		Help: "Total number of ranking count lookups by cache backend and result",
	},
	[]string{"backend", "result"},
)

// CountCache is a CountSource that can drop its cached rankings
type CountCache interface {
	CountSource
	Invalidate(ctx context.Context) error
}

// cacheKey identifies a ranking independent of direction; callers re-sort.
// Asset type matches exactly in the store, search ignores case.
func cacheKey(timeframe models.Timeframe, filter models.Filter) string {
	return fmt.Sprintf("%s:%s:%s",
		timeframe,
		strings.TrimSpace(filter.AssetType),
		strings.ToLower(strings.TrimSpace(filter.Search)),
	)
}

// bypass reports whether filter must skip caching. Watchlists are per user
// and would fill the cache with single-use entries.
func bypass(filter models.Filter) bool {
	return len(filter.Symbols) > 0
}

// MemoryCountCache caches count rankings in process
type MemoryCountCache struct {
	source CountSource
	cache  *cache.Cache
}

// NewMemoryCountCache wraps source with an in-process TTL cache
func NewMemoryCountCache(source CountSource, ttl time.Duration) *MemoryCountCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCountCache{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// SortedSymbolsBySignalCount serves from the cache or fills it from source
func (m *MemoryCountCache) SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) ([]models.SymbolSignalCount, error) {
	if bypass(filter) {
		cacheRequests.WithLabelValues("memory", "bypass").Inc()
		return m.source.SortedSymbolsBySignalCount(ctx, timeframe, direction, filter)
	}

	key := cacheKey(timeframe, filter)
	if cached, found := m.cache.Get(key); found {
		cacheRequests.WithLabelValues("memory", "hit").Inc()
		rows := append([]models.SymbolSignalCount(nil), cached.([]models.SymbolSignalCount)...)
		sortCounts(rows, direction)
		return rows, nil
	}

	cacheRequests.WithLabelValues("memory", "miss").Inc()
	rows, err := m.source.SortedSymbolsBySignalCount(ctx, timeframe, direction, filter)
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(key, append([]models.SymbolSignalCount(nil), rows...))
	return rows, nil
}

// Invalidate drops every cached ranking
func (m *MemoryCountCache) Invalidate(ctx context.Context) error {
	m.cache.Flush()
	return nil
}

// RedisCountCache caches count rankings in Redis sorted sets so they are
// shared by every API replica. Each ranking uses two ZSETs, one scored by the
// timeframe count and one by the total positive count.
type RedisCountCache struct {
	source CountSource
	redis  storage.RedisClient
	ttl    time.Duration
}

// NewRedisCountCache wraps source with a Redis-backed cache
func NewRedisCountCache(source CountSource, redis storage.RedisClient, ttl time.Duration) *RedisCountCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCountCache{source: source, redis: redis, ttl: ttl}
}

// SortedSymbolsBySignalCount serves from Redis or fills it from source. Redis
// failures are logged and the source result is returned.
func (r *RedisCountCache) SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) ([]models.SymbolSignalCount, error) {
	if bypass(filter) {
		cacheRequests.WithLabelValues("redis", "bypass").Inc()
		return r.source.SortedSymbolsBySignalCount(ctx, timeframe, direction, filter)
	}

	key := rankingKeyPrefix + cacheKey(timeframe, filter)
	rows, found, err := r.read(ctx, key)
	switch {
	case err != nil:
		cacheRequests.WithLabelValues("redis", "error").Inc()
		logger.Warn("Ranking cache read failed, using store",
			logger.String("key", key),
			logger.ErrorField(err),
		)
	case found:
		cacheRequests.WithLabelValues("redis", "hit").Inc()
		sortCounts(rows, direction)
		return rows, nil
	default:
		cacheRequests.WithLabelValues("redis", "miss").Inc()
	}

	rows, err = r.source.SortedSymbolsBySignalCount(ctx, timeframe, direction, filter)
	if err != nil {
		return nil, err
	}
	if err := r.write(ctx, key, rows); err != nil {
		cacheRequests.WithLabelValues("redis", "error").Inc()
		logger.Warn("Ranking cache write failed",
			logger.String("key", key),
			logger.ErrorField(err),
		)
	}
	return rows, nil
}

// Invalidate deletes every ranking key written by this cache
func (r *RedisCountCache) Invalidate(ctx context.Context) error {
	keys, err := r.redis.SetMembers(ctx, rankingKeySet)
	if err != nil {
		return fmt.Errorf("failed to list ranking keys: %w", err)
	}
	keys = append(keys, rankingKeySet)
	if err := r.redis.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete ranking keys: %w", err)
	}
	logger.Info("Invalidated ranking cache", logger.Int("keys", len(keys)-1))
	return nil
}

func (r *RedisCountCache) read(ctx context.Context, key string) ([]models.SymbolSignalCount, bool, error) {
	card, err := r.redis.ZCard(ctx, key+":count")
	if err != nil {
		return nil, false, err
	}
	if card == 0 {
		return nil, false, nil
	}

	counts, err := r.redis.ZRangeWithScores(ctx, key+":count", 0, -1)
	if err != nil {
		return nil, false, err
	}
	totals, err := r.redis.ZRangeWithScores(ctx, key+":total", 0, -1)
	if err != nil {
		return nil, false, err
	}

	totalBySymbol := make(map[string]int, len(totals))
	for _, m := range totals {
		totalBySymbol[m.Member] = int(math.Round(m.Score))
	}
	rows := make([]models.SymbolSignalCount, 0, len(counts))
	for _, m := range counts {
		total, ok := totalBySymbol[m.Member]
		if !ok {
			// half-written entry; refill from the source
			return nil, false, nil
		}
		rows = append(rows, models.SymbolSignalCount{
			Symbol:        m.Member,
			Count:         int(math.Round(m.Score)),
			TotalPositive: total,
		})
	}
	return rows, true, nil
}

func (r *RedisCountCache) write(ctx context.Context, key string, rows []models.SymbolSignalCount) error {
	if len(rows) == 0 {
		return nil
	}
	countKey, totalKey := key+":count", key+":total"

	counts := make(map[string]float64, len(rows))
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		counts[row.Symbol] = float64(row.Count)
		totals[row.Symbol] = float64(row.TotalPositive)
	}

	if err := r.redis.Delete(ctx, countKey, totalKey); err != nil {
		return err
	}
	// totals first so a reader never sees counts without totals
	if err := r.redis.ZAddBatch(ctx, totalKey, totals); err != nil {
		return err
	}
	if err := r.redis.ZAddBatch(ctx, countKey, counts); err != nil {
		return err
	}
	for _, k := range []string{countKey, totalKey} {
		if err := r.redis.Expire(ctx, k, r.ttl); err != nil {
			return err
		}
	}
	return r.redis.SetAdd(ctx, rankingKeySet, countKey, totalKey)
}

// NoCache passes every lookup to the wrapped source
type NoCache struct {
	CountSource
}

// Invalidate is a no-op
func (NoCache) Invalidate(ctx context.Context) error {
	return nil
}

// NewCountCache builds the cache backend named by kind. redis may be nil
// unless kind is config.RankingCacheRedis.
func NewCountCache(kind string, source CountSource, redis storage.RedisClient, ttl time.Duration) (CountCache, error) {
	switch kind {
	case config.RankingCacheNone, "":
		return NoCache{CountSource: source}, nil
	case config.RankingCacheMemory:
		return NewMemoryCountCache(source, ttl), nil
	case config.RankingCacheRedis:
		if redis == nil {
			return nil, fmt.Errorf("ranking cache %q requires a Redis client", kind)
		}
		return NewRedisCountCache(source, redis, ttl), nil
	default:
		return nil, fmt.Errorf("unknown ranking cache type %q", kind)
	}
}
