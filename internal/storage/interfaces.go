package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// SignalStore is the read-only query surface of the external signal store
type SignalStore interface {
	// CountMatching counts distinct symbols matching the filter
	CountMatching(ctx context.Context, filter models.Filter) (int, error)

	// UniqueSymbolCount counts distinct symbols across the whole store
	UniqueSymbolCount(ctx context.Context) (int, error)

	// LatestBarPerSymbol returns one row per matching symbol, the most recent by date
	LatestBarPerSymbol(ctx context.Context, filter models.Filter) ([]*models.SignalBar, error)

	// DetailForSymbols returns the most recent bar per (symbol, timeframe)
	DetailForSymbols(ctx context.Context, symbols []string, timeframes []models.Timeframe) ([]*models.SignalBar, error)

	// HistoryForSymbols returns up to maxRows bars per symbol for one timeframe,
	// newest first. Callers truncate and reverse.
	HistoryForSymbols(ctx context.Context, symbols []string, timeframe models.Timeframe, maxRows int) ([]*models.SignalBar, error)

	// SortedSymbolsBySignalCount ranks matching symbols by the positive-flag count
	// of their latest bar in the timeframe
	SortedSymbolsBySignalCount(ctx context.Context, timeframe models.Timeframe, direction models.SortDirection, filter models.Filter) ([]models.SymbolSignalCount, error)

	// LatestUpdate returns when the most recent row was ingested. The zero time
	// means the store is empty.
	LatestUpdate(ctx context.Context) (time.Time, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}

// ScoredMember is one member of a sorted set
type ScoredMember struct {
	Member string
	Score  float64
}

// RedisClient defines the Redis operations used by the ranking cache
type RedisClient interface {
	// Sorted set operations
	ZAddBatch(ctx context.Context, key string, members map[string]float64) error
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Key operations
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Set operations
	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
