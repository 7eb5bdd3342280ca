package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ranking cache backends
const (
	RankingCacheNone   = "none"
	RankingCacheMemory = "memory"
	RankingCacheRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Database DatabaseConfig
	Redis    RedisConfig
	Screener ScreenerConfig
	API      APIConfig
}

// DatabaseConfig holds TimescaleDB configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Table           string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	// UpdateChannel is published by the indicator pipeline after each batch insert
	UpdateChannel string
}

// ScreenerConfig holds the page assembly limits and ranking cache settings
type ScreenerConfig struct {
	DefaultPageSize      int
	MaxPageSize          int
	IndicatorHistoryRows int
	PriceHistoryRows     int
	DetailHistoryRows    int
	QueryTimeout         time.Duration
	RankingCacheType     string // "none", "memory" or "redis"
	RankingCacheTTL      time.Duration
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port            int
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "signal_screener"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Table:           getEnv("DB_SIGNALS_TABLE", "macd_signals"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvAsInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			PoolSize:      getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			UpdateChannel: getEnv("REDIS_UPDATE_CHANNEL", "signals.updated"),
		},
		Screener: ScreenerConfig{
			DefaultPageSize:      getEnvAsInt("SCREENER_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:          getEnvAsInt("SCREENER_MAX_PAGE_SIZE", 200),
			IndicatorHistoryRows: getEnvAsInt("SCREENER_INDICATOR_HISTORY_ROWS", 60),
			PriceHistoryRows:     getEnvAsInt("SCREENER_PRICE_HISTORY_ROWS", 180),
			DetailHistoryRows:    getEnvAsInt("SCREENER_DETAIL_HISTORY_ROWS", 100),
			QueryTimeout:         getEnvAsDuration("SCREENER_QUERY_TIMEOUT", 10*time.Second),
			RankingCacheType:     getEnv("SCREENER_RANKING_CACHE", RankingCacheMemory),
			RankingCacheTTL:      getEnvAsDuration("SCREENER_RANKING_CACHE_TTL", 5*time.Minute),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getEnvAsInt("API_RATE_LIMIT_BURST", 40),
			AllowedOrigins:  getEnvAsStringSlice("API_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvAsDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Table == "" {
		return fmt.Errorf("DB_SIGNALS_TABLE is required")
	}
	s := c.Screener
	if s.DefaultPageSize <= 0 || s.MaxPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if s.DefaultPageSize > s.MaxPageSize {
		return fmt.Errorf("SCREENER_DEFAULT_PAGE_SIZE (%d) exceeds SCREENER_MAX_PAGE_SIZE (%d)", s.DefaultPageSize, s.MaxPageSize)
	}
	if s.IndicatorHistoryRows <= 0 || s.PriceHistoryRows <= 0 || s.DetailHistoryRows <= 0 {
		return fmt.Errorf("history row limits must be positive")
	}
	if s.QueryTimeout <= 0 {
		return fmt.Errorf("SCREENER_QUERY_TIMEOUT must be positive")
	}
	switch s.RankingCacheType {
	case RankingCacheNone, RankingCacheMemory:
	case RankingCacheRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis ranking cache")
		}
	default:
		return fmt.Errorf("unknown SCREENER_RANKING_CACHE %q", s.RankingCacheType)
	}
	if c.API.RateLimitRPS <= 0 {
		return fmt.Errorf("API_RATE_LIMIT_RPS must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
