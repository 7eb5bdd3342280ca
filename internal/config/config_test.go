package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("SCREENER_RANKING_CACHE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "macd_signals", cfg.Database.Table)
	assert.Equal(t, 20, cfg.Screener.DefaultPageSize)
	assert.Equal(t, 60, cfg.Screener.IndicatorHistoryRows)
	assert.Equal(t, 180, cfg.Screener.PriceHistoryRows)
	assert.Equal(t, 100, cfg.Screener.DetailHistoryRows)
	assert.Equal(t, RankingCacheMemory, cfg.Screener.RankingCacheType)
	assert.Equal(t, "signals.updated", cfg.Redis.UpdateChannel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCREENER_MAX_PAGE_SIZE", "500")
	t.Setenv("SCREENER_QUERY_TIMEOUT", "3s")
	t.Setenv("SCREENER_RANKING_CACHE", "redis")
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Screener.MaxPageSize)
	assert.Equal(t, 3*time.Second, cfg.Screener.QueryTimeout)
	assert.Equal(t, RankingCacheRedis, cfg.Screener.RankingCacheType)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SCREENER_DEFAULT_PAGE_SIZE", "abc")
	t.Setenv("SCREENER_QUERY_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Screener.DefaultPageSize)
	assert.Equal(t, 10*time.Second, cfg.Screener.QueryTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "db", Table: "macd_signals"},
			Redis:    RedisConfig{Host: "redis"},
			Screener: ScreenerConfig{
				DefaultPageSize:      20,
				MaxPageSize:          200,
				IndicatorHistoryRows: 60,
				PriceHistoryRows:     180,
				DetailHistoryRows:    100,
				QueryTimeout:         time.Second,
				RankingCacheType:     RankingCacheNone,
			},
			API: APIConfig{RateLimitRPS: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, true},
		{"default above max", func(c *Config) { c.Screener.DefaultPageSize = 500 }, true},
		{"zero history", func(c *Config) { c.Screener.PriceHistoryRows = 0 }, true},
		{"unknown cache", func(c *Config) { c.Screener.RankingCacheType = "disk" }, true},
		{"redis cache without host", func(c *Config) {
			c.Screener.RankingCacheType = RankingCacheRedis
			c.Redis.Host = ""
		}, true},
		{"zero timeout", func(c *Config) { c.Screener.QueryTimeout = 0 }, true},
		{"zero rate limit", func(c *Config) { c.API.RateLimitRPS = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
