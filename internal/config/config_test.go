package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ACCESS_TTL", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Nil(t, cfg.CORSOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ACCESS_TTL", "90m")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("AUTO_MIGRATE", "0")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 90*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("AUTO_MIGRATE", "maybe")
	t.Setenv("QUEUE_BACKEND", "reddis")
	t.Setenv("CACHE_BACKEND", "memcached")

	cfg := Load()
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, "redis", cfg.CacheBackend)
}

func TestLoad_Backends(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", " Memory ")
	t.Setenv("CACHE_BACKEND", "none")

	cfg := Load()
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, "none", cfg.CacheBackend)
}

func TestUsesRedis(t *testing.T) {
	tests := []struct {
		queue, cache string
		want         bool
	}{
		{"redis", "redis", true},
		{"redis", "none", true},
		{"memory", "redis", true},
		{"memory", "memory", false},
		{"memory", "none", false},
	}
	for _, tc := range tests {
		cfg := App{QueueBackend: tc.queue, CacheBackend: tc.cache}
		assert.Equal(t, tc.want, cfg.UsesRedis(), "queue=%s cache=%s", tc.queue, tc.cache)
	}
}
