package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("MOVE_BACKLOG", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.MoveBacklog)
	assert.Equal(t, 24*time.Hour, cfg.StoreTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("REDIS_ADDR", "redis://cache:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MOVE_BACKLOG", "20")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 20, cfg.MoveBacklog)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad backend", map[string]string{"JWT_SECRET": "x", "STORE_BACKEND": "etcd"}},
		{"bad int", map[string]string{"JWT_SECRET": "x", "REDIS_DB": "zero"}},
		{"bad backlog", map[string]string{"JWT_SECRET": "x", "MOVE_BACKLOG": "-1"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "STORE_TTL": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	defer func(l zerolog.Logger, lvl zerolog.Level) {
		log.Logger = l
		zerolog.SetGlobalLevel(lvl)
	}(log.Logger, zerolog.GlobalLevel())

	var buf bytes.Buffer
	SetupLoggingTo(&buf, "warn", "json")
	log.Info().Msg("hidden")
	log.Warn().Str("session", "s1").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"session":"s1"`)
	assert.Contains(t, out, `"level":"warn"`)
}
