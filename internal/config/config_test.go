package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		JWTSecret:    "secret",
		DatabasePath: "forum.db",
		StoreBackend: "sqlite",
		Env:          "development",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid development config", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.StoreBackend = "dynamo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend needs url", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.StoreBackend = "redis"
		assert.Error(t, cfg.Validate())

		cfg.RedisURL = "redis://localhost:6379"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("sqlite backend needs path", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.DatabasePath = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory backend needs neither", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.StoreBackend = "memory"
		cfg.DatabasePath = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("production rejects default secret", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Env = "production"
		cfg.JWTSecret = "your-secret-key-change-in-production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires long secret", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Env = "production"
		cfg.JWTSecret = "short"
		assert.Error(t, cfg.Validate())

		cfg.JWTSecret = strings.Repeat("a", 32)
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.DatabasePath)
}
